package repository

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/metalagman/taskflow/internal/notation"
)

var plainDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(T\d{2}:\d{2})?$`)

// keyRange returns the [start, stop) line range of a top-level key inside the frontmatter
// that closes at fence. Continuation lines (indented values, list items) belong to the key.
func keyRange(lines []string, fence int, key string) (int, int, bool) {
	for i := 1; i < fence; i++ {
		if !isKeyLine(lines[i], key) {
			continue
		}
		j := i + 1
		for j < fence && isContinuation(lines[j]) {
			j++
		}
		return i, j, true
	}
	return 0, 0, false
}

func isKeyLine(line, key string) bool {
	if !strings.HasPrefix(line, key) {
		return false
	}
	rest := strings.TrimLeft(line[len(key):], " ")
	return strings.HasPrefix(rest, ":")
}

func isContinuation(line string) bool {
	return line != "" && (line[0] == ' ' || line[0] == '\t' || strings.HasPrefix(line, "- "))
}

// SetFrontmatterKey sets a scalar key, touching only that key's lines. A missing key is
// appended before the closing fence; a missing frontmatter block is created.
func SetFrontmatterKey(lines []string, key, value string) []string {
	entry := key + ":"
	if value != "" {
		entry += " " + yamlScalar(value)
	}
	fence, ok := notation.SplitFrontmatter(lines)
	if !ok {
		return insertAt(lines, 0, []string{"---", entry, "---"})
	}
	if start, stop, found := keyRange(lines, fence, key); found {
		out := make([]string, 0, len(lines))
		out = append(out, lines[:start]...)
		out = append(out, entry)
		return append(out, lines[stop:]...)
	}
	return insertAt(lines, fence, []string{entry})
}

// DeleteFrontmatterKey removes a key and its continuation lines. It reports false when
// the key is absent.
func DeleteFrontmatterKey(lines []string, key string) ([]string, bool) {
	fence, ok := notation.SplitFrontmatter(lines)
	if !ok {
		return lines, false
	}
	start, stop, found := keyRange(lines, fence, key)
	if !found {
		return lines, false
	}
	out := make([]string, 0, len(lines)-(stop-start))
	out = append(out, lines[:start]...)
	return append(out, lines[stop:]...), true
}

// yamlScalar renders a value for a single frontmatter line. Dates stay bare; anything a
// YAML reader could misread, such as a bare HH:MM, is quoted.
func yamlScalar(value string) string {
	if value == "" || plainDateRe.MatchString(value) {
		return value
	}
	out, err := yaml.Marshal(value)
	if err != nil {
		return value
	}
	return strings.TrimSuffix(string(out), "\n")
}
