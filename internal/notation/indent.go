package notation

import (
	"regexp"
	"strings"
)

// TabWidth is the number of columns a tab counts for when comparing indentation.
const TabWidth = 4

// IndentWidth returns the indentation of a line in columns.
func IndentWidth(line string) int {
	w := 0
	for _, r := range line {
		switch r {
		case ' ':
			w++
		case '\t':
			w += TabWidth - w%TabWidth
		default:
			return w
		}
	}
	return w
}

// LeadingWhitespace returns the indentation prefix of a line verbatim.
func LeadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

// IsBlank reports whether a line holds only whitespace.
func IsBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// ChildBlockEnd returns the index just past the child block of lines[i]: the run of
// immediately following non-blank lines indented deeper than lines[i].
func ChildBlockEnd(lines []string, i int) int {
	if i < 0 || i >= len(lines) {
		return i
	}
	parent := IndentWidth(lines[i])
	j := i + 1
	for j < len(lines) && !IsBlank(lines[j]) && IndentWidth(lines[j]) > parent {
		j++
	}
	return j
}

var blockIDRe = regexp.MustCompile(`\s+\^[A-Za-z0-9-]+\s*$`)

// StripBlockID removes a trailing `^block-id` reference from a line.
func StripBlockID(line string) string {
	return blockIDRe.ReplaceAllString(line, "")
}
