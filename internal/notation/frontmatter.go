package notation

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/metalagman/taskflow/internal/model"
)

// Frontmatter keys recognized as a task declaration.
const (
	KeyStatus   = "status"
	KeyContent  = "content"
	KeyStart    = "start"
	KeyEnd      = "end"
	KeyDeadline = "deadline"
	KeyChildren = "children"
)

// SplitFrontmatter locates a leading `---` metadata block. It returns the index of the
// closing fence; the block content is lines[1:end].
func SplitFrontmatter(lines []string) (end int, ok bool) {
	if len(lines) == 0 || strings.TrimRight(lines[0], " \t\r") != "---" {
		return 0, false
	}
	for i := 1; i < len(lines); i++ {
		fence := strings.TrimRight(lines[i], " \t\r")
		if fence == "---" || fence == "..." {
			return i, true
		}
	}
	return 0, false
}

// ParseFrontmatterTask decodes the frontmatter of a document into at most one task.
// A declaration needs a start, end or deadline value, or an explicit status key.
func ParseFrontmatterTask(file string, lines []string) (model.Task, bool, error) {
	end, ok := SplitFrontmatter(lines)
	if !ok {
		return model.Task{}, false, nil
	}
	var meta map[string]any
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &meta); err != nil {
		return model.Task{}, false, fmt.Errorf("decode frontmatter of %s: %w", file, err)
	}
	if len(meta) == 0 {
		return model.Task{}, false, nil
	}

	t := model.Task{
		ID:       model.TaskID(file, model.FrontmatterLine),
		File:     file,
		Line:     model.FrontmatterLine,
		Status:   model.StatusOpen,
		ParserID: ParserFrontmatter,
	}
	rawStatus, hasStatus := meta[KeyStatus]
	t.Status = NormalizeStatus(rawStatus)
	if v, ok := meta[KeyStart]; ok {
		t.StartDate, t.StartTime, _ = NormalizeDateValue(v)
	}
	if v, ok := meta[KeyEnd]; ok {
		t.EndDate, t.EndTime, _ = NormalizeDateValue(v)
		if t.EndDate == "" && t.EndTime != "" {
			t.EndDate = t.StartDate
		}
	}
	if v, ok := meta[KeyDeadline]; ok {
		t.Deadline, t.DeadlineTime, _ = NormalizeDateValue(v)
	}
	if !hasStatus && !t.HasTemporal() {
		return model.Task{}, false, nil
	}
	if v, ok := meta[KeyContent].(string); ok && strings.TrimSpace(v) != "" {
		t.Content = strings.TrimSpace(v)
	} else {
		t.Content = strings.TrimSuffix(path.Base(file), path.Ext(file))
	}
	t.LinkTargets = linkList(meta[KeyChildren])
	t.Warnings = Validate(&t)
	return t, true, nil
}

// NormalizeStatus maps a frontmatter status value to a status character.
// A missing or empty status means open.
func NormalizeStatus(v any) rune {
	if b, ok := v.(bool); ok {
		if b {
			return model.StatusDone
		}
		return model.StatusOpen
	}
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "todo", "open", " ":
		return model.StatusOpen
	case "done", "completed", "complete":
		return model.StatusDone
	case "cancelled", "canceled":
		return '-'
	}
	return []rune(s)[0]
}

var (
	spacedDateTimeRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[ T](\d{2}:\d{2})(?::\d{2}(?:\.\d+)?)?(?:Z|[+-]\d{2}:?\d{2})?$`)
	secondsTimeRe    = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::\d{2})?$`)
)

// NormalizeDateValue converts a frontmatter date value into date and time strings.
// Values may be raw strings, structured time.Time values from a metadata cache, or
// integers produced by a YAML 1.1 reader that took `HH:MM` for a base-60 number.
func NormalizeDateValue(v any) (date, clock string, ok bool) {
	switch val := v.(type) {
	case nil:
		return "", "", false
	case time.Time:
		date = val.Format(model.DateLayout)
		if val.Hour() != 0 || val.Minute() != 0 {
			clock = val.Format(model.TimeLayout)
		}
		return date, clock, true
	case int:
		return sexagesimal(val)
	case int64:
		return sexagesimal(int(val))
	case uint64:
		return sexagesimal(int(val))
	case float64:
		if val == float64(int(val)) {
			return sexagesimal(int(val))
		}
		return "", "", false
	case string:
		s := strings.TrimSpace(val)
		if d, c, ok := ParsePart(s); ok {
			return d, c, s != ""
		}
		if m := spacedDateTimeRe.FindStringSubmatch(s); m != nil {
			return m[1], m[2], validDate(m[1]) && validTime(m[2])
		}
		if m := secondsTimeRe.FindStringSubmatch(s); m != nil {
			h, _ := strconv.Atoi(m[1])
			c := fmt.Sprintf("%02d:%s", h, m[2])
			return "", c, validTime(c)
		}
	}
	return "", "", false
}

// sexagesimal rebuilds `HH:MM` from the minutes a base-60 reader produced.
func sexagesimal(n int) (string, string, bool) {
	if n < 0 || n >= 24*60 {
		return "", "", false
	}
	return "", fmt.Sprintf("%02d:%02d", n/60, n%60), true
}

func linkList(v any) []string {
	var raw []string
	switch val := v.(type) {
	case string:
		raw = []string{val}
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	var out []string
	for _, s := range raw {
		if target := UnwrapLink(s); target != "" {
			out = append(out, target)
		}
	}
	return out
}

// FrontmatterValues renders the task fields as frontmatter scalars. Empty values mean
// the key should be removed.
func FrontmatterValues(t *model.Task) map[string]string {
	status := ""
	if t.Status != model.StatusOpen && t.Status != 0 {
		status = string(t.Status)
	}
	endDate := t.EndDate
	if endDate == t.StartDate && t.EndTime != "" {
		endDate = ""
	}
	return map[string]string{
		KeyStatus:   status,
		KeyContent:  t.Content,
		KeyStart:    FormatPart(t.StartDate, t.StartTime),
		KeyEnd:      FormatPart(endDate, t.EndTime),
		KeyDeadline: FormatPart(t.Deadline, t.DeadlineTime),
	}
}
