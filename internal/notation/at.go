package notation

import (
	"regexp"
	"strings"
	"time"

	"github.com/metalagman/taskflow/internal/model"
)

const someday = "future"

var (
	dateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateTimeRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})T(\d{2}:\d{2})$`)
	timeRe     = regexp.MustCompile(`^T?(\d{2}:\d{2})$`)
)

// dateBlock is the decoded `@start>end>deadline` token.
type dateBlock struct {
	future                 bool
	startDate, startTime   string
	hasEnd                 bool
	endDate, endTime       string
	deadline, deadlineTime string
}

func parseAtBody(body string) (Body, bool) {
	head, suffix, found := splitArrow(body)
	fields := strings.Fields(head)
	blockIdx := -1
	var block dateBlock
	// the last valid token wins so that Format, which appends the block, round-trips
	for i := len(fields) - 1; i >= 0; i-- {
		if b, ok := parseDateBlock(fields[i]); ok {
			blockIdx, block = i, b
			break
		}
	}
	var out Body
	if blockIdx >= 0 {
		fields = append(fields[:blockIdx:blockIdx], fields[blockIdx+1:]...)
		block.apply(&out.Task)
	}
	out.Content = strings.Join(fields, " ")
	out.Commands, out.Warnings = parseSuffix(suffix, found)
	return out, true
}

func formatAtBody(t *model.Task) string {
	return joinBody([]string{t.Content, FormatDateBlock(t)}, t.Commands)
}

// parseDateBlock decodes a whitespace-free token starting with "@".
func parseDateBlock(token string) (dateBlock, bool) {
	if !strings.HasPrefix(token, "@") {
		return dateBlock{}, false
	}
	raw := token[1:]
	if raw == someday {
		return dateBlock{future: true}, true
	}
	parts := strings.Split(raw, ">")
	if len(parts) > 3 {
		return dateBlock{}, false
	}
	var b dateBlock
	var ok bool
	if b.startDate, b.startTime, ok = ParsePart(parts[0]); !ok {
		return dateBlock{}, false
	}
	if len(parts) >= 2 {
		b.hasEnd = true
		if b.endDate, b.endTime, ok = ParsePart(parts[1]); !ok {
			return dateBlock{}, false
		}
	}
	if len(parts) == 3 {
		if b.deadline, b.deadlineTime, ok = ParsePart(parts[2]); !ok {
			return dateBlock{}, false
		}
	}
	if b.startDate == "" && b.startTime == "" && b.endDate == "" && b.endTime == "" && b.deadline == "" && b.deadlineTime == "" {
		return dateBlock{}, false
	}
	return b, true
}

func (b dateBlock) apply(t *model.Task) {
	if b.future {
		t.IsFuture = true
		return
	}
	t.StartDate, t.StartTime = b.startDate, b.startTime
	if b.hasEnd {
		t.EndDate, t.EndTime = b.endDate, b.endTime
		if t.EndDate == "" {
			// an empty or time-only end shares the start date
			t.EndDate = t.StartDate
		}
	}
	t.Deadline, t.DeadlineTime = b.deadline, b.deadlineTime
}

// ParsePart parses one `[date]["T"time] | time` component. The empty string is valid.
func ParsePart(s string) (date, clock string, ok bool) {
	switch {
	case s == "":
		return "", "", true
	case dateRe.MatchString(s):
		return s, "", validDate(s)
	case dateTimeRe.MatchString(s):
		m := dateTimeRe.FindStringSubmatch(s)
		return m[1], m[2], validDate(m[1]) && validTime(m[2])
	case timeRe.MatchString(s):
		m := timeRe.FindStringSubmatch(s)
		return "", m[1], validTime(m[1])
	}
	return "", "", false
}

// FormatPart is the inverse of ParsePart.
func FormatPart(date, clock string) string {
	switch {
	case date != "" && clock != "":
		return date + "T" + clock
	case date != "":
		return date
	default:
		return clock
	}
}

// FormatDateBlock renders the shortest `@…` token for the task, or "" when it has no temporal fields.
func FormatDateBlock(t *model.Task) string {
	if t.IsFuture {
		return "@" + someday
	}
	startDate := t.StartDate
	if t.StartDateInherited {
		startDate = ""
	}
	start := FormatPart(startDate, t.StartTime)
	hasEnd := t.EndDate != "" || t.EndTime != ""
	hasDeadline := t.Deadline != "" || t.DeadlineTime != ""
	if start == "" && !hasEnd && !hasDeadline {
		return ""
	}
	out := "@" + start
	if hasEnd || hasDeadline {
		end := FormatPart(t.EndDate, t.EndTime)
		if t.EndDate == t.StartDate {
			end = t.EndTime
		}
		out += ">" + end
	}
	if hasDeadline {
		out += ">" + FormatPart(t.Deadline, t.DeadlineTime)
	}
	return out
}

func validDate(s string) bool {
	_, err := time.Parse(model.DateLayout, s)
	return err == nil
}

func validTime(s string) bool {
	_, err := time.Parse(model.TimeLayout, s)
	return err == nil
}
