package notation

import (
	"regexp"
	"strings"

	"github.com/metalagman/taskflow/internal/model"
)

// Legacy inline-field grammar:
//
//	- [ ] Review [start:: 2026-01-15T10:00] [end:: 11:00] [deadline:: 2026-01-20] ==> next()
var fieldRe = regexp.MustCompile(`\[(start|end|deadline|someday)::\s*([^\]]*?)\s*\]`)

func parseFieldsBody(body string) (Body, bool) {
	head, suffix, found := splitArrow(body)
	matches := fieldRe.FindAllStringSubmatchIndex(head, -1)
	if len(matches) == 0 {
		return Body{}, false
	}
	var out Body
	var rest strings.Builder
	last := 0
	recognized := false
	for _, m := range matches {
		rest.WriteString(head[last:m[0]])
		last = m[1]
		key, value := head[m[2]:m[3]], head[m[4]:m[5]]
		if key == "someday" {
			out.Task.IsFuture = strings.EqualFold(value, "true")
			recognized = true
			continue
		}
		date, clock, ok := ParsePart(value)
		if !ok {
			// not a field we understand; keep it as text
			rest.WriteString(head[m[0]:m[1]])
			continue
		}
		recognized = true
		switch key {
		case "start":
			out.Task.StartDate, out.Task.StartTime = date, clock
		case "end":
			out.Task.EndDate, out.Task.EndTime = date, clock
		case "deadline":
			out.Task.Deadline, out.Task.DeadlineTime = date, clock
		}
	}
	rest.WriteString(head[last:])
	if !recognized {
		return Body{}, false
	}
	if out.Task.EndDate == "" && out.Task.EndTime != "" {
		out.Task.EndDate = out.Task.StartDate
	}
	out.Content = strings.Join(strings.Fields(rest.String()), " ")
	out.Commands, out.Warnings = parseSuffix(suffix, found)
	return out, true
}

func formatFieldsBody(t *model.Task) string {
	pieces := []string{t.Content}
	startDate := t.StartDate
	if t.StartDateInherited {
		startDate = ""
	}
	if start := FormatPart(startDate, t.StartTime); start != "" {
		pieces = append(pieces, "[start:: "+start+"]")
	}
	if t.EndDate != "" || t.EndTime != "" {
		end := FormatPart(t.EndDate, t.EndTime)
		if t.EndDate == t.StartDate && t.EndTime != "" {
			end = t.EndTime
		}
		pieces = append(pieces, "[end:: "+end+"]")
	}
	if t.Deadline != "" || t.DeadlineTime != "" {
		pieces = append(pieces, "[deadline:: "+FormatPart(t.Deadline, t.DeadlineTime)+"]")
	}
	if t.IsFuture {
		pieces = append(pieces, "[someday:: true]")
	}
	return joinBody(pieces, t.Commands)
}
