// Package notation parses task lines into model.Task records and formats them back.
//
// A task line is a markdown checkbox item carrying a date block and/or a flow
// command suffix:
//
//	- [ ] Pay rent @2026-01-15 ==> repeat(monthly)
//	- [x] Standup @2026-01-15T09:30>09:45
//	- [ ] Taxes @>2026-04-30>2026-04-15T17:00
//
// Several grammar variants are supported. Parse tries them in order; Format
// inverts the exact variant recorded in Task.ParserID.
package notation

import (
	"regexp"
	"strings"

	"github.com/metalagman/taskflow/internal/model"
)

// Parser identifiers recorded in model.Task.ParserID.
const (
	ParserAt          = "at"
	ParserFields      = "fields"
	ParserFrontmatter = "frontmatter"
)

// Variant is one grammar revision: a pure parse function over the body of a checkbox
// line and its inverse.
type Variant struct {
	ID     string
	Parse  func(body string) (Body, bool)
	Format func(t *model.Task) string
}

// Body is the variant-specific part of a parsed line.
type Body struct {
	Content  string
	Task     model.Task
	Commands []model.FlowCommand
	Warnings []model.Warning
}

var variants = []Variant{
	{ID: ParserFields, Parse: parseFieldsBody, Format: formatFieldsBody},
	{ID: ParserAt, Parse: parseAtBody, Format: formatAtBody},
}

var checkboxRe = regexp.MustCompile(`^([ \t]*)-( ?)\[(.)\](?: (.*))?$`)

// Parse parses a single line. It returns false for lines that are not tasks:
// anything that is not a checkbox item, and checkbox items that carry neither a
// temporal field nor a flow command.
func Parse(line string) (model.Task, bool) {
	m := checkboxRe.FindStringSubmatch(line)
	if m == nil {
		return model.Task{}, false
	}
	status := []rune(m[3])[0]
	for _, v := range variants {
		body, ok := v.Parse(m[4])
		if !ok {
			continue
		}
		t := body.Task
		t.Indent = m[1]
		t.TightMarker = m[2] == ""
		t.Status = status
		t.Content = body.Content
		t.Commands = body.Commands
		t.OriginalText = line
		t.ParserID = v.ID
		t.Warnings = append(body.Warnings, Validate(&t)...)
		if !t.HasTemporal() && len(t.Commands) == 0 {
			return model.Task{}, false
		}
		return t, true
	}
	return model.Task{}, false
}

// ParseAt parses a line located in file at the 0-based line index.
func ParseAt(file string, line int, text string) (model.Task, bool) {
	t, ok := Parse(text)
	if !ok {
		return model.Task{}, false
	}
	t.File = file
	t.Line = line
	t.ID = model.TaskID(file, line)
	return t, true
}

// Format renders a task back into a single line, indentation included.
func Format(t *model.Task) string {
	status := t.Status
	if status == 0 {
		status = model.StatusOpen
	}
	v := variantByID(t.ParserID)
	body := v.Format(t)
	marker := "- ["
	if t.TightMarker {
		marker = "-["
	}
	line := t.Indent + marker + string(status) + "]"
	if body != "" {
		line += " " + body
	}
	return line
}

// IsTriggerable reports whether completing the task should run its flow commands.
func IsTriggerable(t *model.Task) bool {
	return t.Status != model.StatusOpen && t.Status != 0 && len(t.Commands) > 0
}

func variantByID(id string) Variant {
	for _, v := range variants {
		if v.ID == id {
			return v
		}
	}
	// frontmatter tasks and new tasks render with the default grammar
	return variants[len(variants)-1]
}

var arrowRe = regexp.MustCompile(`(?:^|\s)==>(?:\s|$)`)

// splitArrow separates the head of a body from its flow command suffix.
func splitArrow(body string) (head, commands string, found bool) {
	loc := arrowRe.FindStringIndex(body)
	if loc == nil {
		return body, "", false
	}
	return body[:loc[0]], body[loc[1]:], true
}

// joinBody assembles head pieces and the command suffix.
func joinBody(pieces []string, cmds []model.FlowCommand) string {
	var nonEmpty []string
	for _, p := range pieces {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	head := strings.Join(nonEmpty, " ")
	if len(cmds) == 0 {
		return head
	}
	if head == "" {
		return "==> " + FormatCommands(cmds)
	}
	return head + " ==> " + FormatCommands(cmds)
}

// parseSuffix parses the flow command suffix and records a warning for unparsable text.
func parseSuffix(suffix string, found bool) ([]model.FlowCommand, []model.Warning) {
	if !found {
		return nil, nil
	}
	cmds, rest, err := ParseCommands(suffix)
	if err != nil {
		return cmds, []model.Warning{{Code: WarnBadCommands, Message: err.Error() + ": " + rest}}
	}
	return cmds, nil
}
