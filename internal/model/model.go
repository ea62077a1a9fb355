// Package model defines the task records shared by the parser, the index and the executor.
package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	// StatusOpen is the status character of an unfinished task.
	StatusOpen = ' '
	// StatusDone is the status character written when a task is completed.
	StatusDone = 'x'

	// FrontmatterLine is the sentinel line of a task declared in a document's frontmatter.
	FrontmatterLine = -1

	// DateLayout and TimeLayout are the persisted date and time formats.
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Modifier is a dotted suffix of a flow command, e.g. `.as(Call mom)`.
type Modifier struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

// FlowCommand is a post-completion directive such as `repeat(monthly)`.
type FlowCommand struct {
	Name      string     `json:"name"`
	Args      []string   `json:"args,omitempty"`
	Modifiers []Modifier `json:"modifiers,omitempty"`
}

// Modifier returns the first modifier with the given name.
func (c FlowCommand) Modifier(name string) (Modifier, bool) {
	for _, m := range c.Modifiers {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Modifier{}, false
}

// Arg returns the i-th argument or an empty string.
func (c FlowCommand) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// Warning is a non-fatal validation finding attached to a task.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return w.Code + ": " + w.Message
}

// Task is one indexed task, either an inline checkbox line or a frontmatter declaration.
type Task struct {
	ID   string `json:"id"`
	File string `json:"file"`
	Line int    `json:"line"`

	Content string `json:"content"`
	Status  rune   `json:"status"`

	StartDate          string `json:"start_date,omitempty"`
	StartTime          string `json:"start_time,omitempty"`
	StartDateInherited bool   `json:"start_date_inherited,omitempty"`
	EndDate            string `json:"end_date,omitempty"`
	EndTime            string `json:"end_time,omitempty"`
	Deadline           string `json:"deadline,omitempty"`
	DeadlineTime       string `json:"deadline_time,omitempty"`
	IsFuture           bool   `json:"is_future,omitempty"`

	Commands []FlowCommand `json:"commands,omitempty"`

	Indent        string   `json:"-"`
	TightMarker   bool     `json:"-"` // written as "-[ ]" without the space
	ChildLines    []string `json:"child_lines,omitempty"`
	ChildIDs      []string `json:"child_ids,omitempty"`
	ParentID      string   `json:"parent_id,omitempty"`
	LinkChildIDs  []string `json:"-"`
	ParentViaLink bool     `json:"-"`
	LinkTargets   []string `json:"link_targets,omitempty"`
	OriginalText  string   `json:"original_text,omitempty"`

	ParserID string    `json:"parser_id"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// TaskID derives the index key of a task from its location.
func TaskID(file string, line int) string {
	return fmt.Sprintf("%s:%d", file, line)
}

// IsFrontmatter reports whether the task was declared in a frontmatter block.
func (t *Task) IsFrontmatter() bool {
	return t.Line == FrontmatterLine
}

// IsOpen reports whether the task is unfinished.
func (t *Task) IsOpen() bool {
	return t.Status == StatusOpen
}

// HasDates reports whether any concrete date is set.
func (t *Task) HasDates() bool {
	return t.StartDate != "" || t.EndDate != "" || t.Deadline != ""
}

// HasTemporal reports whether the task carries any temporal field, including times and the someday flag.
func (t *Task) HasTemporal() bool {
	return t.HasDates() || t.StartTime != "" || t.EndTime != "" || t.DeadlineTime != "" || t.IsFuture
}

// EffectiveStart returns the start date, resolving an implicit start to the day of now.
// Someday tasks and tasks without any temporal anchor have no effective start.
func (t *Task) EffectiveStart(now time.Time) (time.Time, bool) {
	if t.StartDate != "" {
		d, err := time.ParseInLocation(DateLayout, t.StartDate, now.Location())
		if err == nil {
			return d, true
		}
	}
	if t.IsFuture {
		return time.Time{}, false
	}
	if t.EndDate != "" || t.EndTime != "" || t.Deadline != "" || t.StartTime != "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
	}
	return time.Time{}, false
}

// ShiftDays moves every present date by n days. Times and the someday flag are untouched.
func (t *Task) ShiftDays(n int) {
	t.StartDate = shiftDate(t.StartDate, n)
	t.EndDate = shiftDate(t.EndDate, n)
	t.Deadline = shiftDate(t.Deadline, n)
}

func shiftDate(date string, n int) string {
	if date == "" {
		return ""
	}
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return d.AddDate(0, 0, n).Format(DateLayout)
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	out := t
	out.Commands = CloneCommands(t.Commands)
	out.ChildLines = cloneStrings(t.ChildLines)
	out.ChildIDs = cloneStrings(t.ChildIDs)
	out.LinkChildIDs = cloneStrings(t.LinkChildIDs)
	out.LinkTargets = cloneStrings(t.LinkTargets)
	if t.Warnings != nil {
		out.Warnings = append([]Warning(nil), t.Warnings...)
	}
	return out
}

// CloneCommands deep-copies a command list.
func CloneCommands(cmds []FlowCommand) []FlowCommand {
	if cmds == nil {
		return nil
	}
	out := make([]FlowCommand, len(cmds))
	for i, c := range cmds {
		out[i] = FlowCommand{Name: c.Name, Args: cloneStrings(c.Args)}
		if c.Modifiers != nil {
			out[i].Modifiers = make([]Modifier, len(c.Modifiers))
			for j, m := range c.Modifiers {
				out[i].Modifiers[j] = Modifier{Name: m.Name, Args: cloneStrings(m.Args)}
			}
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
