package scan

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/taskflow/internal/model"
	"github.com/metalagman/taskflow/internal/notation"
)

// Extract parses all tasks of a document: at most one frontmatter task, then every
// checkbox task of the body. Tasks are returned in line order with indentation edges
// wired: a task's parent is the nearest enclosing task, and a child that only states
// a time inherits that ancestor's start date.
func Extract(file string, lines []string) []model.Task {
	var out []model.Task
	body := 0
	if fence, ok := notation.SplitFrontmatter(lines); ok {
		body = fence + 1
		t, found, err := notation.ParseFrontmatterTask(file, lines)
		if err != nil {
			log.Warn().Err(err).Str("file", file).Msg("skip malformed frontmatter")
		}
		if found {
			out = append(out, t)
		}
	}
	x := extractor{file: file, lines: lines, out: out}
	x.block(body, len(lines), -1, "")
	return x.out
}

type extractor struct {
	file  string
	lines []string
	out   []model.Task
}

// block extracts tasks from lines[from:to] whose nearest enclosing task is out[parent].
func (x *extractor) block(from, to, parent int, inherited string) {
	for i := from; i < to; {
		t, ok := notation.ParseAt(x.file, i, x.lines[i])
		if !ok {
			if parent >= 0 {
				x.out[parent].LinkTargets = append(x.out[parent].LinkTargets, notation.ExtractLinks(x.lines[i])...)
			}
			i++
			continue
		}
		end := notation.ChildBlockEnd(x.lines, i)
		if end > to {
			end = to
		}
		if end > i+1 {
			t.ChildLines = append([]string(nil), x.lines[i+1:end]...)
		}
		if t.StartDate == "" && t.StartTime != "" && inherited != "" {
			t.StartDate = inherited
			t.StartDateInherited = true
			if t.EndTime != "" && t.EndDate == "" {
				t.EndDate = inherited
			}
		}
		if parent >= 0 {
			t.ParentID = x.out[parent].ID
			x.out[parent].ChildIDs = append(x.out[parent].ChildIDs, t.ID)
		}
		idx := len(x.out)
		x.out = append(x.out, t)

		next := inherited
		if t.StartDate != "" {
			next = t.StartDate
		}
		x.block(i+1, end, idx, next)
		i = end
	}
}

// Signature identifies an occurrence of a triggerable task within a file.
func Signature(t *model.Task) string {
	date := t.StartDate
	if date == "" {
		date = "no-date"
	}
	return strings.Join([]string{t.File, date, t.Content, notation.FormatCommands(t.Commands)}, "|")
}

// Count tallies the signatures of the triggerable tasks.
func Count(tasks []model.Task) map[string]int {
	out := make(map[string]int)
	for i := range tasks {
		if notation.IsTriggerable(&tasks[i]) {
			out[Signature(&tasks[i])]++
		}
	}
	return out
}

// Diff returns the triggerable tasks that account for count increases between prev and
// cur. When a signature gained n occurrences, its last n tasks in line order are returned.
func Diff(tasks []model.Task, prev, cur map[string]int) []model.Task {
	var out []model.Task
	taken := make(map[string]int)
	for i := len(tasks) - 1; i >= 0; i-- {
		t := &tasks[i]
		if !notation.IsTriggerable(t) {
			continue
		}
		sig := Signature(t)
		gained := cur[sig] - prev[sig]
		if taken[sig] >= gained {
			continue
		}
		taken[sig]++
		out = append(out, t.Clone())
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}
