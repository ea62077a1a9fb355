package repository

import (
	"strings"

	"github.com/metalagman/taskflow/internal/model"
	"github.com/metalagman/taskflow/internal/notation"
)

// Locate finds the current line of a task. It tries, in order: the stored line if it
// still holds the original text verbatim, a verbatim match anywhere in the file
// (nearest to the stored line wins), a task line with the same content and date, and
// finally the stored line itself. It returns -1 when nothing applies.
func Locate(lines []string, t *model.Task) int {
	inRange := t.Line >= 0 && t.Line < len(lines)
	if t.OriginalText != "" {
		if inRange && lines[t.Line] == t.OriginalText {
			return t.Line
		}
		if i := nearest(lines, t.Line, func(s string) bool { return s == t.OriginalText }); i >= 0 {
			return i
		}
	}
	if t.Content != "" {
		i := nearest(lines, t.Line, func(s string) bool {
			parsed, ok := notation.Parse(s)
			if !ok || !strings.Contains(parsed.Content, t.Content) {
				return false
			}
			if t.StartDate != "" && !t.StartDateInherited {
				return parsed.StartDate == t.StartDate
			}
			return parsed.StartDate == "" || t.StartDateInherited
		})
		if i >= 0 {
			return i
		}
	}
	if inRange {
		return t.Line
	}
	return -1
}

// nearest returns the index matching pred closest to around, preferring earlier lines on ties.
func nearest(lines []string, around int, pred func(string) bool) int {
	best, bestDist := -1, 0
	for i, s := range lines {
		if !pred(s) {
			continue
		}
		d := i - around
		if d < 0 {
			d = -d
		}
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// ChildBlock returns the lines directly beneath lines[i] that belong to it.
func ChildBlock(lines []string, i int) []string {
	end := notation.ChildBlockEnd(lines, i)
	if end <= i+1 {
		return nil
	}
	return append([]string(nil), lines[i+1:end]...)
}

// ReplaceLine rewrites the task at index i, keeping the file's indentation of that line.
func ReplaceLine(lines []string, i int, t *model.Task) []string {
	c := t.Clone()
	c.Indent = notation.LeadingWhitespace(lines[i])
	out := append([]string(nil), lines...)
	out[i] = notation.Format(&c)
	return out
}

// InsertAfterBlock inserts ins after the child block of lines[i].
func InsertAfterBlock(lines []string, i int, ins []string) []string {
	return insertAt(lines, notation.ChildBlockEnd(lines, i), ins)
}

// InsertFirstChild inserts text as the first child of lines[i], indented one level deeper.
// The indentation of an existing first child is reused.
func InsertFirstChild(lines []string, i int, text string) []string {
	indent := notation.LeadingWhitespace(lines[i]) + "\t"
	if end := notation.ChildBlockEnd(lines, i); end > i+1 {
		indent = notation.LeadingWhitespace(lines[i+1])
	}
	return insertAt(lines, i+1, []string{indent + strings.TrimLeft(text, " \t")})
}

// DeleteBlock removes lines[i] together with its child block.
func DeleteBlock(lines []string, i int) []string {
	end := notation.ChildBlockEnd(lines, i)
	out := make([]string, 0, len(lines)-(end-i))
	out = append(out, lines[:i]...)
	return append(out, lines[end:]...)
}

// DuplicateBlock copies lines[i] and its child block below the block, dropping block ids.
func DuplicateBlock(lines []string, i int) []string {
	end := notation.ChildBlockEnd(lines, i)
	block := make([]string, 0, end-i)
	for _, l := range lines[i:end] {
		block = append(block, notation.StripBlockID(l))
	}
	return insertAt(lines, end, block)
}

// WeekCopies renders seven open copies of a task shifted by one to seven days,
// each followed by the given child lines.
func WeekCopies(t *model.Task, indent string, children []string) []string {
	var out []string
	for d := 1; d <= 7; d++ {
		c := t.Clone()
		c.StartDateInherited = false
		c.ShiftDays(d)
		c.Status = model.StatusOpen
		c.Indent = indent
		out = append(out, notation.StripBlockID(notation.Format(&c)))
		for _, child := range children {
			out = append(out, notation.StripBlockID(child))
		}
	}
	return out
}

// AppendBlock appends a block at the end of a document, separated from a
// non-empty last line by nothing but a line break.
func AppendBlock(lines []string, block []string) []string {
	out := append([]string(nil), lines...)
	for len(out) > 0 && notation.IsBlank(out[len(out)-1]) {
		out = out[:len(out)-1]
	}
	return append(out, block...)
}

func insertAt(lines []string, at int, ins []string) []string {
	out := make([]string, 0, len(lines)+len(ins))
	out = append(out, lines[:at]...)
	out = append(out, ins...)
	return append(out, lines[at:]...)
}
