package repository

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/metalagman/taskflow/internal/model"
	"github.com/metalagman/taskflow/internal/notation"
)

// ErrUnsupported is returned for line operations that make no sense on a frontmatter task.
var ErrUnsupported = errors.New("unsupported for frontmatter tasks")

var frontmatterTaskKeys = []string{notation.KeyStatus, notation.KeyStart, notation.KeyEnd, notation.KeyDeadline}

// withTask locates t in its file and runs edit with the located line index.
func (r *Repository) withTask(ctx context.Context, t model.Task, edit func(lines []string, i int) ([]string, error)) error {
	return r.Modify(ctx, t.File, func(lines []string) ([]string, error) {
		i := Locate(lines, &t)
		if i < 0 {
			return nil, fmt.Errorf("locate %s: %w", t.ID, ErrLineOutOfRange)
		}
		return edit(lines, i)
	})
}

// UpdateTask rewrites a task in place. Frontmatter tasks are updated key by key.
func (r *Repository) UpdateTask(ctx context.Context, t model.Task) error {
	if t.IsFrontmatter() {
		return r.Modify(ctx, t.File, func(lines []string) ([]string, error) {
			return updateFrontmatterTask(lines, &t), nil
		})
	}
	return r.withTask(ctx, t, func(lines []string, i int) ([]string, error) {
		return ReplaceLine(lines, i, &t), nil
	})
}

func updateFrontmatterTask(lines []string, t *model.Task) []string {
	values := notation.FrontmatterValues(t)
	keys := frontmatterTaskKeys
	base := strings.TrimSuffix(path.Base(t.File), path.Ext(t.File))
	if t.Content != base {
		keys = append(append([]string(nil), keys...), notation.KeyContent)
	}
	for _, key := range keys {
		switch v := values[key]; {
		case v != "":
			lines = SetFrontmatterKey(lines, key, v)
		case key == notation.KeyStatus:
			// an open task keeps an empty status key so it stays declared
			if fence, ok := notation.SplitFrontmatter(lines); ok {
				if _, _, found := keyRange(lines, fence, key); found {
					lines = SetFrontmatterKey(lines, key, "")
				}
			}
		default:
			lines, _ = DeleteFrontmatterKey(lines, key)
		}
	}
	return lines
}

// DeleteTask removes a task and its child block. For a frontmatter task the task keys are removed.
func (r *Repository) DeleteTask(ctx context.Context, t model.Task) error {
	if t.IsFrontmatter() {
		return r.Modify(ctx, t.File, func(lines []string) ([]string, error) {
			changed := false
			for _, key := range frontmatterTaskKeys {
				var removed bool
				lines, removed = DeleteFrontmatterKey(lines, key)
				changed = changed || removed
			}
			if !changed {
				return nil, ErrNoChange
			}
			return lines, nil
		})
	}
	return r.withTask(ctx, t, func(lines []string, i int) ([]string, error) {
		return DeleteBlock(lines, i), nil
	})
}

// DuplicateTask copies a task with its child block directly below it.
func (r *Repository) DuplicateTask(ctx context.Context, t model.Task) error {
	if t.IsFrontmatter() {
		return fmt.Errorf("duplicate %s: %w", t.ID, ErrUnsupported)
	}
	return r.withTask(ctx, t, func(lines []string, i int) ([]string, error) {
		return DuplicateBlock(lines, i), nil
	})
}

// DuplicateTaskForWeek inserts seven copies of a task, one per following day.
func (r *Repository) DuplicateTaskForWeek(ctx context.Context, t model.Task) error {
	if t.IsFrontmatter() {
		return fmt.Errorf("duplicate %s for week: %w", t.ID, ErrUnsupported)
	}
	return r.withTask(ctx, t, func(lines []string, i int) ([]string, error) {
		copies := WeekCopies(&t, notation.LeadingWhitespace(lines[i]), ChildBlock(lines, i))
		return InsertAfterBlock(lines, i, copies), nil
	})
}

// InsertAfter inserts lines after the task's child block. For a frontmatter task they
// are inserted right after the frontmatter.
func (r *Repository) InsertAfter(ctx context.Context, t model.Task, ins []string) error {
	if len(ins) == 0 {
		return nil
	}
	if t.IsFrontmatter() {
		return r.Modify(ctx, t.File, func(lines []string) ([]string, error) {
			fence, ok := notation.SplitFrontmatter(lines)
			if !ok {
				return nil, fmt.Errorf("insert after %s: %w", t.ID, ErrLineOutOfRange)
			}
			return insertAt(lines, fence+1, ins), nil
		})
	}
	return r.withTask(ctx, t, func(lines []string, i int) ([]string, error) {
		return InsertAfterBlock(lines, i, ins), nil
	})
}

// InsertFirstChild adds text as the first child line of a task.
func (r *Repository) InsertFirstChild(ctx context.Context, t model.Task, text string) error {
	if t.IsFrontmatter() {
		return r.InsertAfter(ctx, t, []string{strings.TrimLeft(text, " \t")})
	}
	return r.withTask(ctx, t, func(lines []string, i int) ([]string, error) {
		return InsertFirstChild(lines, i, text), nil
	})
}

// AppendWithChildren appends a task block to file, creating the file and its folders if needed.
func (r *Repository) AppendWithChildren(ctx context.Context, file string, block []string) error {
	if len(block) == 0 {
		return nil
	}
	return r.modify(ctx, file, true, func(lines []string) ([]string, error) {
		return AppendBlock(lines, block), nil
	})
}

// SetFrontmatterKey sets one frontmatter key of file.
func (r *Repository) SetFrontmatterKey(ctx context.Context, file, key, value string) error {
	return r.Modify(ctx, file, func(lines []string) ([]string, error) {
		return SetFrontmatterKey(lines, key, value), nil
	})
}

// DeleteFrontmatterKey removes one frontmatter key of file.
func (r *Repository) DeleteFrontmatterKey(ctx context.Context, file, key string) error {
	return r.Modify(ctx, file, func(lines []string) ([]string, error) {
		out, ok := DeleteFrontmatterKey(lines, key)
		if !ok {
			return nil, ErrNoChange
		}
		return out, nil
	})
}
