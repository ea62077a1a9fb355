package executor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/metalagman/taskflow/internal/model"
	"github.com/metalagman/taskflow/internal/notation"
	"github.com/metalagman/taskflow/internal/repository"
)

// ErrUnknownCommand is returned for a command name with no registered strategy.
var ErrUnknownCommand = errors.New("unknown command")

// MutationKind tells the executor where a mutation lands.
type MutationKind int

const (
	// InsertAfterOriginal inserts lines after the original task's child block.
	InsertAfterOriginal MutationKind = iota
	// AppendToFile appends lines to another file, creating it if needed.
	AppendToFile
)

// Mutation is a pending file change produced by a strategy.
type Mutation struct {
	Kind  MutationKind
	File  string
	Lines []string
}

// Result is the outcome of one strategy run.
type Result struct {
	Mutations      []Mutation
	DeleteOriginal bool
}

// Context is what a strategy sees of the completion being executed.
type Context struct {
	Task model.Task
	Now  time.Time
}

// Strategy executes one flow command.
type Strategy struct {
	// Generates marks strategies that produce the task's next occurrence. Only the
	// leftmost generating command of a completion runs.
	Generates bool
	Run       func(Context, model.FlowCommand) (Result, error)
}

// Registry maps command names to strategies.
type Registry map[string]Strategy

// DefaultRegistry returns the built-in repeat, next and move strategies.
func DefaultRegistry() Registry {
	return Registry{
		"repeat": {Generates: true, Run: Repeat},
		"next":   {Generates: true, Run: Next},
		"move":   {Run: Move},
	}
}

// Lookup finds the strategy for a command name, case-insensitively.
func (r Registry) Lookup(name string) (Strategy, error) {
	if s, ok := r[strings.ToLower(name)]; ok {
		return s, nil
	}
	return Strategy{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

// Repeat inserts the next occurrence with the full command list, so the recurrence continues.
// An empty interval repeats daily.
func Repeat(ctx Context, cmd model.FlowCommand) (Result, error) {
	args := cmd.Args
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		args = []string{"daily"}
	}
	t, err := NextOccurrence(ctx.Task, args, ctx.Now)
	if err != nil {
		return Result{}, fmt.Errorf("repeat: %w", err)
	}
	t.Commands = model.CloneCommands(ctx.Task.Commands)
	return generated(ctx, cmd, t), nil
}

// Next inserts the next occurrence without commands. An empty interval keeps the dates.
func Next(ctx Context, cmd model.FlowCommand) (Result, error) {
	var t model.Task
	if len(cmd.Args) == 0 || strings.TrimSpace(cmd.Args[0]) == "" {
		t = fresh(ctx.Task)
	} else {
		var err error
		if t, err = NextOccurrence(ctx.Task, cmd.Args, ctx.Now); err != nil {
			return Result{}, fmt.Errorf("next: %w", err)
		}
	}
	t.Commands = nil
	return generated(ctx, cmd, t), nil
}

func generated(ctx Context, cmd model.FlowCommand, t model.Task) Result {
	if as, ok := cmd.Modifier("as"); ok && len(as.Args) > 0 {
		t.Content = strings.Join(as.Args, ", ")
	}
	return Result{Mutations: []Mutation{{
		Kind:  InsertAfterOriginal,
		File:  ctx.Task.File,
		Lines: []string{notation.Format(&t)},
	}}}
}

// Move appends the task, stripped of its commands, and its child block to the destination
// file and asks for the original to be deleted.
func Move(ctx Context, cmd model.FlowCommand) (Result, error) {
	dest := repository.SanitizePath(cmd.Arg(0))
	if dest == "" {
		return Result{}, fmt.Errorf("move: missing destination")
	}
	t := ctx.Task.Clone()
	t.Commands = nil
	t.StartDateInherited = false
	indent := t.Indent
	t.Indent = ""
	if t.IsFrontmatter() {
		t.ParserID = notation.ParserAt
	}
	lines := []string{notation.Format(&t)}
	for _, child := range t.ChildLines {
		lines = append(lines, strings.TrimPrefix(child, indent))
	}
	return Result{
		Mutations:      []Mutation{{Kind: AppendToFile, File: dest, Lines: lines}},
		DeleteOriginal: true,
	}, nil
}

// fresh turns a completed task into a new open line at the same place.
func fresh(src model.Task) model.Task {
	t := src.Clone()
	if t.IsFrontmatter() {
		t.ParserID = notation.ParserAt
		t.Indent = ""
	}
	t.ID, t.Line, t.OriginalText = "", 0, ""
	t.Status = model.StatusOpen
	t.StartDateInherited = false
	t.ChildLines, t.ChildIDs, t.LinkChildIDs, t.LinkTargets = nil, nil, nil, nil
	t.ParentID, t.ParentViaLink = "", false
	t.Warnings = nil
	return t
}
