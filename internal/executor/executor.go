// Package executor runs the flow commands of completed tasks.
//
// Completions are processed one at a time from a single FIFO. For each item the
// executor waits for pending scans of the task's file, re-resolves the task at its
// current position, runs its commands right to left, deletes the original if a
// strategy asked for it and then rescans the file before taking the next item.
package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/metalagman/taskflow/internal/journal"
	"github.com/metalagman/taskflow/internal/model"
	"github.com/metalagman/taskflow/internal/notation"
)

// Files applies strategy output to vault files.
type Files interface {
	InsertAfter(ctx context.Context, t model.Task, lines []string) error
	AppendWithChildren(ctx context.Context, file string, lines []string) error
	DeleteTask(ctx context.Context, t model.Task) error
}

// Scans serializes the executor with the scanner.
type Scans interface {
	RequestScan(ctx context.Context, file string) <-chan struct{}
	WaitForScan(ctx context.Context, file string) error
}

// Tasks looks up the indexed state of a file.
type Tasks interface {
	Get(id string) (model.Task, bool)
	ByFile(file string) []model.Task
}

// Recorder stores the outcome of each processed completion.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Executor drains the completion queue.
type Executor struct {
	files    Files
	scans    Scans
	tasks    Tasks
	registry Registry
	recorder Recorder
	now      func() time.Time

	mu      sync.Mutex
	queue   []model.Task
	busy    bool
	wake    chan struct{}
	waiters []chan struct{}
}

// Option configures an Executor.
type Option func(*Executor)

// WithRegistry replaces the built-in strategies.
func WithRegistry(r Registry) Option {
	return func(e *Executor) { e.registry = r }
}

// WithRecorder records every processed completion.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// WithClock overrides the time source used for recurrence anchors.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// New creates an executor. Call Run to start processing.
func New(files Files, scans Scans, tasks Tasks, opts ...Option) *Executor {
	e := &Executor{
		files:    files,
		scans:    scans,
		tasks:    tasks,
		registry: DefaultRegistry(),
		now:      time.Now,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue appends a completed task to the queue.
func (e *Executor) Enqueue(t model.Task) {
	e.mu.Lock()
	e.queue = append(e.queue, t.Clone())
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued completions, excluding the one being processed.
func (e *Executor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Run processes the queue until ctx is done.
func (e *Executor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		}
		for {
			item, ok := e.pop()
			if !ok {
				break
			}
			e.process(ctx, item)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (e *Executor) pop() (model.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		e.busy = false
		for _, w := range e.waiters {
			close(w)
		}
		e.waiters = nil
		return model.Task{}, false
	}
	item := e.queue[0]
	e.queue = e.queue[1:]
	e.busy = true
	return item, true
}

// Drain blocks until the queue is empty and no completion is being processed.
func (e *Executor) Drain(ctx context.Context) error {
	e.mu.Lock()
	if len(e.queue) == 0 && !e.busy {
		e.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	e.waiters = append(e.waiters, w)
	e.mu.Unlock()
	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) process(ctx context.Context, item model.Task) {
	entry := journal.Entry{
		ID:       uuid.NewString(),
		File:     item.File,
		Line:     item.Line,
		Content:  item.Content,
		Commands: notation.FormatCommands(item.Commands),
	}
	logger := log.With().Str("completion_id", entry.ID).Str("task_id", item.ID).Logger()

	if err := e.scans.WaitForScan(ctx, item.File); err != nil {
		return
	}
	current, ok := e.resolve(item)
	if !ok || !notation.IsTriggerable(&current) {
		logger.Debug().Msg("completion dropped: task gone or reopened")
		entry.Outcome = journal.OutcomeDropped
		e.record(ctx, entry)
		return
	}
	entry.Line = current.Line

	touched := map[string]struct{}{current.File: {}}
	deleteOriginal := false
	var failures []string
	sctx := Context{Task: current, Now: e.now()}
	gen := leftmostGenerator(e.registry, current.Commands)

	for i := len(current.Commands) - 1; i >= 0; i-- {
		cmd := current.Commands[i]
		strategy, err := e.registry.Lookup(cmd.Name)
		if err != nil {
			logger.Warn().Err(err).Str("command", cmd.Name).Msg("command skipped")
			continue
		}
		if strategy.Generates && i != gen {
			logger.Debug().Str("command", cmd.Name).Msg("generation consumed by an earlier command")
			continue
		}
		res, err := strategy.Run(sctx, cmd)
		if err != nil {
			logger.Error().Err(err).Str("command", cmd.Name).Msg("command failed")
			failures = append(failures, err.Error())
			continue
		}
		for _, m := range res.Mutations {
			if err := e.apply(ctx, current, m); err != nil {
				logger.Error().Err(err).Str("command", cmd.Name).Str("file", m.File).Msg("write failed")
				failures = append(failures, err.Error())
				continue
			}
			touched[m.File] = struct{}{}
		}
		deleteOriginal = deleteOriginal || res.DeleteOriginal
	}

	if deleteOriginal {
		if err := e.files.DeleteTask(ctx, current); err != nil {
			logger.Error().Err(err).Msg("delete original failed")
			failures = append(failures, err.Error())
		} else {
			entry.DeletedOriginal = true
		}
	}

	var rescans []<-chan struct{}
	for file := range touched {
		rescans = append(rescans, e.scans.RequestScan(ctx, file))
	}
	for _, ch := range rescans {
		select {
		case <-ch:
		case <-ctx.Done():
		}
	}

	entry.Outcome = journal.OutcomeExecuted
	if len(failures) > 0 {
		entry.Outcome = journal.OutcomeFailed
		entry.Error = strings.Join(failures, "; ")
	}
	logger.Info().Str("file", current.File).Str("outcome", string(entry.Outcome)).
		Bool("deleted_original", entry.DeletedOriginal).Msg("completion processed")
	e.record(ctx, entry)
}

// resolve finds the current instance of a queued task: a task of the same file with the
// same original text, preferring the stored line and then the nearest one.
func (e *Executor) resolve(item model.Task) (model.Task, bool) {
	if item.IsFrontmatter() {
		return e.tasks.Get(item.ID)
	}
	var best model.Task
	found := false
	for _, t := range e.tasks.ByFile(item.File) {
		if t.OriginalText != item.OriginalText {
			continue
		}
		if t.Line == item.Line {
			return t, true
		}
		if !found || abs(t.Line-item.Line) < abs(best.Line-item.Line) {
			best, found = t, true
		}
	}
	return best, found
}

func (e *Executor) apply(ctx context.Context, current model.Task, m Mutation) error {
	switch m.Kind {
	case AppendToFile:
		return e.files.AppendWithChildren(ctx, m.File, m.Lines)
	default:
		return e.files.InsertAfter(ctx, current, m.Lines)
	}
}

func (e *Executor) record(ctx context.Context, entry journal.Entry) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(ctx, entry); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Str("completion_id", entry.ID).Msg("journal write failed")
	}
}

// leftmostGenerator returns the index of the first generating command, or -1.
func leftmostGenerator(r Registry, cmds []model.FlowCommand) int {
	for i, c := range cmds {
		if s, err := r.Lookup(c.Name); err == nil && s.Generates {
			return i
		}
	}
	return -1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
