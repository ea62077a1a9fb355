// Package vault assembles the task index, the scanner, the link resolver and the
// command executor over one directory of markdown files, and exposes the operations
// views and commands use to read and change tasks.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/metalagman/taskflow/internal/executor"
	"github.com/metalagman/taskflow/internal/model"
	"github.com/metalagman/taskflow/internal/notation"
	"github.com/metalagman/taskflow/internal/repository"
	"github.com/metalagman/taskflow/internal/scan"
	"github.com/metalagman/taskflow/internal/task"
	"github.com/metalagman/taskflow/internal/wikilink"
)

// ErrTaskNotFound is returned for an id that is not in the index.
var ErrTaskNotFound = errors.New("task not found")

// Options configures a vault.
type Options struct {
	Root           string
	Exclude        []string
	DayStartHour   int
	NotifyDebounce time.Duration
	Recorder       executor.Recorder
	Now            func() time.Time
}

// Patch changes the fields of a task. Identity and location fields are restored afterwards.
type Patch func(*model.Task)

// Vault is the entry point to an indexed vault.
type Vault struct {
	opts     Options
	repo     *repository.Repository
	store    *task.Store
	scanner  *scan.Scanner
	resolver *wikilink.Resolver
	exec     *executor.Executor

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New wires the components of a vault. Call Start to index it and run commands.
func New(opts Options) *Vault {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	exclude := repository.Exclusions(opts.Exclude)
	v := &Vault{
		opts:  opts,
		repo:  repository.New(opts.Root),
		store: task.NewStore(opts.NotifyDebounce),
	}
	v.scanner = scan.New(opts.Root, v.repo, v.store, scan.WithExclusions(exclude))
	v.resolver = wikilink.New(v.store, v.scanner.Excluded)
	execOpts := []executor.Option{executor.WithClock(opts.Now)}
	if opts.Recorder != nil {
		execOpts = append(execOpts, executor.WithRecorder(opts.Recorder))
	}
	v.exec = executor.New(v.repo, v.scanner, v.store, execOpts...)
	v.scanner.SetSink(v.exec)
	v.scanner.SetLinker(v.resolver)
	return v
}

// Start starts the executor and indexes every markdown file. Completions are only
// detected after Start returns.
func (v *Vault) Start(ctx context.Context) error {
	v.mu.Lock()
	if v.cancel != nil {
		v.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	v.cancel = cancel
	v.done = make(chan struct{})
	v.mu.Unlock()

	go func() {
		defer close(v.done)
		v.exec.Run(runCtx)
	}()

	return v.scanner.ScanAll(ctx)
}

// Close stops the executor. Queued completions that have not started are abandoned.
func (v *Vault) Close() {
	v.mu.Lock()
	cancel, done := v.cancel, v.done
	v.cancel = nil
	v.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	v.store.Close()
}

// Root returns the vault directory.
func (v *Vault) Root() string { return v.opts.Root }

// Repository returns the file repository writing this vault.
func (v *Vault) Repository() *repository.Repository { return v.repo }

// Scanner returns the vault scanner.
func (v *Vault) Scanner() *scan.Scanner { return v.scanner }

// Store returns the task index.
func (v *Vault) Store() *task.Store { return v.store }

// Tasks returns every indexed task in file and line order.
func (v *Vault) Tasks() []model.Task {
	return v.store.All()
}

// Task returns one task by id.
func (v *Vault) Task(id string) (model.Task, bool) {
	return v.store.Get(id)
}

// TasksForDate returns the tasks scheduled on or due on a YYYY-MM-DD date.
func (v *Vault) TasksForDate(date string) []model.Task {
	return v.store.TasksForDate(date, v.opts.Now())
}

// TasksForVisualDay returns the tasks shown on a day that starts at the configured hour.
func (v *Vault) TasksForVisualDay(day time.Time) []model.Task {
	return v.store.TasksForVisualDay(day, v.opts.DayStartHour, v.opts.Now())
}

// SomedayTasks returns the open tasks marked @future.
func (v *Vault) SomedayTasks() []model.Task {
	return v.store.SomedayTasks()
}

// OnChange subscribes to index changes. The returned function unsubscribes.
func (v *Vault) OnChange(fn func()) func() {
	return v.store.OnChange(fn)
}

// RequestScan queues a scan of file.
func (v *Vault) RequestScan(ctx context.Context, file string) <-chan struct{} {
	return v.scanner.RequestScan(ctx, file)
}

// WaitForScan waits until the scans queued for file have finished.
func (v *Vault) WaitForScan(ctx context.Context, file string) error {
	return v.scanner.WaitForScan(ctx, file)
}

// Drain waits until every queued completion has been processed.
func (v *Vault) Drain(ctx context.Context) error {
	return v.exec.Drain(ctx)
}

// UpdateTask applies patch to the indexed task at once, notifies subscribers (without
// debouncing when immediate is set), writes the task back to its file and rescans it.
// Only a patch that makes the task triggerable counts as a user edit, so completing a
// task here runs its commands while moving or renaming a completed one does not.
func (v *Vault) UpdateTask(ctx context.Context, id string, patch Patch, immediate bool) (model.Task, error) {
	before, ok := v.store.Get(id)
	if !ok {
		return model.Task{}, fmt.Errorf("update %s: %w", id, ErrTaskNotFound)
	}
	updated, _ := v.store.Update(id, func(t *model.Task) { patch(t) })
	v.store.Notify(immediate)

	// the file still holds the old line
	target := updated
	target.OriginalText = before.OriginalText
	local := !notation.IsTriggerable(&before) && notation.IsTriggerable(&updated)
	return updated, v.write(ctx, updated.File, local, func() error {
		return v.repo.UpdateTask(ctx, target)
	})
}

// CompleteTask marks a task done.
func (v *Vault) CompleteTask(ctx context.Context, id string) (model.Task, error) {
	return v.UpdateTask(ctx, id, func(t *model.Task) { t.Status = model.StatusDone }, true)
}

// DeleteTask removes a task and its child block from its file.
func (v *Vault) DeleteTask(ctx context.Context, id string) error {
	return v.withTask(ctx, id, "delete", v.repo.DeleteTask)
}

// DuplicateTask inserts a copy of a task and its child block below it.
func (v *Vault) DuplicateTask(ctx context.Context, id string) error {
	return v.withTask(ctx, id, "duplicate", v.repo.DuplicateTask)
}

// DuplicateTaskForWeek inserts seven open copies of a task shifted by one to seven days.
func (v *Vault) DuplicateTaskForWeek(ctx context.Context, id string) error {
	return v.withTask(ctx, id, "duplicate for week", v.repo.DuplicateTaskForWeek)
}

// AddSubtask inserts an open checkbox item as the first child of a task.
func (v *Vault) AddSubtask(ctx context.Context, id, text string) error {
	return v.withTask(ctx, id, "add subtask", func(ctx context.Context, t model.Task) error {
		return v.repo.InsertFirstChild(ctx, t, "- [ ] "+text)
	})
}

// SetProperty sets one frontmatter key of file, creating the metadata block if needed.
// The write is sync-driven: use CompleteTask to complete a frontmatter task.
func (v *Vault) SetProperty(ctx context.Context, file, key, value string) error {
	if err := v.write(ctx, file, false, func() error {
		return v.repo.SetFrontmatterKey(ctx, file, key, value)
	}); err != nil {
		return fmt.Errorf("set %s of %s: %w", key, file, err)
	}
	return nil
}

// DeleteProperty removes one frontmatter key of file. A missing key is not an error.
func (v *Vault) DeleteProperty(ctx context.Context, file, key string) error {
	if err := v.write(ctx, file, false, func() error {
		return v.repo.DeleteFrontmatterKey(ctx, file, key)
	}); err != nil {
		return fmt.Errorf("delete %s of %s: %w", key, file, err)
	}
	return nil
}

func (v *Vault) withTask(ctx context.Context, id, op string, fn func(context.Context, model.Task) error) error {
	t, ok := v.store.Get(id)
	if !ok {
		return fmt.Errorf("%s %s: %w", op, id, ErrTaskNotFound)
	}
	if err := v.write(ctx, t.File, false, func() error { return fn(ctx, t) }); err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	return nil
}

// write runs a file mutation and waits for the rescan. A local write is flagged as a
// user edit of file; any other write is sync-driven and never triggers commands.
func (v *Vault) write(ctx context.Context, file string, local bool, fn func() error) error {
	if err := v.scanner.WaitForScan(ctx, file); err != nil {
		return err
	}
	// marked on both sides of the write: a watcher scan may consume the first mark
	if local {
		v.scanner.MarkLocalEdit(file)
	}
	err := fn()
	if local {
		v.scanner.MarkLocalEdit(file)
	}
	if scanErr := v.scanner.Scan(ctx, file); err == nil {
		err = scanErr
	}
	return err
}
