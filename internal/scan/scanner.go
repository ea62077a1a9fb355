// Package scan keeps the task index in sync with vault files and detects completions.
//
// Scans of one file are serialized in request order; different files scan
// concurrently. Each scan diffs per-signature occurrence counts against the
// previous scan of the same file, and newly completed occurrences are handed to
// a CompletionSink only when the file was scanned before, the initial vault load
// has finished and the change was flagged as a local edit.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/metalagman/taskflow/internal/model"
	"github.com/metalagman/taskflow/internal/repository"
	"github.com/metalagman/taskflow/internal/task"
)

// DefaultConcurrency bounds the fan-out of ScanAll.
const DefaultConcurrency = 8

// CompletionSink receives newly completed task occurrences.
type CompletionSink interface {
	Enqueue(t model.Task)
}

// Linker rewires cross-file edges after the index changed.
type Linker interface {
	Resolve(files []string)
}

// Reader reads the lines of a vault file.
type Reader interface {
	ReadLines(ctx context.Context, file string) ([]string, error)
}

// Scanner indexes vault files into a task store.
type Scanner struct {
	root    string
	reader  Reader
	store   *task.Store
	exclude repository.Exclusions

	sink   CompletionSink
	linker Linker

	mu         sync.Mutex
	tails      map[string]chan struct{}
	baselines  map[string]map[string]int
	localEdits map[string]bool
	files      map[string]struct{}

	loaded atomic.Bool
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithSink routes detected completions to sink.
func WithSink(sink CompletionSink) Option {
	return func(s *Scanner) { s.sink = sink }
}

// WithLinker runs linker after every scan once the initial load is done.
func WithLinker(linker Linker) Option {
	return func(s *Scanner) { s.linker = linker }
}

// WithExclusions skips matching paths.
func WithExclusions(ex repository.Exclusions) Option {
	return func(s *Scanner) { s.exclude = ex }
}

// New creates a scanner over the vault at root.
func New(root string, reader Reader, store *task.Store, opts ...Option) *Scanner {
	s := &Scanner{
		root:       root,
		reader:     reader,
		store:      store,
		tails:      make(map[string]chan struct{}),
		baselines:  make(map[string]map[string]int),
		localEdits: make(map[string]bool),
		files:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSink attaches the completion sink after construction.
func (s *Scanner) SetSink(sink CompletionSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// SetLinker replaces the link resolver run after scans.
func (s *Scanner) SetLinker(linker Linker) {
	s.mu.Lock()
	s.linker = linker
	s.mu.Unlock()
}

// Excluded reports whether file is never indexed.
func (s *Scanner) Excluded(file string) bool {
	return !strings.HasSuffix(strings.ToLower(file), ".md") || s.exclude.Match(file)
}

// Loaded reports whether the initial vault scan has finished.
func (s *Scanner) Loaded() bool {
	return s.loaded.Load()
}

// MarkLoaded flags the initial load as finished.
func (s *Scanner) MarkLoaded() {
	s.loaded.Store(true)
}

// MarkLocalEdit flags the next scan of file as caused by a direct user edit.
func (s *Scanner) MarkLocalEdit(file string) {
	s.mu.Lock()
	s.localEdits[file] = true
	s.mu.Unlock()
}

// RequestScan queues a scan of file behind any scan already queued for it. The returned
// channel is closed when this scan has finished.
func (s *Scanner) RequestScan(ctx context.Context, file string) <-chan struct{} {
	s.mu.Lock()
	prev := s.tails[file]
	done := make(chan struct{})
	s.tails[file] = done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			if s.tails[file] == done {
				delete(s.tails, file)
			}
			s.mu.Unlock()
			close(done)
		}()
		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				return
			}
		}
		if err := s.scanFile(ctx, file); err != nil {
			log.Error().Err(err).Str("file", file).Msg("scan failed")
		}
	}()
	return done
}

// Scan queues a scan of file and waits for it.
func (s *Scanner) Scan(ctx context.Context, file string) error {
	select {
	case <-s.RequestScan(ctx, file):
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitForScan blocks until every scan queued for file so far has finished.
func (s *Scanner) WaitForScan(ctx context.Context, file string) error {
	s.mu.Lock()
	tail := s.tails[file]
	s.mu.Unlock()
	if tail == nil {
		return nil
	}
	select {
	case <-tail:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Busy reports whether a scan of file is queued or running.
func (s *Scanner) Busy(file string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tails[file]
	return ok
}

// RemoveFile drops a removed file from the index. It is serialized with scans of the same path.
func (s *Scanner) RemoveFile(ctx context.Context, file string) <-chan struct{} {
	return s.RequestScan(ctx, file)
}

// Files returns every indexed markdown path.
func (s *Scanner) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.files))
	for f := range s.files {
		out = append(out, f)
	}
	return out
}

func (s *Scanner) scanFile(ctx context.Context, file string) error {
	if s.Excluded(file) {
		return nil
	}
	lines, err := s.reader.ReadLines(ctx, file)
	if errors.Is(err, repository.ErrFileNotFound) {
		s.drop(file)
		return nil
	}
	if err != nil {
		return err
	}

	tasks := Extract(file, lines)
	counts := Count(tasks)

	s.mu.Lock()
	prev, seen := s.baselines[file]
	local := s.localEdits[file]
	delete(s.localEdits, file)
	s.baselines[file] = counts
	s.files[file] = struct{}{}
	sink := s.sink
	s.mu.Unlock()

	var completed []model.Task
	if seen && s.loaded.Load() && local {
		completed = Diff(tasks, prev, counts)
	}

	s.store.ReplaceFile(file, tasks)
	s.relink()
	s.store.Notify(false)

	log.Debug().Str("file", file).Int("tasks", len(tasks)).Int("completed", len(completed)).
		Bool("local", local).Bool("first", !seen).Msg("file scanned")

	if sink != nil {
		for _, t := range completed {
			sink.Enqueue(t)
		}
	}
	return nil
}

func (s *Scanner) drop(file string) {
	s.mu.Lock()
	delete(s.files, file)
	delete(s.localEdits, file)
	s.mu.Unlock()
	// the baseline survives so a file saved through delete-and-recreate is not a first scan
	if n := s.store.RemoveTasksByFile(file); n > 0 {
		log.Debug().Str("file", file).Int("tasks", n).Msg("file removed from index")
	}
	s.relink()
	s.store.Notify(false)
}

func (s *Scanner) relink() {
	s.mu.Lock()
	linker := s.linker
	s.mu.Unlock()
	if linker == nil || !s.loaded.Load() {
		return
	}
	linker.Resolve(s.Files())
}

// ScanAll indexes every markdown file of the vault, marks the initial load as done and
// resolves cross-file links once.
func (s *Scanner) ScanAll(ctx context.Context) error {
	var files []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !s.Excluded(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk vault: %w", err)
	}

	stale := make(map[string]struct{})
	for _, f := range s.store.Files() {
		stale[f] = struct{}{}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(DefaultConcurrency)
	for _, f := range files {
		f := f
		delete(stale, f)
		eg.Go(func() error {
			return s.Scan(egCtx, f)
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("scan vault: %w", err)
	}
	for f := range stale {
		s.drop(f)
	}

	s.MarkLoaded()
	s.relink()
	s.store.Notify(true)
	log.Info().Int("files", len(files)).Int("tasks", s.store.Len()).Msg("vault indexed")
	return nil
}
