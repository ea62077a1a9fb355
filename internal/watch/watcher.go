// Package watch turns file system events under the vault into scans.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Target receives the settled events.
type Target interface {
	Excluded(file string) bool
	Files() []string
	MarkLocalEdit(file string)
	RequestScan(ctx context.Context, file string) <-chan struct{}
	RemoveFile(ctx context.Context, file string) <-chan struct{}
}

// OwnWrites tells the watcher which file contents were written by the process itself.
type OwnWrites interface {
	IsOwnWrite(file string, data []byte) bool
	Forget(file string)
}

// Stats counts what the watcher did with settled events.
type Stats struct {
	Scans      int
	LocalEdits int
	OwnWrites  int
	Removals   int
	Errors     int
}

// Watcher watches a vault tree recursively. Events are debounced per path.
type Watcher struct {
	root          string
	target        Target
	own           OwnWrites
	debounce      time.Duration
	externalLocal bool

	fsw     *fsnotify.Watcher
	mu      sync.Mutex
	pending map[string]time.Time
	stats   Stats
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a path must be quiet before it is processed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithExternalEditsAreLocal marks every change not written by this process as a local
// edit, so completions made in other editors run their commands.
func WithExternalEditsAreLocal(on bool) Option {
	return func(w *Watcher) { w.externalLocal = on }
}

// New creates a watcher for root. Call Start to begin watching.
func New(root string, target Target, own OwnWrites, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     root,
		target:   target,
		own:      own,
		debounce: 150 * time.Millisecond,
		fsw:      fsw,
		pending:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start adds every non-hidden directory of the vault and starts the event loop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	go w.run(ctx)
	log.Info().Str("vault", w.root).Dur("debounce", w.debounce).Msg("watching vault")
	return nil
}

// Stop stops the event loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.fsw.Close(); err != nil {
		log.Error().Err(err).Msg("close watcher")
	}
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			log.Warn().Err(err).Str("dir", p).Msg("watch directory")
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("watcher error")
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	rel, ok := w.rel(event.Name)
	if !ok {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if hidden(filepath.Base(event.Name)) {
				return
			}
			if err := w.addTree(event.Name); err != nil {
				log.Warn().Err(err).Str("dir", rel).Msg("watch new directory")
			}
			w.queueTree(event.Name)
			return
		}
	}
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && !strings.EqualFold(path.Ext(rel), ".md") {
		// a removed directory takes its indexed files with it
		w.removeUnder(rel)
		return
	}
	if w.target.Excluded(rel) {
		return
	}
	w.mu.Lock()
	w.pending[rel] = time.Now()
	w.mu.Unlock()
}

// queueTree queues the markdown files of a directory that appeared after the watch started.
func (w *Watcher) queueTree(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if rel, ok := w.rel(p); ok && !w.target.Excluded(rel) {
			w.mu.Lock()
			w.pending[rel] = time.Now()
			w.mu.Unlock()
		}
		return nil
	})
}

func (w *Watcher) removeUnder(dir string) {
	prefix := dir + "/"
	for _, f := range w.target.Files() {
		if strings.HasPrefix(f, prefix) {
			w.mu.Lock()
			w.pending[f] = time.Now()
			w.mu.Unlock()
		}
	}
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for p, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			settled = append(settled, p)
			delete(w.pending, p)
		}
	}
	w.mu.Unlock()

	for _, p := range settled {
		w.process(ctx, p)
	}
}

func (w *Watcher) process(ctx context.Context, file string) {
	data, err := os.ReadFile(filepath.Join(w.root, filepath.FromSlash(file)))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		w.count(func(s *Stats) { s.Removals++ })
		log.Debug().Str("file", file).Msg("file removed")
		// a file recreated with the last written content is an external edit
		if w.own != nil {
			w.own.Forget(file)
		}
		w.target.RemoveFile(ctx, file)
		return
	case err != nil:
		w.count(func(s *Stats) { s.Errors++ })
		log.Error().Err(err).Str("file", file).Msg("read changed file")
		return
	}

	switch {
	case w.own != nil && w.own.IsOwnWrite(file, data):
		w.count(func(s *Stats) { s.OwnWrites++ })
	case w.externalLocal:
		w.count(func(s *Stats) { s.LocalEdits++ })
		w.target.MarkLocalEdit(file)
	}
	w.count(func(s *Stats) { s.Scans++ })
	w.target.RequestScan(ctx, file)
}

func (w *Watcher) count(fn func(*Stats)) {
	w.mu.Lock()
	fn(&w.stats)
	w.mu.Unlock()
}

func (w *Watcher) rel(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	for _, seg := range strings.Split(rel, "/") {
		if hidden(seg) {
			return "", false
		}
	}
	return rel, true
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
