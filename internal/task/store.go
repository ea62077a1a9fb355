// Package task holds the in-memory task index and its change notifications.
package task

import (
	"sort"
	"sync"
	"time"

	"github.com/metalagman/taskflow/internal/model"
)

// Store is the in-memory task index keyed by task id.
// Reads return copies; writers replace whole entries.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
	files map[string]map[string]struct{}

	bc *Broadcaster
}

// NewStore creates an empty store whose change notifications are coalesced over debounce.
func NewStore(debounce time.Duration) *Store {
	return &Store{
		tasks: make(map[string]*model.Task),
		files: make(map[string]map[string]struct{}),
		bc:    NewBroadcaster(debounce),
	}
}

// Get returns a copy of the task with the given id.
func (s *Store) Get(id string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, false
	}
	return t.Clone(), true
}

// Set inserts or replaces a task.
func (s *Store) Set(t model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(t.Clone())
}

func (s *Store) setLocked(t model.Task) {
	if prev, ok := s.tasks[t.ID]; ok && prev.File != t.File {
		s.unindexLocked(prev.File, prev.ID)
	}
	s.tasks[t.ID] = &t
	ids, ok := s.files[t.File]
	if !ok {
		ids = make(map[string]struct{})
		s.files[t.File] = ids
	}
	ids[t.ID] = struct{}{}
}

// Delete removes a task and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	delete(s.tasks, id)
	s.unindexLocked(t.File, id)
	return true
}

func (s *Store) unindexLocked(file, id string) {
	ids := s.files[file]
	delete(ids, id)
	if len(ids) == 0 {
		delete(s.files, file)
	}
}

// Len returns the number of indexed tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// All returns copies of every task ordered by file and line.
func (s *Store) All() []model.Task {
	s.mu.RLock()
	out := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()
	SortByLocation(out)
	return out
}

// ByFile returns copies of the tasks of one file ordered by line.
func (s *Store) ByFile(file string) []model.Task {
	s.mu.RLock()
	ids := s.files[file]
	out := make([]model.Task, 0, len(ids))
	for id := range ids {
		out = append(out, s.tasks[id].Clone())
	}
	s.mu.RUnlock()
	SortByLocation(out)
	return out
}

// Files returns the paths that currently hold at least one task.
func (s *Store) Files() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.files))
	for f := range s.files {
		out = append(out, f)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// ReplaceFile swaps all entries of a file for the given tasks in one step.
func (s *Store) ReplaceFile(file string, tasks []model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeFileLocked(file)
	for _, t := range tasks {
		s.setLocked(t.Clone())
	}
}

// RemoveTasksByFile drops every task of a file and returns how many were removed.
func (s *Store) RemoveTasksByFile(file string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeFileLocked(file)
}

func (s *Store) removeFileLocked(file string) int {
	ids := s.files[file]
	for id := range ids {
		delete(s.tasks, id)
	}
	delete(s.files, file)
	return len(ids)
}

// Update applies fn to the stored task in place. Identity fields are restored after fn runs.
func (s *Store) Update(id string, fn func(*model.Task)) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, false
	}
	file, line := t.File, t.Line
	fn(t)
	t.ID, t.File, t.Line = id, file, line
	return t.Clone(), true
}

// Tx is the view of the store handed to Mutate. Tasks returned by it may be modified in place.
type Tx struct {
	s *Store
}

// Task returns the live task with the given id.
func (tx Tx) Task(id string) (*model.Task, bool) {
	t, ok := tx.s.tasks[id]
	return t, ok
}

// Tasks returns the live tasks ordered by file and line.
func (tx Tx) Tasks() []*model.Task {
	out := make([]*model.Task, 0, len(tx.s.tasks))
	for _, t := range tx.s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return lessLocation(out[i], out[j]) })
	return out
}

// Mutate runs fn with exclusive access to the live task table.
func (s *Store) Mutate(fn func(Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(Tx{s: s})
}

// OnChange subscribes fn to change notifications and returns the unsubscribe handle.
func (s *Store) OnChange(fn func()) func() {
	return s.bc.Subscribe(fn)
}

// Notify signals subscribers that the index changed. Unless immediate, bursts are coalesced.
func (s *Store) Notify(immediate bool) {
	s.bc.Notify(immediate)
}

// Close cancels a pending notification.
func (s *Store) Close() {
	s.bc.Close()
}

// SortByLocation orders tasks by file, then line.
func SortByLocation(tasks []model.Task) {
	sort.Slice(tasks, func(i, j int) bool { return lessLocation(&tasks[i], &tasks[j]) })
}

func lessLocation(a, b *model.Task) bool {
	if a.File != b.File {
		return a.File < b.File
	}
	return a.Line < b.Line
}
