package task

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/taskflow/internal/model"
)

func newTask(file string, line int, content string) model.Task {
	return model.Task{
		ID:      model.TaskID(file, line),
		File:    file,
		Line:    line,
		Content: content,
		Status:  model.StatusOpen,
	}
}

func TestStore_SetGetDelete(t *testing.T) {
	t.Parallel()

	s := NewStore(0)
	task := newTask("a.md", 2, "Write")
	task.Commands = []model.FlowCommand{{Name: "repeat", Args: []string{"daily"}}}
	s.Set(task)

	got, ok := s.Get("a.md:2")
	require.True(t, ok)
	assert.Equal(t, "Write", got.Content)

	got.Commands[0].Args[0] = "weekly"
	again, _ := s.Get("a.md:2")
	assert.Equal(t, "daily", again.Commands[0].Args[0], "reads return copies")

	assert.True(t, s.Delete("a.md:2"))
	assert.False(t, s.Delete("a.md:2"))
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Files())
}

func TestStore_ReplaceFile(t *testing.T) {
	t.Parallel()

	s := NewStore(0)
	s.Set(newTask("a.md", 0, "old"))
	s.Set(newTask("a.md", 5, "old too"))
	s.Set(newTask("b.md", 1, "other"))

	s.ReplaceFile("a.md", []model.Task{newTask("a.md", 3, "new")})

	got := s.ByFile("a.md")
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Content)
	assert.Len(t, s.ByFile("b.md"), 1)
	assert.Equal(t, []string{"a.md", "b.md"}, s.Files())

	assert.Equal(t, 1, s.RemoveTasksByFile("a.md"))
	assert.Equal(t, 1, s.Len())
}

func TestStore_AllOrdersByLocation(t *testing.T) {
	t.Parallel()

	s := NewStore(0)
	s.Set(newTask("b.md", 0, "b0"))
	s.Set(newTask("a.md", 10, "a10"))
	s.Set(newTask("a.md", 2, "a2"))

	var got []string
	for _, task := range s.All() {
		got = append(got, task.Content)
	}
	assert.Equal(t, []string{"a2", "a10", "b0"}, got)
}

func TestStore_UpdateKeepsIdentity(t *testing.T) {
	t.Parallel()

	s := NewStore(0)
	s.Set(newTask("a.md", 1, "before"))

	updated, ok := s.Update("a.md:1", func(t *model.Task) {
		t.Content = "after"
		t.Line = 99
	})
	require.True(t, ok)
	assert.Equal(t, "after", updated.Content)
	assert.Equal(t, 1, updated.Line)

	_, ok = s.Update("missing:0", func(*model.Task) {})
	assert.False(t, ok)
}

func TestStore_Mutate(t *testing.T) {
	t.Parallel()

	s := NewStore(0)
	s.Set(newTask("a.md", 0, "parent"))
	s.Set(newTask("b.md", -1, "child"))

	s.Mutate(func(tx Tx) {
		parent, _ := tx.Task("a.md:0")
		child, _ := tx.Task("b.md:-1")
		parent.ChildIDs = append(parent.ChildIDs, child.ID)
		child.ParentID = parent.ID
		assert.Len(t, tx.Tasks(), 2)
	})

	child, _ := s.Get("b.md:-1")
	assert.Equal(t, "a.md:0", child.ParentID)
}

func TestStore_TasksForDate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	s := NewStore(0)

	single := newTask("a.md", 0, "single")
	single.StartDate = "2026-01-15"
	span := newTask("a.md", 1, "span")
	span.StartDate, span.EndDate = "2026-01-14", "2026-01-16"
	due := newTask("a.md", 2, "due")
	due.Deadline = "2026-01-15"
	implicit := newTask("a.md", 3, "implicit")
	implicit.EndDate = "2026-01-22"
	someday := newTask("a.md", 4, "someday")
	someday.IsFuture = true
	for _, task := range []model.Task{single, span, due, implicit, someday} {
		s.Set(task)
	}

	contents := func(tasks []model.Task) []string {
		var out []string
		for _, task := range tasks {
			out = append(out, task.Content)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"single", "span", "due"}, contents(s.TasksForDate("2026-01-15", now)))
	assert.ElementsMatch(t, []string{"implicit"}, contents(s.TasksForDate("2026-01-21", now)))
	assert.Empty(t, s.TasksForDate("not-a-date", now))
	assert.Equal(t, []string{"someday"}, contents(s.SomedayTasks()))
}

func TestStore_TasksForVisualDay(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	s := NewStore(0)

	late := newTask("a.md", 0, "late night")
	late.StartDate, late.StartTime = "2026-01-16", "02:00"
	early := newTask("a.md", 1, "early morning")
	early.StartDate, early.StartTime = "2026-01-15", "03:00"
	allDay := newTask("a.md", 2, "all day")
	allDay.StartDate = "2026-01-15"
	for _, task := range []model.Task{late, early, allDay} {
		s.Set(task)
	}

	got := s.TasksForVisualDay(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), 4, now)
	var contents []string
	for _, task := range got {
		contents = append(contents, task.Content)
	}
	assert.Equal(t, []string{"all day", "late night"}, contents)
}

func TestBroadcaster_DebouncesBursts(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(20 * time.Millisecond)
	defer b.Close()
	var calls atomic.Int32
	b.Subscribe(func() { calls.Add(1) })

	for i := 0; i < 10; i++ {
		b.Notify(false)
	}
	assert.True(t, b.Pending())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, b.Pending())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBroadcaster_ImmediateBypassesPending(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(time.Hour)
	defer b.Close()
	var calls atomic.Int32
	unsubscribe := b.Subscribe(func() { calls.Add(1) })

	b.Notify(false)
	b.Notify(true)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, b.Pending())

	unsubscribe()
	b.Notify(true)
	assert.Equal(t, int32(1), calls.Load())
}
