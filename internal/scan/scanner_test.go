package scan

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/taskflow/internal/model"
	"github.com/metalagman/taskflow/internal/repository"
	"github.com/metalagman/taskflow/internal/task"
)

type recordingSink struct {
	mu    sync.Mutex
	tasks []model.Task
}

func (r *recordingSink) Enqueue(t model.Task) {
	r.mu.Lock()
	r.tasks = append(r.tasks, t)
	r.mu.Unlock()
}

func (r *recordingSink) take() []model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.tasks
	r.tasks = nil
	return out
}

type harness struct {
	root    string
	store   *task.Store
	sink    *recordingSink
	scanner *Scanner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	store := task.NewStore(0)
	sink := &recordingSink{}
	sc := New(root, repository.New(root), store,
		WithSink(sink),
		WithExclusions(repository.Exclusions{"Templates/"}))
	return &harness{root: root, store: store, sink: sink, scanner: sc}
}

func (h *harness) write(t *testing.T, file, content string) {
	t.Helper()
	abs := filepath.Join(h.root, filepath.FromSlash(file))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func (h *harness) localEdit(t *testing.T, file, content string) {
	t.Helper()
	h.write(t, file, content)
	h.scanner.MarkLocalEdit(file)
	require.NoError(t, h.scanner.Scan(context.Background(), file))
}

func TestExtract_NestingAndInheritance(t *testing.T) {
	t.Parallel()

	lines := []string{
		"---",
		"start: 2026-01-10",
		"---",
		"- [ ] Parent @2026-01-15",
		"\t- note with [[Linked Note]]",
		"\t\t- [ ] Deep @09:00>10:00",
		"\t- [ ] Child @2026-01-16 ==> next()",
		"- plain checklist",
		"- [ ] Sibling @11:00",
	}
	tasks := Extract("day.md", lines)
	require.Len(t, tasks, 5)

	fm, parent, deep, child, sibling := tasks[0], tasks[1], tasks[2], tasks[3], tasks[4]
	assert.Equal(t, "day.md:-1", fm.ID)
	assert.Equal(t, "day.md:3", parent.ID)
	assert.Equal(t, []string{"day.md:5", "day.md:6"}, parent.ChildIDs)
	assert.Equal(t, []string{"Linked Note"}, parent.LinkTargets)
	assert.Equal(t, lines[4:7], parent.ChildLines)

	assert.Equal(t, "day.md:3", deep.ParentID)
	assert.Equal(t, "2026-01-15", deep.StartDate)
	assert.Equal(t, "2026-01-15", deep.EndDate)
	assert.True(t, deep.StartDateInherited)

	assert.Equal(t, "2026-01-16", child.StartDate)
	assert.False(t, child.StartDateInherited)

	assert.Empty(t, sibling.ParentID)
	assert.Empty(t, sibling.StartDate, "top-level tasks inherit nothing")
}

func TestSignatureAndDiff(t *testing.T) {
	t.Parallel()

	mk := func(line int, status rune) model.Task {
		return model.Task{
			ID: model.TaskID("a.md", line), File: "a.md", Line: line,
			Content: "Water plants", Status: status, StartDate: "2026-01-15",
			Commands: []model.FlowCommand{{Name: "repeat", Args: []string{"daily"}}},
		}
	}
	tasks := []model.Task{mk(0, 'x'), mk(1, ' '), mk(2, 'x'), mk(3, '-')}
	assert.Equal(t, "a.md|2026-01-15|Water plants|repeat(daily)", Signature(&tasks[0]))

	cur := Count(tasks)
	assert.Equal(t, map[string]int{"a.md|2026-01-15|Water plants|repeat(daily)": 3}, cur)

	prev := map[string]int{"a.md|2026-01-15|Water plants|repeat(daily)": 1}
	got := Diff(tasks, prev, cur)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Line)
	assert.Equal(t, 3, got[1].Line)

	assert.Empty(t, Diff(tasks, cur, cur))

	undated := mk(0, 'x')
	undated.StartDate = ""
	assert.Equal(t, "a.md|no-date|Water plants|repeat(daily)", Signature(&undated))
}

func TestScanner_IdempotentScan(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.write(t, "a.md", "- [x] Done @2026-01-15 ==> repeat(daily)\n- [ ] Open @2026-01-16\n")
	require.NoError(t, h.scanner.ScanAll(ctx))
	first := h.store.All()

	h.scanner.MarkLocalEdit("a.md")
	require.NoError(t, h.scanner.Scan(ctx, "a.md"))
	if diff := cmp.Diff(first, h.store.All()); diff != "" {
		t.Fatalf("second scan changed the store (-first +second):\n%s", diff)
	}
	assert.Empty(t, h.sink.take())
}

func TestScanner_ExactlyOnceTrigger(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	open := "- [ ] Pay rent @2026-01-15 ==> repeat(monthly)\n"
	done := "- [x] Pay rent @2026-01-15 ==> repeat(monthly)\n"

	h.write(t, "rent.md", open+open)
	require.NoError(t, h.scanner.ScanAll(ctx))
	assert.Empty(t, h.sink.take(), "initial load never fires")

	h.localEdit(t, "rent.md", done+done)
	got := h.sink.take()
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Line)
	assert.Equal(t, 1, got[1].Line)

	h.localEdit(t, "rent.md", done+done)
	assert.Empty(t, h.sink.take(), "no further change, no completion")
}

func TestScanner_GateRequiresLocalEditAndLoad(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	open := "- [ ] A @2026-01-15 ==> next()\n"
	done := "- [x] A @2026-01-15 ==> next()\n"

	// before the initial load: not fired even for a local edit
	h.write(t, "a.md", open)
	require.NoError(t, h.scanner.Scan(ctx, "a.md"))
	h.localEdit(t, "a.md", done)
	assert.Empty(t, h.sink.take())

	h.scanner.MarkLoaded()

	// sync-driven rewrite: index updates, nothing fires
	h.write(t, "a.md", open)
	require.NoError(t, h.scanner.Scan(ctx, "a.md"))
	h.write(t, "a.md", done)
	require.NoError(t, h.scanner.Scan(ctx, "a.md"))
	assert.Empty(t, h.sink.take())
	stored, ok := h.store.Get("a.md:0")
	require.True(t, ok)
	assert.Equal(t, model.StatusDone, stored.Status)

	// first scan of a new file: nothing fires
	h.localEdit(t, "b.md", done)
	assert.Empty(t, h.sink.take())
}

func TestScanner_RemoveFileAndExclusions(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.write(t, "a.md", "- [ ] A @2026-01-15\n")
	h.write(t, "Templates/t.md", "- [ ] Template @2026-01-15\n")
	h.write(t, ".obsidian/x.md", "- [ ] Hidden @2026-01-15\n")
	h.write(t, "notes.txt", "- [ ] Not markdown @2026-01-15\n")
	require.NoError(t, h.scanner.ScanAll(ctx))
	assert.Equal(t, []string{"a.md"}, h.store.Files())

	require.NoError(t, os.Remove(filepath.Join(h.root, "a.md")))
	<-h.scanner.RemoveFile(ctx, "a.md")
	assert.Equal(t, 0, h.store.Len())
	assert.Empty(t, h.scanner.Files())
}

func TestScanner_SerializesPerPath(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.write(t, "a.md", "- [ ] A @2026-01-15\n")

	var chans []<-chan struct{}
	for i := 0; i < 10; i++ {
		chans = append(chans, h.scanner.RequestScan(ctx, "a.md"))
	}
	assert.True(t, h.scanner.Busy("a.md") || h.store.Len() == 1)
	require.NoError(t, h.scanner.WaitForScan(ctx, "a.md"))
	for _, ch := range chans {
		select {
		case <-ch:
		default:
			t.Fatal("earlier scan still pending after WaitForScan returned")
		}
	}
	assert.False(t, h.scanner.Busy("a.md"))
	assert.Equal(t, 1, h.store.Len())
}
