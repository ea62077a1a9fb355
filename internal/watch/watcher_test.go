package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeTarget struct {
	mu      sync.Mutex
	files   []string
	scans   []string
	local   []string
	removed []string
}

func (f *fakeTarget) Excluded(file string) bool {
	return !strings.HasSuffix(strings.ToLower(file), ".md") || strings.HasPrefix(file, "Templates/")
}

func (f *fakeTarget) Files() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.files...)
}

func (f *fakeTarget) MarkLocalEdit(file string) {
	f.mu.Lock()
	f.local = append(f.local, file)
	f.mu.Unlock()
}

func (f *fakeTarget) RequestScan(_ context.Context, file string) <-chan struct{} {
	f.mu.Lock()
	f.scans = append(f.scans, file)
	f.mu.Unlock()
	return closed()
}

func (f *fakeTarget) RemoveFile(_ context.Context, file string) <-chan struct{} {
	f.mu.Lock()
	f.removed = append(f.removed, file)
	f.mu.Unlock()
	return closed()
}

func (f *fakeTarget) snapshot() (scans, local, removed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scans...), append([]string(nil), f.local...), append([]string(nil), f.removed...)
}

func closed() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type ownWrites struct {
	mu        sync.Mutex
	data      map[string]string
	forgotten []string
}

func newOwnWrites(data map[string]string) *ownWrites {
	if data == nil {
		data = make(map[string]string)
	}
	return &ownWrites{data: data}
}

func (o *ownWrites) IsOwnWrite(file string, data []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	want, ok := o.data[file]
	return ok && want == string(data)
}

func (o *ownWrites) Forget(file string) {
	o.mu.Lock()
	delete(o.data, file)
	o.forgotten = append(o.forgotten, file)
	o.mu.Unlock()
}

func (o *ownWrites) forgottenFiles() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.forgotten...)
}

func startWatcher(t *testing.T, root string, target *fakeTarget, own OwnWrites) *Watcher {
	t.Helper()
	w, err := New(root, target, own, WithDebounce(20*time.Millisecond), WithExternalEditsAreLocal(true))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func write(t *testing.T, root, file, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(file))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestWatcher_ExternalEditIsLocal(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	write(t, root, "daily.md", "- [ ] a @2026-01-15\n")
	target := &fakeTarget{}
	w, err := New(root, target, newOwnWrites(nil), WithDebounce(20*time.Millisecond), WithExternalEditsAreLocal(true))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	write(t, root, "daily.md", "- [x] a @2026-01-15\n")
	require.Eventually(t, func() bool {
		scans, local, _ := target.snapshot()
		return len(scans) == 1 && len(local) == 1
	}, 2*time.Second, 10*time.Millisecond)

	scans, local, _ := target.snapshot()
	assert.Equal(t, []string{"daily.md"}, scans)
	assert.Equal(t, []string{"daily.md"}, local)
	assert.Equal(t, 1, w.Stats().LocalEdits)
	w.Stop()
}

func TestWatcher_OwnWriteIsSyncDriven(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	target := &fakeTarget{}
	own := newOwnWrites(map[string]string{"notes/a.md": "- [ ] mine @2026-01-15\n"})
	write(t, root, "notes/keep.md", "")
	w := startWatcher(t, root, target, own)

	write(t, root, "notes/a.md", "- [ ] mine @2026-01-15\n")
	require.Eventually(t, func() bool {
		return w.Stats().Scans == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, local, _ := target.snapshot()
	assert.Empty(t, local)
	assert.Equal(t, 1, w.Stats().OwnWrites)
}

func TestWatcher_IgnoresHiddenAndExcluded(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".obsidian"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Templates"), 0o755))
	target := &fakeTarget{}
	startWatcher(t, root, target, nil)

	write(t, root, ".obsidian/workspace.md", "x")
	write(t, root, "Templates/day.md", "x")
	write(t, root, "image.png", "x")
	write(t, root, "real.md", "x")

	require.Eventually(t, func() bool {
		scans, _, _ := target.snapshot()
		return len(scans) == 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	scans, _, _ := target.snapshot()
	assert.Equal(t, []string{"real.md"}, scans)
}

func TestWatcher_RemoveAndNewDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write(t, root, "gone.md", "x")
	write(t, root, "old/one.md", "x")
	target := &fakeTarget{files: []string{"gone.md", "old/one.md"}}
	startWatcher(t, root, target, nil)

	require.NoError(t, os.Remove(filepath.Join(root, "gone.md")))
	require.NoError(t, os.RemoveAll(filepath.Join(root, "old")))
	require.Eventually(t, func() bool {
		_, _, removed := target.snapshot()
		return slices.Contains(removed, "gone.md") && slices.Contains(removed, "old/one.md")
	}, 2*time.Second, 10*time.Millisecond)

	write(t, root, "Projects/Q1/plan.md", "x")
	require.Eventually(t, func() bool {
		scans, _, _ := target.snapshot()
		return slices.Contains(scans, "Projects/Q1/plan.md")
	}, 2*time.Second, 10*time.Millisecond)

	_, _, removed := target.snapshot()
	assert.NotContains(t, removed, "Projects/Q1/plan.md")
}

func TestWatcher_RemovalForgetsOwnWrite(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	const content = "- [x] Pay rent @2026-01-15\n"
	write(t, root, "Note.MD", content)
	own := newOwnWrites(map[string]string{"Note.MD": content})
	target := &fakeTarget{files: []string{"Note.MD"}}
	w := startWatcher(t, root, target, own)

	require.NoError(t, os.Remove(filepath.Join(root, "Note.MD")))
	require.Eventually(t, func() bool {
		_, _, removed := target.snapshot()
		return slices.Contains(removed, "Note.MD")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, own.forgottenFiles(), "Note.MD")

	// the same bytes written back by another program are an external edit
	write(t, root, "Note.MD", content)
	require.Eventually(t, func() bool {
		_, local, _ := target.snapshot()
		return slices.Contains(local, "Note.MD")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, w.Stats().OwnWrites)
}
