package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, Entry{
		ID: "a", CreatedAt: base, File: "daily.md", Line: 3, Content: "Pay rent",
		Commands: "repeat(monthly)", Outcome: OutcomeExecuted,
	}))
	require.NoError(t, s.Record(ctx, Entry{
		ID: "b", CreatedAt: base.Add(time.Minute), File: "inbox.md", Line: 1, Content: "Ship",
		Commands: "move([[Projects/Q1]])", Outcome: OutcomeExecuted, DeletedOriginal: true,
	}))
	require.NoError(t, s.Record(ctx, Entry{
		ID: "c", CreatedAt: base.Add(2 * time.Minute), File: "inbox.md", Line: 1,
		Outcome: OutcomeDropped,
	}))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)
	assert.True(t, all[1].DeletedOriginal)
	assert.Equal(t, OutcomeDropped, all[0].Outcome)
	assert.True(t, base.Equal(all[2].CreatedAt))

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestOpenExistingJournal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, Entry{ID: "kept", File: "a.md", Outcome: OutcomeExecuted}))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	var mode string
	require.NoError(t, reopened.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	got, err := reopened.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].ID)
}

func TestRecordDefaultsCreatedAt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.Record(ctx, Entry{ID: "x", File: "a.md", Outcome: OutcomeFailed, Error: "boom"}))
	got, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, fixed.Equal(got[0].CreatedAt))
	assert.Equal(t, "boom", got[0].Error)
}

func TestRecordDuplicateID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Record(ctx, Entry{ID: "dup", File: "a.md", Outcome: OutcomeExecuted}))
	if err := s.Record(ctx, Entry{ID: "dup", File: "a.md", Outcome: OutcomeExecuted}); err == nil {
		t.Fatalf("expected duplicate id to fail")
	}
}

func TestPrune(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	seed := func(t *testing.T) *Store {
		s := openTestStore(t)
		s.now = func() time.Time { return now }
		for i, id := range []string{"d40", "d20", "d10", "d1"} {
			age := []int{40, 20, 10, 1}[i]
			require.NoError(t, s.Record(ctx, Entry{
				ID: id, CreatedAt: now.AddDate(0, 0, -age), File: "a.md", Outcome: OutcomeExecuted,
			}))
		}
		return s
	}

	tests := []struct {
		name    string
		policy  RetentionPolicy
		dryRun  bool
		deleted int
		left    []string
	}{
		{name: "no policy", policy: RetentionPolicy{}, deleted: 0, left: []string{"d1", "d10", "d20", "d40"}},
		{name: "keep last", policy: RetentionPolicy{KeepLast: 2}, deleted: 2, left: []string{"d1", "d10"}},
		{name: "keep days", policy: RetentionPolicy{KeepDays: 15}, deleted: 2, left: []string{"d1", "d10"}},
		{name: "either keeps", policy: RetentionPolicy{KeepLast: 3, KeepDays: 5}, deleted: 1, left: []string{"d1", "d10", "d20"}},
		{name: "dry run", policy: RetentionPolicy{KeepLast: 1}, dryRun: true, deleted: 3, left: []string{"d1", "d10", "d20", "d40"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := seed(t)
			res, err := s.Prune(ctx, tc.policy, tc.dryRun)
			require.NoError(t, err)
			assert.Equal(t, tc.deleted, res.Deleted)

			left, err := s.List(ctx, 0)
			require.NoError(t, err)
			ids := make([]string, 0, len(left))
			for _, e := range left {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tc.left, ids)
		})
	}
}
