package journal

import (
	"context"
	"fmt"
	"time"
)

// RetentionPolicy controls journal cleanup.
type RetentionPolicy struct {
	KeepLast int
	KeepDays int
}

// PruneResult summarizes a prune operation.
type PruneResult struct {
	Considered int
	Kept       int
	Deleted    int
}

// Prune deletes entries outside the retention policy. An entry is kept when it is among
// the newest KeepLast or younger than KeepDays. With both limits unset nothing is deleted.
func (s *Store) Prune(ctx context.Context, policy RetentionPolicy, dryRun bool) (PruneResult, error) {
	if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
		return PruneResult{}, nil
	}
	cutoff := time.Time{}
	if policy.KeepDays > 0 {
		cutoff = s.now().UTC().Add(-time.Duration(policy.KeepDays) * 24 * time.Hour)
	}
	entries, err := s.List(ctx, 0)
	if err != nil {
		return PruneResult{}, err
	}

	res := PruneResult{Considered: len(entries)}
	for idx, e := range entries {
		keep := policy.KeepLast > 0 && idx < policy.KeepLast
		if !keep && policy.KeepDays > 0 {
			keep = e.CreatedAt.IsZero() || e.CreatedAt.After(cutoff)
		}
		if keep {
			res.Kept++
			continue
		}
		if !dryRun {
			if _, err := s.db.ExecContext(ctx, `DELETE FROM completions WHERE id=?`, e.ID); err != nil {
				return res, fmt.Errorf("delete completion %s: %w", e.ID, err)
			}
		}
		res.Deleted++
	}
	return res, nil
}
