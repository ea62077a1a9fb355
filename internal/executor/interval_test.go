package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/taskflow/internal/model"
)

func day(s string) time.Time {
	d, err := time.ParseInLocation(model.DateLayout, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return d
}

func TestIntervalNext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		args []string
		from string
		want string
	}{
		{args: []string{"daily"}, from: "2026-01-15", want: "2026-01-16"},
		{args: []string{"every day"}, from: "2026-12-31", want: "2027-01-01"},
		{args: []string{"weekly"}, from: "2026-01-15", want: "2026-01-22"},
		{args: []string{"monthly"}, from: "2026-01-15", want: "2026-02-15"},
		{args: []string{"monthly"}, from: "2026-01-31", want: "2026-02-28"},
		{args: []string{"yearly"}, from: "2024-02-29", want: "2025-02-28"},
		{args: []string{"every 3 days"}, from: "2026-01-30", want: "2026-02-02"},
		{args: []string{"every 2 weeks"}, from: "2026-01-01", want: "2026-01-15"},
		{args: []string{"Every 2 Months"}, from: "2026-12-31", want: "2027-02-28"},
		{args: []string{"weekdays"}, from: "2026-01-16", want: "2026-01-19"}, // Friday -> Monday
		{args: []string{"weekends"}, from: "2026-01-12", want: "2026-01-17"},
		{args: []string{"every monday"}, from: "2026-01-12", want: "2026-01-19"},
		{args: []string{"every tuesday", "thursday"}, from: "2026-01-13", want: "2026-01-15"},
		{args: []string{"every sat & sun"}, from: "2026-01-17", want: "2026-01-18"},
	}
	for _, tc := range tests {
		iv, err := ParseInterval(tc.args)
		require.NoError(t, err, tc.args)
		assert.Equal(t, tc.want, iv.Next(day(tc.from)).Format(model.DateLayout), tc.args)
	}
}

func TestParseIntervalErrors(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{nil, {"sometimes"}, {"every 0 days"}, {"every funday"}, {"every"}} {
		if _, err := ParseInterval(args); err == nil {
			t.Fatalf("ParseInterval(%q) expected error", args)
		}
	}
}

func TestSplitWhenDone(t *testing.T) {
	t.Parallel()

	rule, done := SplitWhenDone("weekly when done")
	assert.Equal(t, "weekly", rule)
	assert.True(t, done)

	rule, done = SplitWhenDone(" monthly ")
	assert.Equal(t, "monthly", rule)
	assert.False(t, done)

	rule, done = SplitWhenDone("when done")
	assert.Empty(t, rule)
	assert.True(t, done)
}

func TestAddMonthsClamps(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2026-04-30", AddMonths(day("2026-03-31"), 1).Format(model.DateLayout))
	assert.Equal(t, "2028-02-29", AddMonths(day("2028-01-31"), 1).Format(model.DateLayout))
	assert.Equal(t, "2025-11-30", AddMonths(day("2026-01-30"), -2).Format(model.DateLayout))
}

func TestNextOccurrence(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 20, 15, 0, 0, 0, time.UTC)
	base := model.Task{
		ID: "a.md:3", File: "a.md", Line: 3, Status: 'x', Content: "Report",
		StartDate: "2026-01-15", StartTime: "09:00", EndDate: "2026-01-16", Deadline: "2026-01-18",
		ChildIDs: []string{"a.md:4"}, OriginalText: "- [x] Report",
	}

	got, err := NextOccurrence(base, []string{"weekly"}, now)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-22", got.StartDate)
	assert.Equal(t, "09:00", got.StartTime)
	assert.Equal(t, "2026-01-23", got.EndDate)
	assert.Equal(t, "2026-01-25", got.Deadline)
	assert.Equal(t, model.StatusOpen, got.Status)
	assert.Empty(t, got.ID)
	assert.Empty(t, got.ChildIDs)
	assert.Empty(t, got.OriginalText)

	got, err = NextOccurrence(base, []string{"weekly when done"}, now)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-27", got.StartDate, "anchored on today")
	assert.Equal(t, "2026-01-28", got.EndDate)

	undated := model.Task{Status: 'x', Content: "Stretch", StartTime: "07:00"}
	got, err = NextOccurrence(undated, []string{""}, now)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-21", got.StartDate)

	someday := model.Task{Status: 'x', Content: "Read", IsFuture: true}
	got, err = NextOccurrence(someday, []string{"monthly"}, now)
	require.NoError(t, err)
	assert.True(t, got.IsFuture)
	assert.Empty(t, got.StartDate)

	_, err = NextOccurrence(base, []string{"fortnightly-ish"}, now)
	assert.Error(t, err)
}
