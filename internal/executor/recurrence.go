package executor

import (
	"time"

	"github.com/metalagman/taskflow/internal/model"
)

// NextOccurrence builds the open task that follows a completed one.
//
// The anchor is today when the rule ends in " when done", otherwise the task's
// primary date: start, else end, else deadline, else today. The next anchor is
// computed from the rule and every present date moves by the day distance
// between the primary date and the next anchor, so offsets between start, end and
// deadline are kept. A someday task without dates stays a someday task, and a task
// without dates gets the next anchor as its start.
func NextOccurrence(src model.Task, args []string, now time.Time) (model.Task, error) {
	rule, whenDone := SplitWhenDone(args[0])
	if rule == "" {
		rule = "daily"
	}
	iv, err := ParseInterval(append([]string{rule}, args[1:]...))
	if err != nil {
		return model.Task{}, err
	}

	t := fresh(src)
	if t.IsFuture && !t.HasDates() {
		return t, nil
	}

	today := midnight(now)
	primary, hasPrimary := primaryDate(&t, now.Location())
	base := primary
	if whenDone || !hasPrimary {
		base = today
	}
	next := iv.Next(base)
	if !hasPrimary {
		t.StartDate = next.Format(model.DateLayout)
		return t, nil
	}
	t.ShiftDays(daysBetween(primary, next))
	return t, nil
}

func primaryDate(t *model.Task, loc *time.Location) (time.Time, bool) {
	for _, d := range []string{t.StartDate, t.EndDate, t.Deadline} {
		if d == "" {
			continue
		}
		if parsed, err := time.ParseInLocation(model.DateLayout, d, loc); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b; both are midnights in the same location.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
