package task

import (
	"sort"
	"time"

	"github.com/metalagman/taskflow/internal/model"
)

// TasksForDate returns the tasks whose span covers date (YYYY-MM-DD) or whose deadline falls on it.
// An implicit start resolves against now.
func (s *Store) TasksForDate(date string, now time.Time) []model.Task {
	day, err := time.ParseInLocation(model.DateLayout, date, now.Location())
	if err != nil {
		return nil
	}
	return s.filter(func(t *model.Task) bool {
		if t.Deadline == date {
			return true
		}
		start, end, ok := span(t, now)
		return ok && !day.Before(start) && !day.After(end)
	})
}

// TasksForVisualDay returns the tasks visible on the day that starts at startHour on day
// and lasts until startHour of the following calendar day.
func (s *Store) TasksForVisualDay(day time.Time, startHour int, now time.Time) []model.Task {
	y, m, d := day.Date()
	calendar := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	winStart := calendar.Add(time.Duration(startHour) * time.Hour)
	winEnd := winStart.AddDate(0, 0, 1)
	date := calendar.Format(model.DateLayout)

	return s.filter(func(t *model.Task) bool {
		if t.Deadline != "" {
			if at, ok := instant(t.Deadline, t.DeadlineTime, day.Location()); ok {
				if t.DeadlineTime == "" && t.Deadline == date {
					return true
				}
				if t.DeadlineTime != "" && !at.Before(winStart) && at.Before(winEnd) {
					return true
				}
			}
		}
		start, end, ok := span(t, now)
		if !ok {
			return false
		}
		if t.StartTime == "" {
			return !calendar.Before(start) && !calendar.After(end)
		}
		from, _ := instant(start.Format(model.DateLayout), t.StartTime, day.Location())
		to := from
		switch {
		case t.EndTime != "":
			to, _ = instant(end.Format(model.DateLayout), t.EndTime, day.Location())
		case end.After(start):
			to = end.AddDate(0, 0, 1)
		}
		return from.Before(winEnd) && !to.Before(winStart)
	})
}

// SomedayTasks returns the tasks marked for an unspecified future.
func (s *Store) SomedayTasks() []model.Task {
	return s.filter(func(t *model.Task) bool { return t.IsFuture })
}

func (s *Store) filter(keep func(*model.Task) bool) []model.Task {
	s.mu.RLock()
	var out []model.Task
	for _, t := range s.tasks {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	s.mu.RUnlock()
	SortBySchedule(out)
	return out
}

// span returns the first and last calendar day a task occupies.
func span(t *model.Task, now time.Time) (time.Time, time.Time, bool) {
	start, ok := t.EffectiveStart(now)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	end := start
	if t.EndDate != "" {
		if e, err := time.ParseInLocation(model.DateLayout, t.EndDate, now.Location()); err == nil && e.After(start) {
			end = e
		}
	}
	return start, end, true
}

func instant(date, clock string, loc *time.Location) (time.Time, bool) {
	if clock == "" {
		t, err := time.ParseInLocation(model.DateLayout, date, loc)
		return t, err == nil
	}
	t, err := time.ParseInLocation(model.DateLayout+"T"+model.TimeLayout, date+"T"+clock, loc)
	return t, err == nil
}

// SortBySchedule orders tasks with all-day entries first, then by start time, content and location.
func SortBySchedule(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		left, right := &tasks[i], &tasks[j]
		if (left.StartTime == "") != (right.StartTime == "") {
			return left.StartTime == ""
		}
		if left.StartTime != right.StartTime {
			return left.StartTime < right.StartTime
		}
		if left.Content != right.Content {
			return left.Content < right.Content
		}
		return lessLocation(left, right)
	})
}
