package task

import (
	"time"

	"github.com/metalagman/taskflow/internal/model"
)

// Reader is the query surface consumed by views and other collaborators.
type Reader interface {
	Get(id string) (model.Task, bool)
	All() []model.Task
	ByFile(file string) []model.Task
	TasksForDate(date string, now time.Time) []model.Task
	TasksForVisualDay(day time.Time, startHour int, now time.Time) []model.Task
	SomedayTasks() []model.Task
	OnChange(fn func()) func()
}

var _ Reader = (*Store)(nil)
