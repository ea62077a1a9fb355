package notation

import "github.com/metalagman/taskflow/internal/model"

// Warning codes.
const (
	WarnInvertedRange       = "inverted-range"
	WarnEndWithoutStart     = "end-without-start"
	WarnDeadlineWithoutDate = "deadline-without-date"
	WarnBadCommands         = "bad-commands"
)

// Validate returns non-fatal findings about suspicious temporal fields.
func Validate(t *model.Task) []model.Warning {
	var out []model.Warning
	if t.StartDate != "" && t.EndDate == t.StartDate && t.StartTime != "" && t.EndTime != "" && t.EndTime < t.StartTime {
		out = append(out, model.Warning{
			Code:    WarnInvertedRange,
			Message: "end time " + t.EndTime + " is before start time " + t.StartTime,
		})
	}
	if t.EndTime != "" && t.StartTime == "" {
		out = append(out, model.Warning{
			Code:    WarnEndWithoutStart,
			Message: "end time " + t.EndTime + " has no start time",
		})
	}
	if t.DeadlineTime != "" && t.Deadline == "" {
		out = append(out, model.Warning{
			Code:    WarnDeadlineWithoutDate,
			Message: "deadline time " + t.DeadlineTime + " has no date",
		})
	}
	return out
}
