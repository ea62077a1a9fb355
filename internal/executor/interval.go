package executor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const whenDoneSuffix = " when done"

type unit int

const (
	unitDay unit = iota
	unitWeek
	unitMonth
	unitYear
	unitWeekday
)

// Interval is a parsed recurrence rule.
type Interval struct {
	unit  unit
	n     int
	days  map[time.Weekday]bool
	label string
}

func (iv Interval) String() string { return iv.label }

var (
	everyNRe = regexp.MustCompile(`^every\s+(\d+)\s+(day|week|month|year)s?$`)
	weekdays = map[string]time.Weekday{
		"sunday": time.Sunday, "sun": time.Sunday,
		"monday": time.Monday, "mon": time.Monday,
		"tuesday": time.Tuesday, "tue": time.Tuesday,
		"wednesday": time.Wednesday, "wed": time.Wednesday,
		"thursday": time.Thursday, "thu": time.Thursday,
		"friday": time.Friday, "fri": time.Friday,
		"saturday": time.Saturday, "sat": time.Saturday,
	}
)

// SplitWhenDone strips the " when done" marker from an interval argument.
func SplitWhenDone(arg string) (string, bool) {
	s := strings.TrimSpace(arg)
	if strings.HasSuffix(strings.ToLower(s), whenDoneSuffix) {
		return strings.TrimSpace(s[:len(s)-len(whenDoneSuffix)]), true
	}
	if strings.EqualFold(s, strings.TrimSpace(whenDoneSuffix)) {
		return "", true
	}
	return s, false
}

// ParseInterval parses the arguments of a generation command. The first argument holds
// the rule; further arguments add weekdays to an "every <weekday>" rule.
func ParseInterval(args []string) (Interval, error) {
	if len(args) == 0 {
		return Interval{}, fmt.Errorf("empty interval")
	}
	rule := strings.ToLower(strings.Join(strings.Fields(args[0]), " "))
	iv := Interval{n: 1, label: rule}
	switch rule {
	case "daily", "every day":
		iv.unit = unitDay
	case "weekly", "every week":
		iv.unit = unitWeek
	case "monthly", "every month":
		iv.unit = unitMonth
	case "yearly", "annually", "every year":
		iv.unit = unitYear
	case "weekdays", "every weekday":
		iv.unit = unitWeekday
		iv.days = map[time.Weekday]bool{
			time.Monday: true, time.Tuesday: true, time.Wednesday: true, time.Thursday: true, time.Friday: true,
		}
	case "weekends", "every weekend":
		iv.unit = unitWeekday
		iv.days = map[time.Weekday]bool{time.Saturday: true, time.Sunday: true}
	default:
		if m := everyNRe.FindStringSubmatch(rule); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 {
				return Interval{}, fmt.Errorf("bad count in interval %q", args[0])
			}
			iv.n = n
			iv.unit = map[string]unit{"day": unitDay, "week": unitWeek, "month": unitMonth, "year": unitYear}[m[2]]
			break
		}
		name, ok := strings.CutPrefix(rule, "every ")
		if !ok {
			return Interval{}, fmt.Errorf("unknown interval %q", args[0])
		}
		days, err := parseWeekdays(append([]string{name}, args[1:]...))
		if err != nil {
			return Interval{}, err
		}
		iv.unit = unitWeekday
		iv.days = days
	}
	return iv, nil
}

func parseWeekdays(names []string) (map[time.Weekday]bool, error) {
	out := make(map[time.Weekday]bool)
	for _, raw := range names {
		for _, name := range strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool { return r == ' ' || r == '&' }) {
			if name == "and" {
				continue
			}
			d, ok := weekdays[name]
			if !ok {
				return nil, fmt.Errorf("unknown weekday %q", raw)
			}
			out[d] = true
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no weekday given")
	}
	return out, nil
}

// Next returns the next occurrence strictly after from.
func (iv Interval) Next(from time.Time) time.Time {
	switch iv.unit {
	case unitWeek:
		return from.AddDate(0, 0, 7*iv.n)
	case unitMonth:
		return AddMonths(from, iv.n)
	case unitYear:
		return AddMonths(from, 12*iv.n)
	case unitWeekday:
		d := from.AddDate(0, 0, 1)
		for i := 0; i < 7 && !iv.days[d.Weekday()]; i++ {
			d = d.AddDate(0, 0, 1)
		}
		return d
	default:
		return from.AddDate(0, 0, iv.n)
	}
}

// AddMonths adds n months, clamping the day to the last day of the target month.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
