package availability

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
)

// MaxRecurrenceIterations bounds expansion of a single recurrence rule.
const MaxRecurrenceIterations = 1000

var (
	ErrInvalidFrequency = errors.New("invalid recurrence frequency")
	ErrInvalidInterval  = errors.New("recurrence interval must be positive")
	ErrInvalidCount     = errors.New("recurrence count must not be negative")
	ErrUntilBeforeStart = errors.New("recurrence until precedes first occurrence")
)

func ValidateRule(r *model.RecurrenceRule, first time.Time) error {
	if r == nil {
		return nil
	}
	switch r.Frequency {
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly:
	default:
		return ErrInvalidFrequency
	}
	if r.Interval < 0 {
		return ErrInvalidInterval
	}
	if r.Count < 0 {
		return ErrInvalidCount
	}
	if r.Until != nil && r.Until.Before(first) {
		return ErrUntilBeforeStart
	}
	return nil
}

// Occurrences expands the exception into concrete windows overlapping
// [from, to). Steps are taken in loc so a weekly 09:00 block stays at 09:00
// across DST changes. Expansion stops after MaxRecurrenceIterations steps
// regardless of Count or Until.
func Occurrences(e model.AvailabilityException, loc *time.Location, from, to time.Time) []model.TimeWindow {
	base := e.Window()
	if !base.Valid() {
		return nil
	}
	bounds := model.TimeWindow{Start: from, End: to}
	if e.Recurrence == nil {
		if base.Overlaps(bounds) {
			return []model.TimeWindow{base}
		}
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	r := e.Recurrence
	interval := r.Interval
	if interval <= 0 {
		interval = 1
	}
	dur := base.Duration()
	first := base.Start.In(loc)

	var out []model.TimeWindow
	for i := 0; i < MaxRecurrenceIterations; i++ {
		if r.Count > 0 && i >= r.Count {
			break
		}
		start, ok := advance(first, r.Frequency, i*interval)
		if !ok {
			break
		}
		if r.Until != nil && start.After(*r.Until) {
			break
		}
		if !start.Before(to) {
			break
		}
		w := model.TimeWindow{Start: start, End: start.Add(dur)}
		if w.Overlaps(bounds) {
			out = append(out, w)
		}
	}
	return out
}

func advance(t time.Time, f model.Frequency, n int) (time.Time, bool) {
	switch f {
	case model.FrequencyDaily:
		return t.AddDate(0, 0, n), true
	case model.FrequencyWeekly:
		return t.AddDate(0, 0, 7*n), true
	case model.FrequencyMonthly:
		return t.AddDate(0, n, 0), true
	}
	return time.Time{}, false
}
