package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
)

// WindowSlots returns the slots of length duration within window, starting at
// window.Start and advancing by step. step is the duration plus the provider
// buffer, and the whole step must fit, so the buffer after the last slot stays
// inside the window too.
func WindowSlots(window model.TimeWindow, duration, step time.Duration) []model.TimeWindow {
	if duration <= 0 || step <= 0 || !window.Valid() {
		return nil
	}
	span := max(duration, step)
	var slots []model.TimeWindow
	for t := window.Start; !t.Add(span).After(window.End); t = t.Add(step) {
		slots = append(slots, model.TimeWindow{Start: t, End: t.Add(duration)})
	}
	return slots
}

// GenerateSlots lays out candidate slots for every working shift of the weekly
// schedule between from and to. Days are walked in loc so shift boundaries
// follow local wall-clock time. Only slots entirely inside [from, to) are
// returned, ordered by start.
func GenerateSlots(schedule model.WeeklySchedule, loc *time.Location, from, to time.Time, duration, step time.Duration) []model.TimeWindow {
	if loc == nil {
		loc = time.UTC
	}
	if !from.Before(to) {
		return nil
	}
	bounds := model.TimeWindow{Start: from, End: to}

	var out []model.TimeWindow
	y, m, d := from.In(loc).Date()
	for day := time.Date(y, m, d, 0, 0, 0, 0, loc); day.Before(to); day = day.AddDate(0, 0, 1) {
		ds := schedule[day.Weekday()]
		if !ds.IsWorkingDay {
			continue
		}
		for _, shift := range ds.Shifts {
			for _, s := range WindowSlots(shift.On(day, loc), duration, step) {
				if bounds.Contains(s) {
					out = append(out, s)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// WithinWorkingHours reports whether w lies entirely inside a single shift of
// the day it starts on.
func WithinWorkingHours(schedule model.WeeklySchedule, loc *time.Location, w model.TimeWindow) bool {
	if loc == nil {
		loc = time.UTC
	}
	if !w.Valid() {
		return false
	}
	local := w.Start.In(loc)
	ds := schedule[local.Weekday()]
	if !ds.IsWorkingDay {
		return false
	}
	for _, shift := range ds.Shifts {
		if shift.On(local, loc).Contains(w) {
			return true
		}
	}
	return false
}

// MergeSlots combines slot lists, dropping duplicate start times.
func MergeSlots(lists ...[]model.TimeWindow) []model.TimeWindow {
	seen := make(map[int64]bool)
	var out []model.TimeWindow
	for _, l := range lists {
		for _, s := range l {
			k := s.Start.UnixNano()
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
