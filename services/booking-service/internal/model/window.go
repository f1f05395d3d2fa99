package model

import "time"

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}

func (w TimeWindow) Valid() bool {
	return w.Start.Before(w.End)
}

func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Overlaps reports whether two half-open windows intersect. Touching
// endpoints do not overlap.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return Overlaps(w.Start, w.End, o.Start, o.End)
}

// Contains reports whether o lies entirely inside w.
func (w TimeWindow) Contains(o TimeWindow) bool {
	return !o.Start.Before(w.Start) && !o.End.After(w.End)
}

// Key is a stable textual identity for the window, independent of location.
func (w TimeWindow) Key() string {
	return w.Start.UTC().Format(time.RFC3339) + "/" + w.End.UTC().Format(time.RFC3339)
}

// Overlaps implements a.start < b.end && a.end > b.start.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
