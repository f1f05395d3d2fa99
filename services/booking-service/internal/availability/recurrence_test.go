package availability

import (
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
)

func TestOccurrences_Single(t *testing.T) {
	start := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	e := model.AvailabilityException{StartTime: start, EndTime: start.Add(time.Hour)}

	if got := Occurrences(e, time.UTC, start.Add(-time.Hour), start.Add(time.Hour)); len(got) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(got))
	}
	if got := Occurrences(e, time.UTC, start.Add(time.Hour), start.Add(2*time.Hour)); len(got) != 0 {
		t.Fatalf("touching range should not include occurrence, got %d", len(got))
	}
}

func TestOccurrences_WeeklyCount(t *testing.T) {
	start := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	e := model.AvailabilityException{
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyWeekly, Interval: 1, Count: 4},
	}
	got := Occurrences(e, time.UTC, start, start.AddDate(1, 0, 0))
	if len(got) != 4 {
		t.Fatalf("expected 4 occurrences, got %d", len(got))
	}
	if !got[3].Start.Equal(start.AddDate(0, 0, 21)) {
		t.Fatalf("unexpected last occurrence %s", got[3].Start)
	}
}

func TestOccurrences_UntilAndInterval(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	until := start.AddDate(0, 0, 9)
	e := model.AvailabilityException{
		StartTime:  start,
		EndTime:    start.Add(30 * time.Minute),
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyDaily, Interval: 3, Until: &until},
	}
	got := Occurrences(e, time.UTC, start, start.AddDate(0, 1, 0))
	// Mar 1, 4, 7, 10.
	if len(got) != 4 {
		t.Fatalf("expected 4 occurrences, got %d", len(got))
	}
}

func TestOccurrences_Bounded(t *testing.T) {
	start := time.Date(2020, 1, 1, 8, 0, 0, 0, time.UTC)
	e := model.AvailabilityException{
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		Recurrence: &model.RecurrenceRule{Frequency: model.FrequencyDaily},
	}
	got := Occurrences(e, time.UTC, start, start.AddDate(50, 0, 0))
	if len(got) != MaxRecurrenceIterations {
		t.Fatalf("expected expansion capped at %d, got %d", MaxRecurrenceIterations, len(got))
	}
	// Window far beyond the cap yields nothing.
	if got := Occurrences(e, time.UTC, start.AddDate(10, 0, 0), start.AddDate(11, 0, 0)); len(got) != 0 {
		t.Fatalf("expected no occurrences past cap, got %d", len(got))
	}
}

func TestValidateRule(t *testing.T) {
	first := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if err := ValidateRule(&model.RecurrenceRule{Frequency: "YEARLY"}, first); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
	before := first.Add(-time.Hour)
	if err := ValidateRule(&model.RecurrenceRule{Frequency: model.FrequencyDaily, Until: &before}, first); !errors.Is(err, ErrUntilBeforeStart) {
		t.Fatalf("expected ErrUntilBeforeStart, got %v", err)
	}
	if err := ValidateRule(nil, first); err != nil {
		t.Fatalf("nil rule: %v", err)
	}
}
