package reminders

import (
	"encoding/json"
	"testing"
	"time"
)

var now = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func raw(t *testing.T, typ string, start time.Time, channel string, lead int) []byte {
	t.Helper()
	evt := map[string]any{
		"type": typ,
		"appointment": map[string]any{
			"id":         "a2",
			"number":     "APT-20260302-000002",
			"start_time": start,
		},
		"previous":        map[string]any{"id": "a1"},
		"previous_status": "SCHEDULED",
		"client": map[string]any{
			"name":                  "Ana Diaz",
			"channel":               channel,
			"reminder_lead_minutes": lead,
		},
	}
	b, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestPlanForCreated(t *testing.T) {
	start := now.Add(48 * time.Hour)
	plan, err := PlanFor(raw(t, "CREATED", start, "EMAIL", 120), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Cancel) != 0 || plan.Schedule == nil {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if want := start.Add(-2 * time.Hour); !plan.Schedule.RemindAt.Equal(want) {
		t.Fatalf("expected remind at %s, got %s", want, plan.Schedule.RemindAt)
	}

	var payload map[string]any
	if err := json.Unmarshal(plan.Schedule.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["type"] != EventType {
		t.Fatalf("expected REMINDER type, got %v", payload["type"])
	}
	if _, ok := payload["previous"]; ok {
		t.Fatal("reminder payload should not carry the previous appointment")
	}
	if payload["appointment"].(map[string]any)["number"] != "APT-20260302-000002" {
		t.Fatalf("appointment not carried over: %v", payload["appointment"])
	}
}

func TestPlanForDefaultsAndClamps(t *testing.T) {
	start := now.Add(72 * time.Hour)
	plan, _ := PlanFor(raw(t, "CREATED", start, "SMS", 0), now)
	if plan.Schedule == nil || !plan.Schedule.RemindAt.Equal(start.Add(-DefaultLead)) {
		t.Fatalf("expected default lead, got %+v", plan.Schedule)
	}

	soon := now.Add(30 * time.Minute)
	plan, _ = PlanFor(raw(t, "CREATED", soon, "EMAIL", 120), now)
	if plan.Schedule == nil || !plan.Schedule.RemindAt.Equal(now) {
		t.Fatalf("expected immediate reminder, got %+v", plan.Schedule)
	}

	plan, _ = PlanFor(raw(t, "CREATED", now.Add(-time.Hour), "EMAIL", 60), now)
	if !plan.Empty() {
		t.Fatalf("past appointments get no reminder, got %+v", plan)
	}

	plan, _ = PlanFor(raw(t, "CREATED", start, "NONE", 60), now)
	if !plan.Empty() {
		t.Fatalf("opted-out clients get no reminder, got %+v", plan)
	}
}

func TestPlanForRescheduleAndCancel(t *testing.T) {
	start := now.Add(48 * time.Hour)
	plan, err := PlanFor(raw(t, "RESCHEDULED", start, "EMAIL", 60), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Cancel) != 1 || plan.Cancel[0] != "a1" {
		t.Fatalf("expected previous reminder cancelled, got %v", plan.Cancel)
	}
	if plan.Schedule == nil || plan.Schedule.AppointmentID != "a2" {
		t.Fatalf("expected reminder for the new appointment, got %+v", plan.Schedule)
	}

	for _, typ := range []string{"CANCELLED", "NO_SHOW", "COMPLETED"} {
		plan, _ := PlanFor(raw(t, typ, start, "EMAIL", 60), now)
		if plan.Schedule != nil || len(plan.Cancel) != 1 || plan.Cancel[0] != "a2" {
			t.Fatalf("%s: unexpected plan %+v", typ, plan)
		}
	}

	plan, _ = PlanFor(raw(t, "CONFIRMED", start, "EMAIL", 60), now)
	if !plan.Empty() {
		t.Fatalf("confirm should not touch reminders, got %+v", plan)
	}
}

func TestPlanForRejectsBadPayload(t *testing.T) {
	if _, err := PlanFor([]byte("{"), now); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := PlanFor([]byte(`{"type":"CREATED","appointment":{}}`), now); err == nil {
		t.Fatal("expected error for missing appointment id")
	}
}
