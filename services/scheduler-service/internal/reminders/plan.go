package reminders

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultLead applies when the client has no lead preference.
const DefaultLead = 24 * time.Hour

const EventType = "REMINDER"

// event holds the parts of a booking appointment event that drive reminders.
type event struct {
	Type        string `json:"type"`
	Appointment struct {
		ID        string    `json:"id"`
		StartTime time.Time `json:"start_time"`
	} `json:"appointment"`
	Previous *struct {
		ID string `json:"id"`
	} `json:"previous,omitempty"`
	Client struct {
		Channel     string `json:"channel"`
		LeadMinutes int    `json:"reminder_lead_minutes"`
	} `json:"client"`
}

// Reminder is one pending notification for an appointment.
type Reminder struct {
	AppointmentID string
	RemindAt      time.Time
	Payload       []byte
}

// Plan is the change an appointment event makes to the reminder queue.
type Plan struct {
	Cancel   []string
	Schedule *Reminder
}

func (p Plan) Empty() bool {
	return len(p.Cancel) == 0 && p.Schedule == nil
}

// PlanFor decides what an appointment event does to pending reminders.
// Bookings and reschedules queue one reminder at start minus the client's
// lead; a remind time already in the past fires immediately. Terminal events
// drop the appointment's pending reminder.
func PlanFor(raw []byte, now time.Time) (Plan, error) {
	var evt event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Plan{}, fmt.Errorf("decode appointment event: %w", err)
	}
	if evt.Appointment.ID == "" {
		return Plan{}, fmt.Errorf("appointment event without appointment id")
	}

	var plan Plan
	switch evt.Type {
	case "CANCELLED", "NO_SHOW", "COMPLETED":
		plan.Cancel = []string{evt.Appointment.ID}
		return plan, nil
	case "RESCHEDULED":
		if evt.Previous != nil && evt.Previous.ID != "" {
			plan.Cancel = []string{evt.Previous.ID}
		}
	case "CREATED":
	default:
		return plan, nil
	}

	if evt.Client.Channel == "NONE" {
		return plan, nil
	}
	start := evt.Appointment.StartTime
	if !start.After(now) {
		return plan, nil
	}
	lead := DefaultLead
	if evt.Client.LeadMinutes > 0 {
		lead = time.Duration(evt.Client.LeadMinutes) * time.Minute
	}
	remindAt := start.Add(-lead)
	if remindAt.Before(now) {
		remindAt = now
	}
	payload, err := reminderPayload(raw)
	if err != nil {
		return Plan{}, err
	}
	plan.Schedule = &Reminder{
		AppointmentID: evt.Appointment.ID,
		RemindAt:      remindAt.UTC(),
		Payload:       payload,
	}
	return plan, nil
}

// reminderPayload rewrites the booking event as a REMINDER event so
// downstream notifiers can render it like any other appointment event.
func reminderPayload(raw []byte) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode appointment event: %w", err)
	}
	delete(fields, "previous")
	delete(fields, "previous_status")
	typ, _ := json.Marshal(EventType)
	fields["type"] = typ
	return json.Marshal(fields)
}
