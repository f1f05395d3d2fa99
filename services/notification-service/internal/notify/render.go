package notify

import (
	"fmt"
	"strings"
)

const timeLayout = "Mon 2 Jan 2006 15:04 MST"

// Message is a rendered notification, channel independent.
type Message struct {
	Subject string
	Body    string
}

// Render builds the client-facing text for an event. Events clients do not
// hear about (check-in, start) report ok=false.
func Render(evt AppointmentEvent) (Message, bool) {
	a := evt.Appointment
	name := strings.TrimSpace(evt.Client.Name)
	if name == "" {
		name = "there"
	}
	when := a.StartTime.UTC().Format(timeLayout)
	service := strings.ToLower(strings.ReplaceAll(a.ServiceType, "_", " "))

	var subject, body string
	switch evt.Type {
	case "CREATED":
		subject = "Appointment booked"
		body = fmt.Sprintf("Hi %s, your %s appointment %s is booked for %s.", name, service, a.Number, when)
	case "CONFIRMED":
		subject = "Appointment confirmed"
		body = fmt.Sprintf("Hi %s, thanks for confirming your %s appointment on %s.", name, service, when)
	case "RESCHEDULED":
		subject = "Appointment rescheduled"
		body = fmt.Sprintf("Hi %s, your %s appointment has moved to %s.", name, service, when)
		if evt.Previous != nil {
			body = fmt.Sprintf("Hi %s, your %s appointment on %s has moved to %s.",
				name, service, evt.Previous.StartTime.UTC().Format(timeLayout), when)
		}
	case "CANCELLED":
		subject = "Appointment cancelled"
		body = fmt.Sprintf("Hi %s, your %s appointment on %s has been cancelled.", name, service, when)
		if c := a.Cancellation; c != nil && c.Fee.IsPositive() {
			body += fmt.Sprintf(" A cancellation fee of %s applies.", c.Fee.StringFixed(2))
		}
	case "REMINDER":
		subject = "Appointment reminder"
		body = fmt.Sprintf("Hi %s, a reminder that your %s appointment %s is on %s.", name, service, a.Number, when)
	case "COMPLETED":
		subject = "Thanks for visiting"
		body = fmt.Sprintf("Hi %s, thanks for your %s visit today. We hope to see you again soon.", name, service)
	case "NO_SHOW":
		subject = "We missed you"
		body = fmt.Sprintf("Hi %s, we missed you at your %s appointment on %s. Reply to rebook.", name, service, when)
	default:
		return Message{}, false
	}
	return Message{Subject: subject, Body: body}, true
}

