package events

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
)

const (
	TopicAppointments     = "appointments"
	TopicProviderSchedule = "provider-schedule"
	TopicCalendar         = "calendar"
)

type AppointmentEventType string

const (
	AppointmentCreated     AppointmentEventType = "CREATED"
	AppointmentConfirmed   AppointmentEventType = "CONFIRMED"
	AppointmentCancelled   AppointmentEventType = "CANCELLED"
	AppointmentRescheduled AppointmentEventType = "RESCHEDULED"
	AppointmentCheckedIn   AppointmentEventType = "CHECKED_IN"
	AppointmentStarted     AppointmentEventType = "STARTED"
	AppointmentCompleted   AppointmentEventType = "COMPLETED"
	AppointmentNoShow      AppointmentEventType = "NO_SHOW"
)

// Contact is the recipient data downstream notifiers need.
type Contact struct {
	Name        string                `json:"name"`
	Email       string                `json:"email,omitempty"`
	Phone       string                `json:"phone,omitempty"`
	Channel     model.ReminderChannel `json:"channel"`
	LeadMinutes int                   `json:"reminder_lead_minutes,omitempty"`
}

func ContactFor(c model.Client) Contact {
	return Contact{
		Name:        c.FullName(),
		Email:       c.Email,
		Phone:       c.Phone,
		Channel:     c.Preferences.ReminderChannel,
		LeadMinutes: c.Preferences.ReminderLeadMinutes,
	}
}

type AppointmentEvent struct {
	Type           AppointmentEventType `json:"type"`
	Appointment    model.Appointment    `json:"appointment"`
	PreviousStatus model.Status         `json:"previous_status,omitempty"`
	Previous       *model.Appointment   `json:"previous,omitempty"`
	Client         Contact              `json:"client"`
	CommittedAt    time.Time            `json:"committed_at"`
}

// KafkaTopic names the relay topic, e.g. booking.appointment.created.v1.
func (e AppointmentEvent) KafkaTopic() string {
	return fmt.Sprintf("booking.appointment.%s.v1", strings.ToLower(string(e.Type)))
}

type ScheduleEventType string

const (
	ScheduleExceptionAdded   ScheduleEventType = "EXCEPTION_ADDED"
	ScheduleExceptionRemoved ScheduleEventType = "EXCEPTION_REMOVED"
	ScheduleExceptionUpdated ScheduleEventType = "EXCEPTION_UPDATED"
	ScheduleSlotsBooked      ScheduleEventType = "SLOTS_BOOKED"
	ScheduleSlotsFreed       ScheduleEventType = "SLOTS_FREED"
)

type ProviderScheduleEvent struct {
	Type          ScheduleEventType  `json:"type"`
	ProviderID    string             `json:"provider_id"`
	ExceptionID   string             `json:"exception_id,omitempty"`
	AffectedSlots []model.TimeWindow `json:"affected_slots"`
	CommittedAt   time.Time          `json:"committed_at"`
}

func (e ProviderScheduleEvent) KafkaTopic() string {
	return fmt.Sprintf("booking.schedule.%s.v1", strings.ToLower(string(e.Type)))
}

type CalendarEventType string

const (
	CalendarAppointmentAdded   CalendarEventType = "APPOINTMENT_ADDED"
	CalendarAppointmentRemoved CalendarEventType = "APPOINTMENT_REMOVED"
	CalendarAppointmentUpdated CalendarEventType = "APPOINTMENT_UPDATED"
	CalendarScheduleChanged    CalendarEventType = "SCHEDULE_CHANGED"
)

type CalendarEvent struct {
	Type         CalendarEventType   `json:"type"`
	ProviderID   string              `json:"provider_id"`
	AffectedDate time.Time           `json:"affected_date"`
	Appointments []model.Appointment `json:"appointments,omitempty"`
	CommittedAt  time.Time           `json:"committed_at"`
}

// Broadcaster owns the three in-process topics.
type Broadcaster struct {
	Appointments *Bus[AppointmentEvent]
	Schedules    *Bus[ProviderScheduleEvent]
	Calendar     *Bus[CalendarEvent]
	logger       *slog.Logger
}

func NewBroadcaster(logger *slog.Logger, buffer int) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		Appointments: NewBus[AppointmentEvent](TopicAppointments, buffer),
		Schedules:    NewBus[ProviderScheduleEvent](TopicProviderSchedule, buffer),
		Calendar:     NewBus[CalendarEvent](TopicCalendar, buffer),
		logger:       logger,
	}
}

func (b *Broadcaster) PublishAppointment(evt AppointmentEvent) {
	n := b.Appointments.Publish(evt)
	b.logger.Debug("event published", "topic", TopicAppointments, "type", evt.Type, "appointment_id", evt.Appointment.ID, "delivered", n)
}

func (b *Broadcaster) PublishSchedule(evt ProviderScheduleEvent) {
	n := b.Schedules.Publish(evt)
	b.logger.Debug("event published", "topic", TopicProviderSchedule, "type", evt.Type, "provider_id", evt.ProviderID, "delivered", n)
}

func (b *Broadcaster) PublishCalendar(evt CalendarEvent) {
	n := b.Calendar.Publish(evt)
	b.logger.Debug("event published", "topic", TopicCalendar, "type", evt.Type, "provider_id", evt.ProviderID, "delivered", n)
}

func (b *Broadcaster) Close() {
	b.Appointments.Close()
	b.Schedules.Close()
	b.Calendar.Close()
}

// ForAppointment matches events about one appointment.
func ForAppointment(id string) func(AppointmentEvent) bool {
	return func(e AppointmentEvent) bool {
		return e.Appointment.ID == id || (e.Previous != nil && e.Previous.ID == id)
	}
}

func ForProvider(id string) func(AppointmentEvent) bool {
	return func(e AppointmentEvent) bool { return e.Appointment.ProviderID == id }
}

func ForClient(id string) func(AppointmentEvent) bool {
	return func(e AppointmentEvent) bool { return e.Appointment.ClientID == id }
}

func ScheduleForProvider(id string) func(ProviderScheduleEvent) bool {
	return func(e ProviderScheduleEvent) bool { return e.ProviderID == id }
}

// CalendarBetween matches calendar events whose affected date falls in
// [from, to). An empty providerID matches all providers.
func CalendarBetween(providerID string, from, to time.Time) func(CalendarEvent) bool {
	return func(e CalendarEvent) bool {
		if providerID != "" && e.ProviderID != providerID {
			return false
		}
		return !e.AffectedDate.Before(from) && e.AffectedDate.Before(to)
	}
}

// Day truncates t to midnight in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
