package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
)

func TestBus_FilterAndOrder(t *testing.T) {
	b := NewBus[AppointmentEvent](TopicAppointments, 8)
	sub := b.Subscribe(ForProvider("p1"))
	defer sub.Close()

	b.Publish(AppointmentEvent{Type: AppointmentCreated, Appointment: model.Appointment{ID: "a1", ProviderID: "p1"}})
	b.Publish(AppointmentEvent{Type: AppointmentCreated, Appointment: model.Appointment{ID: "a2", ProviderID: "p2"}})
	b.Publish(AppointmentEvent{Type: AppointmentCancelled, Appointment: model.Appointment{ID: "a1", ProviderID: "p1"}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	second, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Type != AppointmentCreated || second.Type != AppointmentCancelled || second.Appointment.ID != "a1" {
		t.Fatalf("unexpected events %v %v", first.Type, second.Type)
	}
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	b := NewBus[CalendarEvent](TopicCalendar, 2)
	slow := b.Subscribe(nil)
	fast := b.Subscribe(nil)

	for i := 0; i < 5; i++ {
		b.Publish(CalendarEvent{ProviderID: "p1"})
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if _, err := fast.Next(ctx); err != nil {
			cancel()
			t.Fatalf("fast Next: %v", err)
		}
		cancel()
	}
	if slow.Dropped() != 3 {
		t.Fatalf("expected 3 drops, got %d", slow.Dropped())
	}
	if fast.Dropped() != 0 {
		t.Fatalf("fast subscriber dropped %d", fast.Dropped())
	}
}

func TestBus_CloseEndsSubscription(t *testing.T) {
	b := NewBus[ProviderScheduleEvent](TopicProviderSchedule, 1)
	sub := b.Subscribe(nil)
	b.Close()
	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrSubscriptionClosed) {
		t.Fatalf("expected ErrSubscriptionClosed, got %v", err)
	}
	if n := b.Publish(ProviderScheduleEvent{}); n != 0 {
		t.Fatalf("publish after close delivered %d", n)
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus[AppointmentEvent](TopicAppointments, 1)
	sub := b.Subscribe(nil)
	sub.Close()
	if b.Subscribers() != 0 {
		t.Fatalf("expected no subscribers")
	}
	if n := b.Publish(AppointmentEvent{}); n != 0 {
		t.Fatalf("expected no deliveries, got %d", n)
	}
}

func TestCalendarBetween(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	f := CalendarBetween("p1", day, day.AddDate(0, 0, 7))
	if !f(CalendarEvent{ProviderID: "p1", AffectedDate: day.AddDate(0, 0, 3)}) {
		t.Fatalf("expected match inside range")
	}
	if f(CalendarEvent{ProviderID: "p1", AffectedDate: day.AddDate(0, 0, 7)}) {
		t.Fatalf("end of range is exclusive")
	}
	if f(CalendarEvent{ProviderID: "p2", AffectedDate: day}) {
		t.Fatalf("other provider should not match")
	}
}

func TestKafkaTopic(t *testing.T) {
	if got := (AppointmentEvent{Type: AppointmentCheckedIn}).KafkaTopic(); got != "booking.appointment.checked_in.v1" {
		t.Fatalf("unexpected topic %q", got)
	}
}
