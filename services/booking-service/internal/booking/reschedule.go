package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/storage"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type RescheduleRequest struct {
	AppointmentID string
	NewStartTime  time.Time
	NewEndTime    time.Time
	Reason        string
	RequestedBy   model.Actor
}

// Reschedule books the new window and cancels the original in a single
// transaction; either both happen or neither does. The original's own
// window is ignored when checking the new one.
func (e *Engine) Reschedule(ctx context.Context, req RescheduleRequest) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "booking.Reschedule", trace.WithAttributes(
		attribute.String("appointment_id", req.AppointmentID),
	))
	defer span.End()

	window := model.TimeWindow{Start: req.NewStartTime, End: req.NewEndTime}
	if res, ok := e.validateWindow(window); !ok {
		recordOutcome(span, res)
		return res, nil
	}
	if req.RequestedBy == "" {
		req.RequestedBy = model.ActorClient
	}

	var out Result
	var publish func()
	err := e.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		out, publish = Result{}, nil
		l, fail, err := lockAppointment(ctx, tx, req.AppointmentID)
		if err != nil {
			return err
		}
		if fail != nil {
			out = *fail
			return nil
		}
		orig := l.appt
		now := e.clock()

		switch {
		case orig.Status.IsTerminal() || orig.Status == model.StatusInProgress:
			out = failure(model.CodeInvalidStatusTransition, "appointmentId", "cannot reschedule a %s appointment", orig.Status)
			return nil
		case orig.RescheduleCount >= e.cfg.MaxReschedules:
			out = failure(model.CodeRescheduleLimitReached, "appointmentId", "appointment already rescheduled %d times", orig.RescheduleCount)
			return nil
		case now.Add(e.cfg.MinRescheduleLead).After(orig.StartTime):
			out = failure(model.CodeRescheduleTooLate, "appointmentId", "appointments must be rescheduled at least %s before they start", e.cfg.MinRescheduleLead)
			return nil
		}

		d, res, err := e.prepare(ctx, tx, draftRequest{
			ClientID:             orig.ClientID,
			ProviderID:           orig.ProviderID,
			ServiceType:          orig.ServiceType,
			Window:               window,
			AllowOverride:        orig.DurationOverridden,
			ExcludeAppointmentID: orig.ID,
		})
		if err != nil {
			return err
		}
		if !res.Success {
			out = res
			return nil
		}

		next := d.appt
		next.Price = orig.Price
		next.Notes = orig.Notes
		next.RequestedProducts = orig.RequestedProducts
		next.RescheduleCount = orig.RescheduleCount + 1
		next.RescheduledFromID = orig.ID
		next.RescheduleHistory = append(append([]model.RescheduleRecord(nil), orig.RescheduleHistory...), model.RescheduleRecord{
			FromAppointmentID: orig.ID,
			FromStart:         orig.StartTime,
			FromEnd:           orig.EndTime,
			ToStart:           next.StartTime,
			ToEnd:             next.EndTime,
			RescheduledBy:     req.RequestedBy,
			RescheduledAt:     now,
			Reason:            req.Reason,
		})
		if err := tx.InsertAppointment(ctx, next); err != nil {
			return fmt.Errorf("insert rescheduled appointment: %w", err)
		}

		prevStatus := orig.Status
		orig.Status = model.StatusCancelled
		orig.RescheduledToID = next.ID
		orig.UpdatedAt = now
		orig.Cancellation = &model.Cancellation{
			CancelledAt: now,
			CancelledBy: req.RequestedBy,
			Reason:      rescheduleReason(req.Reason),
			Fee:         decimal.Zero,
			Rescheduled: true,
		}
		if err := tx.UpdateAppointment(ctx, orig); err != nil {
			return fmt.Errorf("cancel original appointment: %w", err)
		}

		publish, err = e.enqueue(ctx, tx, events.AppointmentEvent{
			Type:           events.AppointmentRescheduled,
			Appointment:    next,
			PreviousStatus: prevStatus,
			Previous:       &orig,
			Client:         events.ContactFor(d.client),
		}, d.provider.Location())
		if err != nil {
			return err
		}
		out = succeeded(next, res.Warnings)
		return nil
	})
	if err != nil {
		return Result{}, e.infraError(span, "reschedule appointment", err)
	}
	recordOutcome(span, out)
	if publish != nil {
		publish()
		e.logger.Info("appointment rescheduled",
			"appointment_id", out.Appointment.ID,
			"from_appointment_id", req.AppointmentID,
			"reschedule_count", out.Appointment.RescheduleCount,
		)
	}
	return out, nil
}

func rescheduleReason(reason string) string {
	if reason == "" {
		return "rescheduled"
	}
	return "rescheduled: " + reason
}
