package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type CancelRequest struct {
	AppointmentID string
	Reason        string
	CancelledBy   model.Actor
}

func (e *Engine) Cancel(ctx context.Context, req CancelRequest) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "booking.Cancel", trace.WithAttributes(
		attribute.String("appointment_id", req.AppointmentID),
		attribute.String("cancelled_by", string(req.CancelledBy)),
	))
	defer span.End()

	if req.CancelledBy == "" {
		req.CancelledBy = model.ActorClient
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
		a := l.appt
		if !model.CanTransition(a.Status, model.StatusCancelled) {
			out = failure(model.CodeInvalidStatusTransition, "appointmentId", "cannot cancel a %s appointment", a.Status)
			return nil
		}

		now := e.clock()
		notice := a.StartTime.Sub(now)
		fee := CancellationFee(a.Price, notice)
		prev := a.Status
		a.Status = model.StatusCancelled
		a.UpdatedAt = now
		a.Cancellation = &model.Cancellation{
			CancelledAt:  now,
			CancelledBy:  req.CancelledBy,
			Reason:       req.Reason,
			Fee:          fee,
			RefundIssued: fee.LessThan(a.Price),
		}
		if err := tx.UpdateAppointment(ctx, a); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		publish, err = e.enqueue(ctx, tx, events.AppointmentEvent{
			Type:           events.AppointmentCancelled,
			Appointment:    a,
			PreviousStatus: prev,
			Client:         events.ContactFor(l.client),
		}, l.provider.Location())
		if err != nil {
			return err
		}

		var warnings []string
		if fee.IsPositive() {
			warnings = append(warnings, fmt.Sprintf("cancellation fee of %s charged for %s notice", fee.StringFixed(2), notice.Round(time.Minute)))
		}
		out = succeeded(a, warnings)
		return nil
	})
	if err != nil {
		return Result{}, e.infraError(span, "cancel appointment", err)
	}
	recordOutcome(span, out)
	if publish != nil {
		publish()
		e.logger.Info("appointment cancelled",
			"appointment_id", out.Appointment.ID,
			"cancelled_by", req.CancelledBy,
			"fee", out.Appointment.Cancellation.Fee.StringFixed(2),
		)
	}
	return out, nil
}
