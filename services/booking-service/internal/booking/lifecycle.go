package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type transitionSpec struct {
	span  string
	to    model.Status
	event events.AppointmentEventType
	// apply may refuse with a business failure, or mutate the locked rows.
	// It reports whether the client row changed.
	apply func(l *locked, now time.Time) (*Result, bool)
}

func (e *Engine) transition(ctx context.Context, id string, spec transitionSpec) (Result, error) {
	ctx, span := e.tracer.Start(ctx, spec.span, trace.WithAttributes(
		attribute.String("appointment_id", id),
		attribute.String("to_status", string(spec.to)),
	))
	defer span.End()

	var out Result
	var publish func()
	err := e.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		out, publish = Result{}, nil
		l, fail, err := lockAppointment(ctx, tx, id)
		if err != nil {
			return err
		}
		if fail != nil {
			out = *fail
			return nil
		}
		if !model.CanTransition(l.appt.Status, spec.to) {
			out = failure(model.CodeInvalidStatusTransition, "status", "cannot move appointment from %s to %s", l.appt.Status, spec.to)
			return nil
		}

		now := e.clock()
		prev := l.appt.Status
		clientChanged := false
		if spec.apply != nil {
			var refused *Result
			if refused, clientChanged = spec.apply(&l, now); refused != nil {
				out = *refused
				return nil
			}
		}
		l.appt.Status = spec.to
		l.appt.UpdatedAt = now

		if err := tx.UpdateAppointment(ctx, l.appt); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		if clientChanged {
			l.client.UpdatedAt = now
			if err := tx.UpdateClient(ctx, l.client); err != nil {
				return fmt.Errorf("update client: %w", err)
			}
		}
		publish, err = e.enqueue(ctx, tx, events.AppointmentEvent{
			Type:           spec.event,
			Appointment:    l.appt,
			PreviousStatus: prev,
			Client:         events.ContactFor(l.client),
		}, l.provider.Location())
		if err != nil {
			return err
		}
		out = succeeded(l.appt, nil)
		return nil
	})
	if err != nil {
		return Result{}, e.infraError(span, "transition appointment", err)
	}
	recordOutcome(span, out)
	if publish != nil {
		publish()
		e.logger.Info("appointment status changed", "appointment_id", id, "status", spec.to)
	}
	return out, nil
}

// Confirm marks a SCHEDULED appointment as confirmed by the client.
func (e *Engine) Confirm(ctx context.Context, appointmentID string) (Result, error) {
	return e.transition(ctx, appointmentID, transitionSpec{
		span:  "booking.Confirm",
		to:    model.StatusConfirmed,
		event: events.AppointmentConfirmed,
		apply: func(l *locked, now time.Time) (*Result, bool) {
			l.appt.ConfirmedAt = timePtr(now)
			return nil, false
		},
	})
}

// CheckIn records the client's arrival.
func (e *Engine) CheckIn(ctx context.Context, appointmentID string) (Result, error) {
	return e.transition(ctx, appointmentID, transitionSpec{
		span:  "booking.CheckIn",
		to:    model.StatusCheckedIn,
		event: events.AppointmentCheckedIn,
		apply: func(l *locked, now time.Time) (*Result, bool) {
			l.appt.CheckedInAt = timePtr(now)
			return nil, false
		},
	})
}

// Start begins treatment for a checked-in client.
func (e *Engine) Start(ctx context.Context, appointmentID string) (Result, error) {
	return e.transition(ctx, appointmentID, transitionSpec{
		span:  "booking.Start",
		to:    model.StatusInProgress,
		event: events.AppointmentStarted,
		apply: func(l *locked, now time.Time) (*Result, bool) {
			l.appt.StartedAt = timePtr(now)
			return nil, false
		},
	})
}

type CompleteRequest struct {
	AppointmentID string
	ProductsUsed  []model.ProductUsage
	Notes         string
}

// Complete finishes treatment and credits the client's visit count, lifetime
// spend and loyalty points (one point per whole currency unit).
func (e *Engine) Complete(ctx context.Context, req CompleteRequest) (Result, error) {
	return e.transition(ctx, req.AppointmentID, transitionSpec{
		span:  "booking.Complete",
		to:    model.StatusCompleted,
		event: events.AppointmentCompleted,
		apply: func(l *locked, now time.Time) (*Result, bool) {
			l.appt.CompletedAt = timePtr(now)
			l.appt.ProductsUsed = req.ProductsUsed
			if req.Notes != "" {
				l.appt.Notes = req.Notes
			}
			l.client.VisitCount++
			l.client.LifetimeSpend = l.client.LifetimeSpend.Add(l.appt.Price)
			l.client.LoyaltyPoints += int(l.appt.Price.IntPart())
			return nil, true
		},
	})
}

// MarkNoShow flags a SCHEDULED or CONFIRMED appointment whose start time has
// passed without a check-in.
func (e *Engine) MarkNoShow(ctx context.Context, appointmentID string) (Result, error) {
	return e.transition(ctx, appointmentID, transitionSpec{
		span:  "booking.MarkNoShow",
		to:    model.StatusNoShow,
		event: events.AppointmentNoShow,
		apply: func(l *locked, now time.Time) (*Result, bool) {
			if now.Before(l.appt.StartTime) {
				res := failure(model.CodeInvalidStatusTransition, "status", "appointment has not started yet")
				return &res, false
			}
			return nil, false
		},
	})
}

// SweepNoShows marks every appointment that started more than the configured
// grace period ago without a check-in. Individual failures are logged and do
// not stop the sweep; the count of appointments marked is returned.
func (e *Engine) SweepNoShows(ctx context.Context) (int, error) {
	cutoff := e.clock().Add(-e.cfg.NoShowGrace)
	var candidates []model.Appointment
	err := e.store.Snapshot(ctx, func(ctx context.Context, tx storage.ReadTx) error {
		var err error
		candidates, err = tx.NoShowCandidates(ctx, cutoff, 200)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list no-show candidates: %w", err)
	}

	marked := 0
	for _, a := range candidates {
		if err := ctx.Err(); err != nil {
			return marked, err
		}
		res, err := e.MarkNoShow(ctx, a.ID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return marked, err
			}
			e.logger.Warn("no-show sweep failed for appointment", "appointment_id", a.ID, "err", err)
			continue
		}
		if res.Success {
			marked++
		}
	}
	return marked, nil
}
