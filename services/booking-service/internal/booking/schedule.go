package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// exceptionHorizon bounds how far ahead recurring exceptions are expanded
// when reporting affected slots and overlapping appointments.
const exceptionHorizon = 90 * 24 * time.Hour

type ExceptionRequest struct {
	ProviderID  string
	Type        model.ExceptionType
	StartTime   time.Time
	EndTime     time.Time
	Recurrence  *model.RecurrenceRule
	Capacity    int
	Reason      string
	RequestedBy model.Actor
}

type ExceptionResult struct {
	Success   bool                         `json:"success"`
	Exception *model.AvailabilityException `json:"exception,omitempty"`
	Errors    []model.BookingError         `json:"errors,omitempty"`
	Warnings  []string                     `json:"warnings,omitempty"`
}

func exceptionFailure(code model.ErrorCode, field, format string, args ...any) ExceptionResult {
	return ExceptionResult{Errors: []model.BookingError{{Code: code, Message: fmt.Sprintf(format, args...), Field: field}}}
}

// defaultApproval: blocking time and admin-entered exceptions take effect
// immediately; extra hours requested by a provider await approval.
func defaultApproval(t model.ExceptionType, by model.Actor) model.ApprovalStatus {
	if t.Blocks() || by == model.ActorAdmin || by == model.ActorSystem {
		return model.ApprovalApproved
	}
	return model.ApprovalPending
}

func validateException(req ExceptionRequest) (ExceptionResult, bool) {
	switch {
	case !req.Type.Valid():
		return exceptionFailure(model.CodeInvalidException, "type", "unknown exception type %q", req.Type), false
	case req.StartTime.IsZero() || !req.StartTime.Before(req.EndTime):
		return exceptionFailure(model.CodeInvalidTimeRange, "endTime", "end time must be after start time"), false
	case req.Capacity < 0:
		return exceptionFailure(model.CodeInvalidException, "capacity", "capacity must not be negative"), false
	case req.Type == model.ExceptionGroupSession && req.Capacity < 2:
		return exceptionFailure(model.CodeInvalidException, "capacity", "group sessions need a capacity of at least 2"), false
	}
	if err := availability.ValidateRule(req.Recurrence, req.StartTime); err != nil {
		return exceptionFailure(model.CodeInvalidException, "recurrence", "%v", err), false
	}
	return ExceptionResult{}, true
}

// AddException records blocked or extra time for a provider under the
// provider row lock, so it serializes with bookings for that provider.
func (e *Engine) AddException(ctx context.Context, req ExceptionRequest) (ExceptionResult, error) {
	ctx, span := e.tracer.Start(ctx, "booking.AddException", trace.WithAttributes(
		attribute.String("provider_id", req.ProviderID),
		attribute.String("exception_type", string(req.Type)),
	))
	defer span.End()

	if res, ok := validateException(req); !ok {
		return res, nil
	}

	var out ExceptionResult
	var publish func()
	err := e.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		out, publish = ExceptionResult{}, nil
		provider, err := tx.LockProvider(ctx, req.ProviderID)
		if errors.Is(err, storage.ErrNotFound) {
			out = exceptionFailure(model.CodeProviderNotFound, "providerId", "provider %s not found", req.ProviderID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock provider: %w", err)
		}

		now := e.clock()
		ex := model.AvailabilityException{
			ID:         newID(),
			ProviderID: provider.ID,
			Type:       req.Type,
			StartTime:  req.StartTime.UTC(),
			EndTime:    req.EndTime.UTC(),
			Recurrence: req.Recurrence,
			Capacity:   req.Capacity,
			Approval:   defaultApproval(req.Type, req.RequestedBy),
			Reason:     req.Reason,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		loc := provider.Location()
		occurrences := availability.Occurrences(ex, loc, ex.StartTime, ex.StartTime.Add(exceptionHorizon))

		var warnings []string
		if ex.Type.Blocks() {
			n := 0
			for _, occ := range occurrences {
				overlapping, err := tx.ProviderAppointments(ctx, provider.ID, occ.Start, occ.End)
				if err != nil {
					return fmt.Errorf("list overlapping appointments: %w", err)
				}
				n += len(overlapping)
			}
			if n > 0 {
				warnings = append(warnings, fmt.Sprintf("%d existing appointment(s) overlap this exception and were not cancelled", n))
			}
		}
		if ex.Approval == model.ApprovalPending {
			warnings = append(warnings, "exception is pending approval and does not open time yet")
		}

		if err := tx.InsertException(ctx, ex); err != nil {
			return fmt.Errorf("insert exception: %w", err)
		}
		publish, err = e.enqueueSchedule(ctx, tx, events.ProviderScheduleEvent{
			Type:          events.ScheduleExceptionAdded,
			ProviderID:    provider.ID,
			ExceptionID:   ex.ID,
			AffectedSlots: occurrences,
		}, loc)
		if err != nil {
			return err
		}
		out = ExceptionResult{Success: true, Exception: &ex, Warnings: warnings}
		return nil
	})
	if err != nil {
		return ExceptionResult{}, e.infraError(span, "add exception", err)
	}
	if publish != nil {
		publish()
		e.logger.Info("availability exception added", "provider_id", req.ProviderID, "exception_id", out.Exception.ID, "type", req.Type)
	}
	return out, nil
}

// RemoveException soft-deletes an exception.
func (e *Engine) RemoveException(ctx context.Context, providerID, exceptionID string) (ExceptionResult, error) {
	ctx, span := e.tracer.Start(ctx, "booking.RemoveException", trace.WithAttributes(
		attribute.String("provider_id", providerID),
		attribute.String("exception_id", exceptionID),
	))
	defer span.End()

	return e.updateException(ctx, span, providerID, exceptionID, events.ScheduleExceptionRemoved, func(ex *model.AvailabilityException, now time.Time) {
		ex.DeletedAt = timePtr(now)
	})
}

// SetExceptionApproval approves or rejects a pending exception.
func (e *Engine) SetExceptionApproval(ctx context.Context, providerID, exceptionID string, status model.ApprovalStatus) (ExceptionResult, error) {
	ctx, span := e.tracer.Start(ctx, "booking.SetExceptionApproval", trace.WithAttributes(
		attribute.String("provider_id", providerID),
		attribute.String("exception_id", exceptionID),
		attribute.String("approval_status", string(status)),
	))
	defer span.End()

	switch status {
	case model.ApprovalApproved, model.ApprovalRejected, model.ApprovalPending:
	default:
		return exceptionFailure(model.CodeInvalidException, "approvalStatus", "unknown approval status %q", status), nil
	}
	return e.updateException(ctx, span, providerID, exceptionID, events.ScheduleExceptionUpdated, func(ex *model.AvailabilityException, _ time.Time) {
		ex.Approval = status
	})
}

func (e *Engine) updateException(ctx context.Context, span trace.Span, providerID, exceptionID string, typ events.ScheduleEventType, mutate func(*model.AvailabilityException, time.Time)) (ExceptionResult, error) {
	var out ExceptionResult
	var publish func()
	err := e.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		out, publish = ExceptionResult{}, nil
		provider, err := tx.LockProvider(ctx, providerID)
		if errors.Is(err, storage.ErrNotFound) {
			out = exceptionFailure(model.CodeProviderNotFound, "providerId", "provider %s not found", providerID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock provider: %w", err)
		}
		ex, err := tx.Exception(ctx, providerID, exceptionID)
		if errors.Is(err, storage.ErrNotFound) {
			out = exceptionFailure(model.CodeExceptionNotFound, "exceptionId", "exception %s not found", exceptionID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("load exception: %w", err)
		}

		now := e.clock()
		mutate(&ex, now)
		ex.UpdatedAt = now
		if err := tx.UpdateException(ctx, ex); err != nil {
			return fmt.Errorf("update exception: %w", err)
		}
		loc := provider.Location()
		live := ex
		live.DeletedAt = nil
		publish, err = e.enqueueSchedule(ctx, tx, events.ProviderScheduleEvent{
			Type:          typ,
			ProviderID:    providerID,
			ExceptionID:   ex.ID,
			AffectedSlots: availability.Occurrences(live, loc, ex.StartTime, ex.StartTime.Add(exceptionHorizon)),
		}, loc)
		if err != nil {
			return err
		}
		out = ExceptionResult{Success: true, Exception: &ex}
		return nil
	})
	if err != nil {
		return ExceptionResult{}, e.infraError(span, "update exception", err)
	}
	if publish != nil {
		publish()
		e.logger.Info("availability exception updated", "provider_id", providerID, "exception_id", exceptionID, "event", typ)
	}
	return out, nil
}

func (e *Engine) enqueueSchedule(ctx context.Context, tx storage.Tx, evt events.ProviderScheduleEvent, loc *time.Location) (func(), error) {
	evt.CommittedAt = e.clock()
	rec, err := outbox.NewEvent("provider", evt.ProviderID, evt.KafkaTopic(), evt)
	if err != nil {
		return nil, err
	}
	if err := tx.AppendOutbox(ctx, rec); err != nil {
		return nil, fmt.Errorf("append outbox: %w", err)
	}
	return func() {
		e.events.PublishSchedule(evt)
		days := map[time.Time]bool{}
		for _, w := range evt.AffectedSlots {
			d := events.Day(w.Start, loc)
			if days[d] {
				continue
			}
			days[d] = true
			e.events.PublishCalendar(events.CalendarEvent{
				Type:         events.CalendarScheduleChanged,
				ProviderID:   evt.ProviderID,
				AffectedDate: d,
				CommittedAt:  evt.CommittedAt,
			})
		}
	}, nil
}
