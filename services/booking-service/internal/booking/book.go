package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type BookRequest struct {
	ClientID          string
	ProviderID        string
	ServiceType       model.ServiceType
	StartTime         time.Time
	EndTime           time.Time
	Notes             string
	RequestedProducts []string
	// AllowDurationOverride accepts a window whose length differs from the
	// offering's standard duration.
	AllowDurationOverride bool
	// IdempotencyKey, scoped to the client, replays the first outcome.
	IdempotencyKey string
	BookedBy       model.Actor
}

// Book reserves a window for a client with a provider. Everything from the
// provider lock to the insert happens in one serializable transaction, so
// of any number of concurrent requests for the same exclusive slot exactly
// one succeeds.
func (e *Engine) Book(ctx context.Context, req BookRequest) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "booking.Book", trace.WithAttributes(
		attribute.String("provider_id", req.ProviderID),
		attribute.String("client_id", req.ClientID),
		attribute.String("service_type", string(req.ServiceType)),
	))
	defer span.End()

	window := model.TimeWindow{Start: req.StartTime, End: req.EndTime}
	if res, ok := e.validateWindow(window); !ok {
		recordOutcome(span, res)
		return res, nil
	}

	var out Result
	var publish func()
	err := e.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		out, publish = Result{}, nil
		if req.IdempotencyKey != "" {
			rec, exists, err := tx.LockIdempotencyKey(ctx, req.ClientID, req.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("lock idempotency key: %w", err)
			}
			if exists {
				span.SetAttributes(attribute.Bool("idempotent_replay", true))
				return json.Unmarshal(rec.ResponsePayload, &out)
			}
		}

		d, res, err := e.prepare(ctx, tx, draftRequest{
			ClientID:      req.ClientID,
			ProviderID:    req.ProviderID,
			ServiceType:   req.ServiceType,
			Window:        window,
			AllowOverride: req.AllowDurationOverride,
		})
		if err != nil {
			return err
		}
		if !res.Success {
			out = res
			return remember(ctx, tx, req.ClientID, req.IdempotencyKey, out)
		}

		a := d.appt
		a.Notes = req.Notes
		a.RequestedProducts = req.RequestedProducts
		if err := tx.InsertAppointment(ctx, a); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		publish, err = e.enqueue(ctx, tx, events.AppointmentEvent{
			Type:        events.AppointmentCreated,
			Appointment: a,
			Client:      events.ContactFor(d.client),
		}, d.provider.Location())
		if err != nil {
			return err
		}
		out = succeeded(a, res.Warnings)
		return remember(ctx, tx, req.ClientID, req.IdempotencyKey, out)
	})
	if err != nil {
		return Result{}, e.infraError(span, "book appointment", err)
	}
	recordOutcome(span, out)
	if publish != nil {
		publish()
		e.logger.Info("appointment booked",
			"appointment_id", out.Appointment.ID,
			"number", out.Appointment.Number,
			"provider_id", out.Appointment.ProviderID,
			"client_id", out.Appointment.ClientID,
			"start_time", out.Appointment.StartTime,
		)
	}
	return out, nil
}

func (e *Engine) validateWindow(w model.TimeWindow) (Result, bool) {
	if w.Start.IsZero() || w.End.IsZero() {
		return failure(model.CodeInvalidTimeRange, "startTime", "start and end time are required"), false
	}
	if !w.Valid() {
		return failure(model.CodeInvalidTimeRange, "endTime", "end time must be after start time"), false
	}
	if w.Start.Before(e.clock()) {
		return failure(model.CodeInvalidTimeRange, "startTime", "start time is in the past"), false
	}
	return Result{}, true
}

type draftRequest struct {
	ClientID             string
	ProviderID           string
	ServiceType          model.ServiceType
	Window               model.TimeWindow
	AllowOverride        bool
	ExcludeAppointmentID string
}

type draft struct {
	appt     model.Appointment
	provider model.Provider
	client   model.Client
}

// prepare runs every booking rule under the provider and client locks and
// returns the appointment that would be created. Nothing is written.
func (e *Engine) prepare(ctx context.Context, tx storage.Tx, req draftRequest) (draft, Result, error) {
	provider, err := tx.LockProvider(ctx, req.ProviderID)
	if errors.Is(err, storage.ErrNotFound) {
		return draft{}, failure(model.CodeProviderNotFound, "providerId", "provider %s not found", req.ProviderID), nil
	}
	if err != nil {
		return draft{}, Result{}, fmt.Errorf("lock provider: %w", err)
	}

	offering, ok := provider.Offering(req.ServiceType)
	if !ok {
		return draft{}, failure(model.CodeServiceNotOffered, "serviceType", "provider does not offer %s", req.ServiceType), nil
	}
	if !provider.IsAuthorized(offering, req.Window.Start) {
		return draft{}, failure(model.CodeServiceNotOffered, "serviceType", "provider is not licensed for %s in %s", req.ServiceType, provider.PracticeState), nil
	}

	dur := req.Window.Duration()
	if dur%time.Minute != 0 {
		return draft{}, failure(model.CodeInvalidTimeRange, "endTime", "duration must be a whole number of minutes"), nil
	}
	if !req.AllowOverride && dur != offering.Duration() {
		return draft{}, failure(model.CodeInvalidTimeRange, "endTime", "%s takes %d minutes, requested %d", req.ServiceType, offering.DurationMinutes, int(dur/time.Minute)), nil
	}

	client, err := tx.LockClient(ctx, req.ClientID)
	if errors.Is(err, storage.ErrNotFound) {
		return draft{}, failure(model.CodeClientNotFound, "clientId", "client %s not found", req.ClientID), nil
	}
	if err != nil {
		return draft{}, Result{}, fmt.Errorf("lock client: %w", err)
	}

	if !client.HasValidConsent(req.ServiceType, req.Window.Start) {
		return draft{}, failure(model.CodeMissingConsent, "clientId", "no valid consent form covers %s", req.ServiceType), nil
	}
	if client.IsContraindicated(req.ServiceType) {
		return draft{}, failure(model.CodeContraindication, "serviceType", "client has a recorded contraindication for %s", req.ServiceType), nil
	}

	check, err := e.detector.Check(ctx, tx, provider, conflict.Request{
		ClientID:             client.ID,
		ServiceType:          req.ServiceType,
		Window:               req.Window,
		ExcludeAppointmentID: req.ExcludeAppointmentID,
	})
	if err != nil {
		return draft{}, Result{}, fmt.Errorf("check conflicts: %w", err)
	}
	if check.HasConflict {
		res := Result{}
		for _, c := range check.Conflicts {
			res.Errors = append(res.Errors, model.BookingError{Code: c.Reason.Code(), Message: c.Message, Field: "startTime"})
		}
		return draft{}, res, nil
	}

	now := e.clock()
	number, err := tx.NextAppointmentNumber(ctx, now)
	if err != nil {
		return draft{}, Result{}, fmt.Errorf("next appointment number: %w", err)
	}

	var warnings []string
	if client.MedicalHistoryStale(now) {
		warnings = append(warnings, fmt.Sprintf("client medical history not updated in over %d months", model.MedicalHistoryMaxAge))
	}
	if len(client.Medical.Allergies) > 0 {
		warnings = append(warnings, "client has recorded allergies: "+strings.Join(client.Medical.Allergies, ", "))
	}

	a := model.Appointment{
		ID:                 newID(),
		Number:             number,
		ClientID:           client.ID,
		ProviderID:         provider.ID,
		ServiceType:        req.ServiceType,
		StartTime:          req.Window.Start.UTC(),
		EndTime:            req.Window.End.UTC(),
		DurationMinutes:    int(dur / time.Minute),
		DurationOverridden: dur != offering.Duration(),
		Status:             model.StatusScheduled,
		Price:              offering.Price,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return draft{appt: a, provider: provider, client: client}, Result{Success: true, Warnings: warnings}, nil
}
