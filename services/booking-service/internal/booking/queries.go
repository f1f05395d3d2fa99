package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MaxAvailabilityRange bounds a single availability query.
const MaxAvailabilityRange = 62 * 24 * time.Hour

var (
	ErrProviderNotFound   = errors.New("provider not found")
	ErrServiceNotOffered  = errors.New("service not offered by provider")
	ErrInvalidRange       = errors.New("invalid date range")
	ErrAppointmentMissing = errors.New("appointment not found")
)

var slotNamespace = uuid.MustParse("6f1c5d1e-8a44-4c1f-9f55-2f0b8e2a7c31")

type AvailabilityQuery struct {
	ProviderID  string
	ServiceType model.ServiceType
	StartDate   time.Time
	EndDate     time.Time
}

type Slot struct {
	SlotID      string    `json:"slot_id"`
	ProviderID  string    `json:"provider_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Duration    int       `json:"duration_minutes"`
	IsAvailable bool      `json:"is_available"`
	Capacity    int       `json:"capacity"`
	BookedCount int       `json:"booked_count"`
}

// SlotID is stable for a provider, service and window so clients can refer
// to a slot across queries.
func SlotID(providerID string, serviceType model.ServiceType, w model.TimeWindow) string {
	return uuid.NewSHA1(slotNamespace, []byte(providerID+"|"+string(serviceType)+"|"+w.Key())).String()
}

// GetProviderAvailability lays out candidate slots from the weekly schedule
// and approved extra-hours exceptions, spaced by service duration plus the
// provider buffer, and evaluates them all against one consistent snapshot.
// Slots starting in the past are reported unavailable. Without a service type
// the provider's first offering is used.
func (e *Engine) GetProviderAvailability(ctx context.Context, q AvailabilityQuery) ([]Slot, error) {
	ctx, span := e.tracer.Start(ctx, "booking.GetProviderAvailability", trace.WithAttributes(
		attribute.String("provider_id", q.ProviderID),
		attribute.String("service_type", string(q.ServiceType)),
	))
	defer span.End()

	if !q.StartDate.Before(q.EndDate) || q.EndDate.Sub(q.StartDate) > MaxAvailabilityRange {
		return nil, ErrInvalidRange
	}

	var out []Slot
	err := e.store.Snapshot(ctx, func(ctx context.Context, tx storage.ReadTx) error {
		provider, err := tx.Provider(ctx, q.ProviderID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrProviderNotFound
		}
		if err != nil {
			return err
		}
		if q.ServiceType == "" {
			if len(provider.Offerings) == 0 {
				return ErrServiceNotOffered
			}
			q.ServiceType = provider.Offerings[0].ServiceType
		}
		offering, ok := provider.Offering(q.ServiceType)
		if !ok {
			return ErrServiceNotOffered
		}

		loc := provider.Location()
		dur := offering.Duration()
		step := dur + provider.Buffer()
		candidates := availability.GenerateSlots(provider.Schedule, loc, q.StartDate, q.EndDate, dur, step)

		exceptions, err := tx.Exceptions(ctx, provider.ID, q.StartDate, q.EndDate)
		if err != nil {
			return err
		}
		bounds := model.TimeWindow{Start: q.StartDate, End: q.EndDate}
		for _, ex := range exceptions {
			if !ex.Type.Permits() || !ex.InEffect() {
				continue
			}
			for _, occ := range availability.Occurrences(ex, loc, q.StartDate, q.EndDate) {
				for _, s := range availability.WindowSlots(occ, dur, step) {
					if bounds.Contains(s) {
						candidates = append(candidates, s)
					}
				}
			}
		}
		candidates = availability.MergeSlots(candidates)

		results, err := e.detector.CheckMany(ctx, tx, provider, "", q.ServiceType, candidates)
		if err != nil {
			return err
		}
		now := e.clock()
		out = make([]Slot, 0, len(candidates))
		for _, w := range candidates {
			r := results[w.Key()]
			out = append(out, Slot{
				SlotID:      SlotID(provider.ID, q.ServiceType, w),
				ProviderID:  provider.ID,
				StartTime:   w.Start,
				EndTime:     w.End,
				Duration:    offering.DurationMinutes,
				IsAvailable: !r.HasConflict && !w.Start.Before(now),
				Capacity:    r.Capacity,
				BookedCount: r.Booked,
			})
		}
		return nil
	})
	if errors.Is(err, ErrProviderNotFound) || errors.Is(err, ErrServiceNotOffered) {
		return nil, err
	}
	if err != nil {
		return nil, e.infraError(span, "get provider availability", err)
	}
	span.SetAttributes(attribute.Int("slots", len(out)))
	return out, nil
}

func (e *Engine) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	var a model.Appointment
	err := e.store.Snapshot(ctx, func(ctx context.Context, tx storage.ReadTx) error {
		var err error
		a, err = tx.Appointment(ctx, id)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return model.Appointment{}, ErrAppointmentMissing
	}
	if err != nil {
		return model.Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (e *Engine) ListClientAppointments(ctx context.Context, clientID string, limit int) ([]model.Appointment, error) {
	var out []model.Appointment
	err := e.store.Snapshot(ctx, func(ctx context.Context, tx storage.ReadTx) error {
		var err error
		out, err = tx.AppointmentsByClient(ctx, clientID, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list client appointments: %w", err)
	}
	return out, nil
}

func (e *Engine) ListProviderAppointments(ctx context.Context, providerID string, from, to time.Time) ([]model.Appointment, error) {
	if !from.Before(to) {
		return nil, ErrInvalidRange
	}
	var out []model.Appointment
	err := e.store.Snapshot(ctx, func(ctx context.Context, tx storage.ReadTx) error {
		var err error
		out, err = tx.AppointmentsByProvider(ctx, providerID, from, to)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list provider appointments: %w", err)
	}
	return out, nil
}
