package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
)

type Reason string

const (
	ReasonProviderConflict    Reason = "PROVIDER_CONFLICT"
	ReasonClientConflict      Reason = "CLIENT_CONFLICT"
	ReasonCapacityExceeded    Reason = "CAPACITY_EXCEEDED"
	ReasonBlockedTime         Reason = "BLOCKED_TIME"
	ReasonOutsideWorkingHours Reason = "OUTSIDE_WORKING_HOURS"
)

// Code maps the reason onto the booking error code surfaced to callers.
func (r Reason) Code() model.ErrorCode {
	switch r {
	case ReasonProviderConflict:
		return model.CodeProviderUnavailable
	case ReasonClientConflict:
		return model.CodeClientConflict
	case ReasonCapacityExceeded:
		return model.CodeProviderAtCapacity
	case ReasonBlockedTime:
		return model.CodeBlockedTime
	case ReasonOutsideWorkingHours:
		return model.CodeOutsideWorkingHours
	}
	return model.ErrorCode(r)
}

type Detail struct {
	Reason        Reason           `json:"reason"`
	Message       string           `json:"message"`
	AppointmentID string           `json:"appointment_id,omitempty"`
	ExceptionID   string           `json:"exception_id,omitempty"`
	Window        model.TimeWindow `json:"window"`
}

type Result struct {
	HasConflict bool     `json:"has_conflict"`
	Conflicts   []Detail `json:"conflicts,omitempty"`
	Capacity    int      `json:"capacity"`
	Booked      int      `json:"booked"`
}

func (r *Result) add(d Detail) {
	r.HasConflict = true
	r.Conflicts = append(r.Conflicts, d)
}

// Reader is the data the detector needs. Inside a booking transaction the
// appointment reads lock the returned rows.
type Reader interface {
	ProviderAppointments(ctx context.Context, providerID string, start, end time.Time) ([]model.Appointment, error)
	ClientAppointments(ctx context.Context, clientID string, start, end time.Time) ([]model.Appointment, error)
	Exceptions(ctx context.Context, providerID string, start, end time.Time) ([]model.AvailabilityException, error)
}

type Request struct {
	ClientID             string
	ServiceType          model.ServiceType
	Window               model.TimeWindow
	ExcludeAppointmentID string
}

type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// Check evaluates one candidate window against the provider's booked time,
// the client's booked time, capacity, availability exceptions and the weekly
// schedule. Every detected conflict is reported, in that order.
func (d *Detector) Check(ctx context.Context, r Reader, provider model.Provider, req Request) (Result, error) {
	snap, err := load(ctx, r, provider.ID, req.ClientID, req.Window)
	if err != nil {
		return Result{}, err
	}
	return snap.evaluate(provider, req), nil
}

// CheckMany evaluates many windows with a single round of reads. Results are
// keyed by TimeWindow.Key.
func (d *Detector) CheckMany(ctx context.Context, r Reader, provider model.Provider, clientID string, serviceType model.ServiceType, windows []model.TimeWindow) (map[string]Result, error) {
	out := make(map[string]Result, len(windows))
	if len(windows) == 0 {
		return out, nil
	}
	span := windows[0]
	for _, w := range windows[1:] {
		if w.Start.Before(span.Start) {
			span.Start = w.Start
		}
		if w.End.After(span.End) {
			span.End = w.End
		}
	}
	snap, err := load(ctx, r, provider.ID, clientID, span)
	if err != nil {
		return nil, err
	}
	for _, w := range windows {
		out[w.Key()] = snap.evaluate(provider, Request{ClientID: clientID, ServiceType: serviceType, Window: w})
	}
	return out, nil
}

type snapshot struct {
	provider   []model.Appointment
	client     []model.Appointment
	exceptions []model.AvailabilityException
}

func load(ctx context.Context, r Reader, providerID, clientID string, w model.TimeWindow) (snapshot, error) {
	var s snapshot
	var err error
	if s.provider, err = r.ProviderAppointments(ctx, providerID, w.Start, w.End); err != nil {
		return s, fmt.Errorf("load provider appointments: %w", err)
	}
	if clientID != "" {
		if s.client, err = r.ClientAppointments(ctx, clientID, w.Start, w.End); err != nil {
			return s, fmt.Errorf("load client appointments: %w", err)
		}
	}
	if s.exceptions, err = r.Exceptions(ctx, providerID, w.Start, w.End); err != nil {
		return s, fmt.Errorf("load exceptions: %w", err)
	}
	return s, nil
}

func (s snapshot) evaluate(p model.Provider, req Request) Result {
	w := req.Window
	loc := p.Location()

	capacity := 1
	if o, ok := p.Offering(req.ServiceType); ok {
		capacity = o.EffectiveCapacity()
	}

	var blocks, permits []occurrence
	for _, e := range s.exceptions {
		if !e.InEffect() {
			continue
		}
		for _, occ := range availability.Occurrences(e, loc, w.Start, w.End) {
			switch {
			case e.Type.Blocks():
				blocks = append(blocks, occurrence{exception: e, window: occ})
			case e.Type.Permits() && occ.Contains(w):
				permits = append(permits, occurrence{exception: e, window: occ})
				if e.Capacity > 0 && (e.Type == model.ExceptionGroupSession || e.Type == model.ExceptionAvailable) {
					capacity = e.Capacity
				}
			}
		}
	}
	group := capacity > 1

	res := Result{Capacity: capacity}
	for _, a := range s.provider {
		if !s.counts(a, req) {
			continue
		}
		if group && a.ServiceType == req.ServiceType {
			res.Booked++
			continue
		}
		if !group {
			res.Booked++
		}
		res.add(Detail{
			Reason:        ReasonProviderConflict,
			Message:       fmt.Sprintf("provider already booked for appointment %s", a.Number),
			AppointmentID: a.ID,
			Window:        a.Window(),
		})
	}

	for _, a := range s.client {
		if !s.counts(a, req) {
			continue
		}
		res.add(Detail{
			Reason:        ReasonClientConflict,
			Message:       fmt.Sprintf("client already has appointment %s at this time", a.Number),
			AppointmentID: a.ID,
			Window:        a.Window(),
		})
	}

	if res.Booked >= capacity {
		res.add(Detail{
			Reason:  ReasonCapacityExceeded,
			Message: fmt.Sprintf("provider at capacity (%d of %d booked)", res.Booked, capacity),
			Window:  w,
		})
	}

	for _, b := range blocks {
		res.add(Detail{
			Reason:      ReasonBlockedTime,
			Message:     fmt.Sprintf("provider time blocked (%s)", b.exception.Type),
			ExceptionID: b.exception.ID,
			Window:      b.window,
		})
	}

	if len(permits) == 0 && !availability.WithinWorkingHours(p.Schedule, loc, w) {
		res.add(Detail{
			Reason:  ReasonOutsideWorkingHours,
			Message: "requested time is outside the provider's working hours",
			Window:  w,
		})
	}
	return res
}

// counts reports whether a stored appointment occupies the requested window.
func (s snapshot) counts(a model.Appointment, req Request) bool {
	if !a.Blocking() || a.ID == req.ExcludeAppointmentID {
		return false
	}
	return a.Window().Overlaps(req.Window)
}

type occurrence struct {
	exception model.AvailabilityException
	window    model.TimeWindow
}
