package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	MaxReschedules    int
	MinRescheduleLead time.Duration
	NoShowGrace       time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxReschedules:    3,
		MinRescheduleLead: 2 * time.Hour,
		NoShowGrace:       30 * time.Minute,
	}
}

// Result is the outcome of a mutating operation. Business-rule failures are
// reported here with Success=false; only infrastructure failures are
// returned as Go errors.
type Result struct {
	Success     bool                 `json:"success"`
	Appointment *model.Appointment   `json:"appointment,omitempty"`
	Errors      []model.BookingError `json:"errors,omitempty"`
	Warnings    []string             `json:"warnings,omitempty"`
}

func failure(code model.ErrorCode, field, format string, args ...any) Result {
	return Result{Errors: []model.BookingError{{Code: code, Message: fmt.Sprintf(format, args...), Field: field}}}
}

func succeeded(a model.Appointment, warnings []string) Result {
	return Result{Success: true, Appointment: &a, Warnings: warnings}
}

// FirstCode returns the code of the first reported error, if any.
func (r Result) FirstCode() model.ErrorCode {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Code
}

type Engine struct {
	store    storage.Store
	detector *conflict.Detector
	events   *events.Broadcaster
	logger   *slog.Logger
	tracer   trace.Tracer
	cfg      Config
	now      func() time.Time
}

type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(store storage.Store, broadcaster *events.Broadcaster, logger *slog.Logger, cfg Config, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if broadcaster == nil {
		broadcaster = events.NewBroadcaster(logger, 0)
	}
	def := DefaultConfig()
	if cfg.MaxReschedules <= 0 {
		cfg.MaxReschedules = def.MaxReschedules
	}
	if cfg.MinRescheduleLead <= 0 {
		cfg.MinRescheduleLead = def.MinRescheduleLead
	}
	if cfg.NoShowGrace <= 0 {
		cfg.NoShowGrace = def.NoShowGrace
	}
	e := &Engine{
		store:    store,
		detector: conflict.NewDetector(),
		events:   broadcaster,
		logger:   logger,
		tracer:   otel.Tracer("booking-service/booking"),
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Events() *events.Broadcaster { return e.events }

func (e *Engine) clock() time.Time { return e.now().UTC() }

// infraError records a storage failure on the span and wraps it for the caller.
func (e *Engine) infraError(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if storage.IsRetryable(err) {
		e.logger.Warn("retryable storage failure", "op", op, "err", err)
	} else {
		e.logger.Error("storage failure", "op", op, "err", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func recordOutcome(span trace.Span, res Result) {
	if !res.Success {
		span.SetStatus(codes.Error, string(res.FirstCode()))
	}
}

// enqueue writes the event to the outbox inside tx and returns the function
// that fans it out in-process once the transaction has committed. The commit
// timestamp is taken once here so the outbox copy and the in-process copy
// carry the same value.
func (e *Engine) enqueue(ctx context.Context, tx storage.Tx, evt events.AppointmentEvent, loc *time.Location) (func(), error) {
	evt.CommittedAt = e.clock()
	rec, err := outbox.NewEvent("appointment", evt.Appointment.ID, evt.KafkaTopic(), evt)
	if err != nil {
		return nil, err
	}
	if err := tx.AppendOutbox(ctx, rec); err != nil {
		return nil, fmt.Errorf("append outbox: %w", err)
	}
	return func() { e.publishAppointment(evt, loc) }, nil
}

func (e *Engine) publishAppointment(evt events.AppointmentEvent, loc *time.Location) {
	e.events.PublishAppointment(evt)

	a := evt.Appointment
	var schedule []events.ProviderScheduleEvent
	var calendar []events.CalendarEvent
	switch evt.Type {
	case events.AppointmentCreated:
		schedule = append(schedule, events.ProviderScheduleEvent{Type: events.ScheduleSlotsBooked, ProviderID: a.ProviderID, AffectedSlots: []model.TimeWindow{a.Window()}})
		calendar = append(calendar, events.CalendarEvent{Type: events.CalendarAppointmentAdded, ProviderID: a.ProviderID, AffectedDate: events.Day(a.StartTime, loc), Appointments: []model.Appointment{a}})
	case events.AppointmentCancelled, events.AppointmentNoShow:
		schedule = append(schedule, events.ProviderScheduleEvent{Type: events.ScheduleSlotsFreed, ProviderID: a.ProviderID, AffectedSlots: []model.TimeWindow{a.Window()}})
		calendar = append(calendar, events.CalendarEvent{Type: events.CalendarAppointmentRemoved, ProviderID: a.ProviderID, AffectedDate: events.Day(a.StartTime, loc), Appointments: []model.Appointment{a}})
	case events.AppointmentRescheduled:
		if prev := evt.Previous; prev != nil {
			schedule = append(schedule, events.ProviderScheduleEvent{Type: events.ScheduleSlotsFreed, ProviderID: prev.ProviderID, AffectedSlots: []model.TimeWindow{prev.Window()}})
			calendar = append(calendar, events.CalendarEvent{Type: events.CalendarAppointmentRemoved, ProviderID: prev.ProviderID, AffectedDate: events.Day(prev.StartTime, loc), Appointments: []model.Appointment{*prev}})
		}
		schedule = append(schedule, events.ProviderScheduleEvent{Type: events.ScheduleSlotsBooked, ProviderID: a.ProviderID, AffectedSlots: []model.TimeWindow{a.Window()}})
		calendar = append(calendar, events.CalendarEvent{Type: events.CalendarAppointmentAdded, ProviderID: a.ProviderID, AffectedDate: events.Day(a.StartTime, loc), Appointments: []model.Appointment{a}})
	default:
		calendar = append(calendar, events.CalendarEvent{Type: events.CalendarAppointmentUpdated, ProviderID: a.ProviderID, AffectedDate: events.Day(a.StartTime, loc), Appointments: []model.Appointment{a}})
	}
	for _, s := range schedule {
		s.CommittedAt = evt.CommittedAt
		e.events.PublishSchedule(s)
	}
	for _, c := range calendar {
		c.CommittedAt = evt.CommittedAt
		e.events.PublishCalendar(c)
	}
}

// locked is an appointment together with its provider and client, all row
// locked in the canonical order.
type locked struct {
	appt     model.Appointment
	provider model.Provider
	client   model.Client
}

// lockAppointment reads the appointment to learn its owners, then locks the
// provider, the client and finally the appointment row.
func lockAppointment(ctx context.Context, tx storage.Tx, id string) (locked, *Result, error) {
	peek, err := tx.Appointment(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		res := failure(model.CodeAppointmentNotFound, "appointmentId", "appointment %s not found", id)
		return locked{}, &res, nil
	}
	if err != nil {
		return locked{}, nil, err
	}
	var l locked
	if l.provider, err = tx.LockProvider(ctx, peek.ProviderID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			res := failure(model.CodeProviderNotFound, "providerId", "provider %s not found", peek.ProviderID)
			return locked{}, &res, nil
		}
		return locked{}, nil, err
	}
	if l.client, err = tx.LockClient(ctx, peek.ClientID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			res := failure(model.CodeClientNotFound, "clientId", "client %s not found", peek.ClientID)
			return locked{}, &res, nil
		}
		return locked{}, nil, err
	}
	if l.appt, err = tx.LockAppointment(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			res := failure(model.CodeAppointmentNotFound, "appointmentId", "appointment %s not found", id)
			return locked{}, &res, nil
		}
		return locked{}, nil, err
	}
	return l, nil, nil
}

func remember(ctx context.Context, tx storage.Tx, scope, key string, res Result) error {
	if key == "" {
		return nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal idempotent response: %w", err)
	}
	return tx.FinalizeIdempotency(ctx, scope, key, b)
}

func newID() string { return uuid.NewString() }

func timePtr(t time.Time) *time.Time { return &t }
