package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/outbox"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrLockTimeout   = errors.New("lock wait timed out")
	ErrSerialization = errors.New("transaction serialization failure")
	ErrLockOrder     = errors.New("provider lock requested after client lock")
)

// IsRetryable reports whether the whole transaction may be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrSerialization)
}

// ReadTx is a consistent, non-locking view.
type ReadTx interface {
	Provider(ctx context.Context, id string) (model.Provider, error)
	Client(ctx context.Context, id string) (model.Client, error)
	Appointment(ctx context.Context, id string) (model.Appointment, error)
	Exception(ctx context.Context, providerID, id string) (model.AvailabilityException, error)

	// ProviderAppointments and ClientAppointments return non-terminal
	// appointments overlapping [start, end).
	ProviderAppointments(ctx context.Context, providerID string, start, end time.Time) ([]model.Appointment, error)
	ClientAppointments(ctx context.Context, clientID string, start, end time.Time) ([]model.Appointment, error)
	// Exceptions returns live exceptions that overlap [start, end) or recur
	// from before end.
	Exceptions(ctx context.Context, providerID string, start, end time.Time) ([]model.AvailabilityException, error)

	AppointmentsByProvider(ctx context.Context, providerID string, from, to time.Time) ([]model.Appointment, error)
	AppointmentsByClient(ctx context.Context, clientID string, limit int) ([]model.Appointment, error)
	// NoShowCandidates lists SCHEDULED or CONFIRMED appointments that started
	// before the cutoff.
	NoShowCandidates(ctx context.Context, startedBefore time.Time, limit int) ([]model.Appointment, error)
}

// Tx is a serializable read-write transaction. Inside a Tx the
// ProviderAppointments and ClientAppointments reads lock the returned rows.
// Row locks must be taken in the order provider, client, appointment.
type Tx interface {
	ReadTx

	LockProvider(ctx context.Context, id string) (model.Provider, error)
	LockClient(ctx context.Context, id string) (model.Client, error)
	LockAppointment(ctx context.Context, id string) (model.Appointment, error)

	// LockIdempotencyKey returns the stored response for (scope, key) and
	// whether one exists, creating and locking an empty record otherwise.
	LockIdempotencyKey(ctx context.Context, scope, key string) (IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, scope, key string, response []byte) error

	NextAppointmentNumber(ctx context.Context, at time.Time) (string, error)
	InsertAppointment(ctx context.Context, a model.Appointment) error
	UpdateAppointment(ctx context.Context, a model.Appointment) error
	UpdateClient(ctx context.Context, c model.Client) error
	InsertException(ctx context.Context, e model.AvailabilityException) error
	UpdateException(ctx context.Context, e model.AvailabilityException) error
	AppendOutbox(ctx context.Context, evt outbox.Event) error
}

type Store interface {
	// InTx runs fn in a serializable transaction, committing when fn returns
	// nil. Lock waits are bounded and surface as ErrLockTimeout.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Snapshot(ctx context.Context, fn func(ctx context.Context, tx ReadTx) error) error

	SaveProvider(ctx context.Context, p model.Provider) error
	SaveClient(ctx context.Context, c model.Client) error
	Ready(ctx context.Context) error
}

type IdempotencyRecord struct {
	Scope           string
	IdempotencyKey  string
	ResponsePayload []byte
}

// Completed reports whether a response was finalized for the key.
func (r IdempotencyRecord) Completed() bool {
	return len(r.ResponsePayload) > 0
}

// FormatAppointmentNumber renders APT-YYYYMMDD-NNNNNN.
func FormatAppointmentNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("APT-%s-%06d", at.UTC().Format("20060102"), seq%1000000)
}
