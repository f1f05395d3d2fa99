package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptengine/libs/db"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/outbox"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

type Postgres struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPostgres(pool *db.Pool, outboxRepo *outbox.Repository) *Postgres {
	return &Postgres{pool: pool, outbox: outboxRepo}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := p.pool.Serializable(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx, outbox: p.outbox, locking: true})
	})
	return mapErr(err)
}

func (p *Postgres) Snapshot(ctx context.Context, fn func(ctx context.Context, tx ReadTx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return mapErr(err)
	}
	return mapErr(tx.Commit(ctx))
}

func (p *Postgres) SaveProvider(ctx context.Context, pr model.Provider) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO providers
			(id, name, email, schedule, offerings, licenses, practice_state, buffer_minutes, timezone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			schedule = EXCLUDED.schedule,
			offerings = EXCLUDED.offerings,
			licenses = EXCLUDED.licenses,
			practice_state = EXCLUDED.practice_state,
			buffer_minutes = EXCLUDED.buffer_minutes,
			timezone = EXCLUDED.timezone,
			updated_at = now()
	`, pr.ID, pr.Name, pr.Email, pr.Schedule, pr.Offerings, pr.Licenses, pr.PracticeState, pr.BufferMinutes, pr.Timezone)
	return mapErr(err)
}

func (p *Postgres) SaveClient(ctx context.Context, c model.Client) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO clients
			(id, first_name, last_name, email, phone, medical, consents, visit_count, loyalty_points, lifetime_spend, preferences)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::numeric, $11)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			medical = EXCLUDED.medical,
			consents = EXCLUDED.consents,
			preferences = EXCLUDED.preferences,
			updated_at = now()
	`, c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.Medical, c.Consents, c.VisitCount, c.LoyaltyPoints,
		c.LifetimeSpend.String(), c.Preferences)
	return mapErr(err)
}

func (p *Postgres) Ready(ctx context.Context) error {
	return db.ReadyCheck(p.pool)(ctx)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case db.IsLockTimeout(err):
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	case db.IsSerializationFailure(err):
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return err
}

type pgTx struct {
	tx      pgx.Tx
	outbox  *outbox.Repository
	locking bool
}

func (t *pgTx) forUpdate() string {
	if t.locking {
		return "FOR UPDATE"
	}
	return ""
}

const providerColumns = `id, name, email, schedule, offerings, licenses, practice_state, buffer_minutes, timezone,
	created_at, updated_at, deleted_at`

func scanProvider(row pgx.Row) (model.Provider, error) {
	var p model.Provider
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Schedule, &p.Offerings, &p.Licenses, &p.PracticeState,
		&p.BufferMinutes, &p.Timezone, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	return p, mapErr(err)
}

const clientColumns = `id, first_name, last_name, email, phone, medical, consents, visit_count, loyalty_points,
	lifetime_spend::text, preferences, created_at, updated_at, deleted_at`

func scanClient(row pgx.Row) (model.Client, error) {
	var c model.Client
	var spend string
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Medical, &c.Consents, &c.VisitCount,
		&c.LoyaltyPoints, &spend, &c.Preferences, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err != nil {
		return model.Client{}, mapErr(err)
	}
	if c.LifetimeSpend, err = decimal.NewFromString(spend); err != nil {
		return model.Client{}, fmt.Errorf("parse lifetime_spend: %w", err)
	}
	return c, nil
}

const appointmentColumns = `id, number, client_id, provider_id, service_type, start_time, end_time, duration_minutes,
	duration_overridden, status, price::text, notes, requested_products, products_used, cancellation,
	reschedule_count, reschedule_history, rescheduled_from_id, rescheduled_to_id,
	confirmed_at, checked_in_at, started_at, completed_at, created_at, updated_at, deleted_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var price string
	err := row.Scan(
		&a.ID,
		&a.Number,
		&a.ClientID,
		&a.ProviderID,
		&a.ServiceType,
		&a.StartTime,
		&a.EndTime,
		&a.DurationMinutes,
		&a.DurationOverridden,
		&a.Status,
		&price,
		&a.Notes,
		&a.RequestedProducts,
		&a.ProductsUsed,
		&a.Cancellation,
		&a.RescheduleCount,
		&a.RescheduleHistory,
		&a.RescheduledFromID,
		&a.RescheduledToID,
		&a.ConfirmedAt,
		&a.CheckedInAt,
		&a.StartedAt,
		&a.CompletedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.DeletedAt,
	)
	if err != nil {
		return model.Appointment{}, mapErr(err)
	}
	if a.Price, err = decimal.NewFromString(price); err != nil {
		return model.Appointment{}, fmt.Errorf("parse price: %w", err)
	}
	return a, nil
}

func collectAppointments(rows pgx.Rows, err error) ([]model.Appointment, error) {
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, mapErr(rows.Err())
}

const exceptionColumns = `id, provider_id, type, start_time, end_time, recurrence, capacity, approval_status, reason,
	created_at, updated_at, deleted_at`

func scanException(row pgx.Row) (model.AvailabilityException, error) {
	var e model.AvailabilityException
	err := row.Scan(&e.ID, &e.ProviderID, &e.Type, &e.StartTime, &e.EndTime, &e.Recurrence, &e.Capacity,
		&e.Approval, &e.Reason, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt)
	return e, mapErr(err)
}

func (t *pgTx) Provider(ctx context.Context, id string) (model.Provider, error) {
	return scanProvider(t.tx.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (t *pgTx) Client(ctx context.Context, id string) (model.Client, error) {
	return scanClient(t.tx.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (t *pgTx) Appointment(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(t.tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (t *pgTx) Exception(ctx context.Context, providerID, id string) (model.AvailabilityException, error) {
	return scanException(t.tx.QueryRow(ctx, `
		SELECT `+exceptionColumns+`
		FROM availability_exceptions
		WHERE id = $1 AND provider_id = $2 AND deleted_at IS NULL
	`, id, providerID))
}

func (t *pgTx) ProviderAppointments(ctx context.Context, providerID string, start, end time.Time) ([]model.Appointment, error) {
	return collectAppointments(t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
			AND deleted_at IS NULL
			AND status NOT IN ('COMPLETED', 'CANCELLED', 'NO_SHOW')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
		`+t.forUpdate(), providerID, start, end))
}

func (t *pgTx) ClientAppointments(ctx context.Context, clientID string, start, end time.Time) ([]model.Appointment, error) {
	return collectAppointments(t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE client_id = $1
			AND deleted_at IS NULL
			AND status NOT IN ('COMPLETED', 'CANCELLED', 'NO_SHOW')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
		`+t.forUpdate(), clientID, start, end))
}

func (t *pgTx) AppointmentsByProvider(ctx context.Context, providerID string, from, to time.Time) ([]model.Appointment, error) {
	return collectAppointments(t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1 AND deleted_at IS NULL AND start_time < $3 AND end_time > $2
		ORDER BY start_time ASC
	`, providerID, from, to))
}

func (t *pgTx) AppointmentsByClient(ctx context.Context, clientID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	return collectAppointments(t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE client_id = $1 AND deleted_at IS NULL
		ORDER BY start_time DESC
		LIMIT $2
	`, clientID, limit))
}

func (t *pgTx) NoShowCandidates(ctx context.Context, startedBefore time.Time, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	return collectAppointments(t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE deleted_at IS NULL
			AND status IN ('SCHEDULED', 'CONFIRMED')
			AND start_time < $1
		ORDER BY start_time ASC
		LIMIT $2
	`, startedBefore, limit))
}

func (t *pgTx) Exceptions(ctx context.Context, providerID string, start, end time.Time) ([]model.AvailabilityException, error) {
	lock := ""
	if t.locking {
		lock = "FOR SHARE"
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+exceptionColumns+`
		FROM availability_exceptions
		WHERE provider_id = $1
			AND deleted_at IS NULL
			AND start_time < $3
			AND (end_time > $2 OR recurrence IS NOT NULL)
		ORDER BY start_time ASC
		`+lock, providerID, start, end)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []model.AvailabilityException
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, mapErr(rows.Err())
}

func (t *pgTx) LockProvider(ctx context.Context, id string) (model.Provider, error) {
	return scanProvider(t.tx.QueryRow(ctx, `
		SELECT `+providerColumns+` FROM providers WHERE id = $1 AND deleted_at IS NULL FOR UPDATE
	`, id))
}

func (t *pgTx) LockClient(ctx context.Context, id string) (model.Client, error) {
	return scanClient(t.tx.QueryRow(ctx, `
		SELECT `+clientColumns+` FROM clients WHERE id = $1 AND deleted_at IS NULL FOR UPDATE
	`, id))
}

func (t *pgTx) LockAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 AND deleted_at IS NULL FOR UPDATE
	`, id))
}

func (t *pgTx) LockIdempotencyKey(ctx context.Context, scope, key string) (IdempotencyRecord, bool, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (scope, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (scope, idempotency_key) DO NOTHING
	`, scope, key)
	if err != nil {
		return IdempotencyRecord{}, false, mapErr(err)
	}
	rec := IdempotencyRecord{Scope: scope, IdempotencyKey: key}
	var responseText string
	err = t.tx.QueryRow(ctx, `
		SELECT COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE scope = $1 AND idempotency_key = $2
		FOR UPDATE
	`, scope, key).Scan(&responseText)
	if err != nil {
		return IdempotencyRecord{}, false, mapErr(err)
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
		return rec, true, nil
	}
	return rec, false, nil
}

func (t *pgTx) FinalizeIdempotency(ctx context.Context, scope, key string, response []byte) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET response_payload = $3::jsonb, updated_at = now()
		WHERE scope = $1 AND idempotency_key = $2
	`, scope, key, string(response))
	return mapErr(err)
}

func (t *pgTx) NextAppointmentNumber(ctx context.Context, at time.Time) (string, error) {
	var n int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('appointment_number_seq')`).Scan(&n); err != nil {
		return "", mapErr(err)
	}
	return FormatAppointmentNumber(at, n), nil
}

func (t *pgTx) InsertAppointment(ctx context.Context, a model.Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, number, client_id, provider_id, service_type, start_time, end_time, duration_minutes,
			 duration_overridden, status, price, notes, requested_products, products_used, cancellation,
			 reschedule_count, reschedule_history, rescheduled_from_id, rescheduled_to_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::numeric, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)
	`, a.ID, a.Number, a.ClientID, a.ProviderID, a.ServiceType, a.StartTime, a.EndTime, a.DurationMinutes,
		a.DurationOverridden, a.Status, a.Price.String(), a.Notes, a.RequestedProducts, a.ProductsUsed, a.Cancellation,
		a.RescheduleCount, a.RescheduleHistory, a.RescheduledFromID, a.RescheduledToID, a.CreatedAt)
	return mapErr(err)
}

func (t *pgTx) UpdateAppointment(ctx context.Context, a model.Appointment) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			notes = $3,
			products_used = $4,
			cancellation = $5,
			rescheduled_to_id = $6,
			confirmed_at = $7,
			checked_in_at = $8,
			started_at = $9,
			completed_at = $10,
			updated_at = $11
		WHERE id = $1 AND deleted_at IS NULL
	`, a.ID, a.Status, a.Notes, a.ProductsUsed, a.Cancellation, a.RescheduledToID,
		a.ConfirmedAt, a.CheckedInAt, a.StartedAt, a.CompletedAt, a.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) UpdateClient(ctx context.Context, c model.Client) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE clients
		SET visit_count = $2, loyalty_points = $3, lifetime_spend = $4::numeric, updated_at = $5
		WHERE id = $1 AND deleted_at IS NULL
	`, c.ID, c.VisitCount, c.LoyaltyPoints, c.LifetimeSpend.String(), c.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertException(ctx context.Context, e model.AvailabilityException) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO availability_exceptions
			(id, provider_id, type, start_time, end_time, recurrence, capacity, approval_status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, e.ID, e.ProviderID, e.Type, e.StartTime, e.EndTime, e.Recurrence, e.Capacity, e.Approval, e.Reason, e.CreatedAt)
	return mapErr(err)
}

func (t *pgTx) UpdateException(ctx context.Context, e model.AvailabilityException) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE availability_exceptions
		SET approval_status = $3, reason = $4, updated_at = $5, deleted_at = $6
		WHERE id = $1 AND provider_id = $2 AND deleted_at IS NULL
	`, e.ID, e.ProviderID, e.Approval, e.Reason, e.UpdatedAt, e.DeletedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendOutbox(ctx context.Context, evt outbox.Event) error {
	if t.outbox == nil {
		return nil
	}
	return mapErr(t.outbox.Insert(ctx, t.tx, evt))
}
