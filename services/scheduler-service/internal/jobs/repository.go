package jobs

import (
	"context"
	_ "embed"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptengine/libs/db"
	otelx "github.com/md-rashed-zaman/apptengine/libs/otel"
	"github.com/md-rashed-zaman/apptengine/services/scheduler-service/internal/reminders"
)

//go:embed schema.sql
var schema string

const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

type Job struct {
	ID            int64
	AppointmentID string
	RemindAt      time.Time
	Payload       []byte
	Traceparent   string
	Tracestate    string
	Attempts      int
	MaxAttempts   int
	NextRunAt     time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

// Apply cancels and schedules reminders for one appointment event atomically.
func (r *Repository) Apply(ctx context.Context, plan reminders.Plan) error {
	if plan.Empty() {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.Cancel(ctx, tx, plan.Cancel); err != nil {
		return err
	}
	if plan.Schedule != nil {
		if err := r.Upsert(ctx, tx, *plan.Schedule); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Upsert queues a reminder, replacing any unsent one for the same appointment.
func (r *Repository) Upsert(ctx context.Context, tx pgx.Tx, rem reminders.Reminder) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO reminder_jobs (appointment_id, remind_at, payload, next_run_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $2, $4, $5)
		ON CONFLICT (appointment_id) DO UPDATE
		SET remind_at = EXCLUDED.remind_at,
		    payload = EXCLUDED.payload,
		    next_run_at = EXCLUDED.next_run_at,
		    traceparent = EXCLUDED.traceparent,
		    tracestate = EXCLUDED.tracestate,
		    status = 'pending',
		    attempts = 0,
		    last_error = NULL,
		    updated_at = now()
		WHERE reminder_jobs.status <> 'sent'
	`, rem.AppointmentID, rem.RemindAt, rem.Payload, traceparent, tracestate)
	return err
}

func (r *Repository) Cancel(ctx context.Context, tx pgx.Tx, appointmentIDs []string) error {
	if len(appointmentIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'cancelled', updated_at = now()
		WHERE appointment_id = ANY($1) AND status = 'pending'
	`, appointmentIDs)
	return err
}

// FetchDue locks pending jobs whose run time has passed. Jobs locked by
// another worker are skipped.
func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, appointment_id, remind_at, payload, traceparent, tracestate, attempts, max_attempts, next_run_at
		FROM reminder_jobs
		WHERE status = 'pending' AND next_run_at <= now()
		ORDER BY next_run_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Job, error) {
		var j Job
		err := row.Scan(&j.ID, &j.AppointmentID, &j.RemindAt, &j.Payload, &j.Traceparent, &j.Tracestate,
			&j.Attempts, &j.MaxAttempts, &j.NextRunAt)
		return j, err
	})
}

func (r *Repository) MarkSent(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'sent', updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, maxAttempts int, nextRunAt time.Time, lastError string) error {
	status := StatusPending
	if attempts >= maxAttempts {
		status = StatusFailed
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, status, nextRunAt, lastError)
	return err
}
