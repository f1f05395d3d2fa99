package storage

import (
	"context"
	_ "embed"

	"github.com/md-rashed-zaman/apptengine/libs/db"
)

//go:embed schema.sql
var schema string

// Notification is one delivery attempt for an appointment event.
type Notification struct {
	EventID       string
	EventType     string
	AppointmentID string
	ClientID      string
	Channel       string
	Recipient     string
	Subject       string
	Body          string
	Status        string
	Error         string
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

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (event_id, event_type, appointment_id, client_id, channel, recipient, subject, body, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
	`, n.EventID, n.EventType, n.AppointmentID, n.ClientID, n.Channel, n.Recipient, n.Subject, n.Body, n.Status, n.Error)
	return err
}
