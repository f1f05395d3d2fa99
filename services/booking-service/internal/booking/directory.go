package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
)

// ErrInvalidRecord rejects provider or client records that could never be booked against.
var ErrInvalidRecord = errors.New("invalid record")

// SaveProvider registers or replaces a provider's profile, weekly schedule and offerings.
func (e *Engine) SaveProvider(ctx context.Context, p model.Provider) error {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidRecord)
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidRecord, p.Timezone)
		}
	}
	if err := p.Schedule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if p.BufferMinutes < 0 {
		return fmt.Errorf("%w: buffer must not be negative", ErrInvalidRecord)
	}
	seen := map[model.ServiceType]bool{}
	for _, o := range p.Offerings {
		if o.ServiceType == "" || o.DurationMinutes <= 0 || o.Capacity < 0 || o.Price.IsNegative() {
			return fmt.Errorf("%w: invalid offering %q", ErrInvalidRecord, o.ServiceType)
		}
		if seen[o.ServiceType] {
			return fmt.Errorf("%w: duplicate offering %q", ErrInvalidRecord, o.ServiceType)
		}
		seen[o.ServiceType] = true
	}
	if err := e.store.SaveProvider(ctx, p); err != nil {
		return fmt.Errorf("save provider: %w", err)
	}
	e.logger.Info("provider saved", "provider_id", p.ID, "offerings", len(p.Offerings))
	return nil
}

func (e *Engine) SaveClient(ctx context.Context, c model.Client) error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRecord)
	}
	if err := e.store.SaveClient(ctx, c); err != nil {
		return fmt.Errorf("save client: %w", err)
	}
	e.logger.Info("client saved", "client_id", c.ID)
	return nil
}
