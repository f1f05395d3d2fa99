package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/events"
	"github.com/redis/go-redis/v9"
)

// AvailabilityCache stores GetProviderAvailability results in Redis. Entries
// are keyed by a per-provider version number; bumping the version orphans
// every cached result for that provider, and the TTL reclaims them.
type AvailabilityCache struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewAvailabilityCache(rdb redis.UniversalClient, ttl time.Duration, prefix string, logger *slog.Logger) *AvailabilityCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "avail"
	}
	return &AvailabilityCache{rdb: rdb, ttl: ttl, prefix: prefix, logger: logger}
}

func VersionKey(prefix, providerID string) string {
	return fmt.Sprintf("%s:ver:%s", prefix, providerID)
}

func SlotsKey(prefix string, version int64, q booking.AvailabilityQuery) string {
	return fmt.Sprintf("%s:slots:%s:%d:%s:%d:%d",
		prefix, q.ProviderID, version, q.ServiceType, q.StartDate.UTC().Unix(), q.EndDate.UTC().Unix())
}

func (c *AvailabilityCache) version(ctx context.Context, providerID string) (int64, error) {
	v, err := c.rdb.Get(ctx, VersionKey(c.prefix, providerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// NoVersion is returned by Get when the provider version could not be read.
// Set ignores it.
const NoVersion int64 = -1

// Get returns cached slots and the provider version the lookup ran under. Any
// Redis failure is treated as a miss. Pass the version to Set so a result
// computed before an invalidation is filed under the old version.
func (c *AvailabilityCache) Get(ctx context.Context, q booking.AvailabilityQuery) ([]booking.Slot, int64, bool) {
	v, err := c.version(ctx, q.ProviderID)
	if err != nil {
		c.logger.Warn("availability cache version read failed", "provider_id", q.ProviderID, "err", err)
		return nil, NoVersion, false
	}
	raw, err := c.rdb.Get(ctx, SlotsKey(c.prefix, v, q)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("availability cache read failed", "provider_id", q.ProviderID, "err", err)
		}
		return nil, v, false
	}
	var slots []booking.Slot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, v, false
	}
	return slots, v, true
}

func (c *AvailabilityCache) Set(ctx context.Context, q booking.AvailabilityQuery, version int64, slots []booking.Slot) {
	if version < 0 {
		return
	}
	body, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, SlotsKey(c.prefix, version, q), body, c.ttl).Err(); err != nil {
		c.logger.Warn("availability cache write failed", "provider_id", q.ProviderID, "err", err)
	}
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, providerID string) error {
	return c.rdb.Incr(ctx, VersionKey(c.prefix, providerID)).Err()
}

// Watch invalidates a provider's cached availability whenever its schedule
// changes. It blocks until ctx is done.
func (c *AvailabilityCache) Watch(ctx context.Context, bc *events.Broadcaster) {
	sub := bc.Schedules.Subscribe(nil)
	defer sub.Close()
	_ = sub.Run(ctx, func(evt events.ProviderScheduleEvent) {
		if err := c.Invalidate(ctx, evt.ProviderID); err != nil {
			c.logger.Warn("availability cache invalidation failed", "provider_id", evt.ProviderID, "err", err)
		}
	})
	if n := sub.Dropped(); n > 0 {
		c.logger.Warn("availability cache missed schedule events", "dropped", n)
	}
}
