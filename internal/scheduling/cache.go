package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/psicare/platform/pkg/logging"
)

// ListCache keeps tenant appointment listings in Redis for a short
// TTL. Every write through the service invalidates the tenant's keys,
// so reads may be stale by at most the write-to-invalidate window.
// A nil cache (Redis not configured) degrades to pass-through.
type ListCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewListCache(client *redis.Client, ttl time.Duration, logger *logging.Logger) *ListCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ListCache{client: client, ttl: ttl, logger: logger}
}

func listKey(tenantID, fingerprint string) string {
	return fmt.Sprintf("appointments:%s:list:%s", tenantID, fingerprint)
}

// Fingerprint renders a stable cache key suffix for a list filter.
func Fingerprint(f ListFilter) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d",
		f.PsychologistID, f.PatientID, f.Status, f.From.Unix(), f.To.Unix())
}

// Get returns a cached listing, or false on miss or any Redis error.
func (c *ListCache) Get(ctx context.Context, tenantID string, f ListFilter) ([]Appointment, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, listKey(tenantID, Fingerprint(f))).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("appointment cache read failed", "error", err)
		}
		return nil, false
	}
	var out []Appointment
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Warn("appointment cache decode failed", "error", err)
		return nil, false
	}
	return out, true
}

// Set stores a listing. Failures are logged, never propagated.
func (c *ListCache) Set(ctx context.Context, tenantID string, f ListFilter, rows []Appointment) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		c.logger.Warn("appointment cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, listKey(tenantID, Fingerprint(f)), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("appointment cache write failed", "error", err)
	}
}

// Invalidate drops every cached listing for the tenant.
func (c *ListCache) Invalidate(ctx context.Context, tenantID string) {
	if c == nil {
		return
	}
	pattern := fmt.Sprintf("appointments:%s:list:*", tenantID)
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.logger.Warn("appointment cache invalidation failed", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.logger.Warn("appointment cache delete failed", "error", err)
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
