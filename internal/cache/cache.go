// Package cache stores externally fetched values with a per-source expiry.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/towerguard/site-health/internal/observability"
)

// Store persists raw cache entries. Implementations must be safe for
// concurrent use with distinct keys; the last write to a key wins.
type Store interface {
	Load(key string) ([]byte, bool, error)
	Save(key string, data []byte) error
}

type entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Cache is a TTL view over a Store for one source. A nil *Cache is a
// disabled cache: every Get misses and every Set is dropped.
type Cache struct {
	name    string
	store   Store
	ttl     time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the time source used to age entries.
func WithClock(c clockwork.Clock) Option { return func(cc *Cache) { cc.clock = c } }

// WithLogger sets the logger for unreadable entries and write failures.
func WithLogger(l *slog.Logger) Option { return func(cc *Cache) { cc.logger = l } }

// WithMetrics records hit, miss, stale and corrupt lookups.
func WithMetrics(m *observability.Metrics) Option { return func(cc *Cache) { cc.metrics = m } }

// New creates a cache named after its source with the given time-to-live.
func New(name string, store Store, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		name:   name,
		store:  store,
		ttl:    ttl,
		clock:  clockwork.NewRealClock(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get decodes the value stored under key into v. It reports false when the
// entry is absent, older than the TTL, or unreadable; it never fails.
func (c *Cache) Get(key string, v any) bool {
	if c == nil {
		return false
	}
	raw, ok, err := c.store.Load(key)
	if err != nil {
		c.logger.Debug("cache entry unreadable", "cache", c.name, "key", key, "error", err)
		c.observe("corrupt")
		return false
	}
	if !ok {
		c.observe("miss")
		return false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Timestamp.IsZero() {
		c.logger.Debug("cache entry corrupt", "cache", c.name, "key", key, "error", err)
		c.observe("corrupt")
		return false
	}
	if c.clock.Since(e.Timestamp) > c.ttl {
		c.observe("stale")
		return false
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		c.logger.Debug("cache payload corrupt", "cache", c.name, "key", key, "error", err)
		c.observe("corrupt")
		return false
	}
	c.observe("hit")
	return true
}

// Set stores v under key, stamped with the current time.
func (c *Cache) Set(key string, v any) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s cache value: %w", c.name, err)
	}
	raw, err := json.Marshal(entry{Timestamp: c.clock.Now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("encode %s cache entry: %w", c.name, err)
	}
	if err := c.store.Save(key, raw); err != nil {
		return fmt.Errorf("save %s cache entry %q: %w", c.name, key, err)
	}
	return nil
}

// Name returns the source name the cache was created for.
func (c *Cache) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

func (c *Cache) observe(result string) {
	if c.metrics != nil {
		c.metrics.CacheLookups.WithLabelValues(c.name, result).Inc()
	}
}

// Key builds a deterministic key from a source name, coordinates rounded
// to four decimal places (about 11m), and optional qualifiers such as a
// year or window.
func Key(source string, lat, lon float64, extra ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s_%.4f_%.4f", source, lat, lon)
	for _, e := range extra {
		b.WriteByte('_')
		b.WriteString(e)
	}
	return b.String()
}
