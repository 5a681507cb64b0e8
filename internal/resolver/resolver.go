package resolver

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LookupFunc fetches a display name from the voice platform. It is supplied
// by the platform glue; the resolver itself never talks to the network.
type LookupFunc func(ctx context.Context, participantID string) (string, error)

// FallbackPrefix is prepended to the participant ID when no display name
// can be resolved.
const FallbackPrefix = "User_"

type entry struct {
	name     string
	cachedAt time.Time
}

// CacheStats represents resolver cache statistics.
type CacheStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Fallbacks uint64 `json:"fallbacks"`
	Size      int    `json:"size"`
}

// Cache is a caching participant-name resolver.
type Cache struct {
	lookup LookupFunc
	ttl    time.Duration
	logger *slog.Logger

	entries map[string]entry

	hits      uint64
	misses    uint64
	fallbacks uint64

	nowFunc func() time.Time

	mu sync.Mutex
}

// New creates a caching resolver. A nil lookup always yields fallback
// names; a zero ttl caches entries forever.
func New(lookup LookupFunc, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		lookup:  lookup,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]entry),
		nowFunc: time.Now,
	}
}

// Resolve returns the display name for a participant. It never fails: on
// lookup error the fallback name is returned and the error is logged.
// Only successful lookups are cached, so a transient failure does not pin
// the fallback name.
func (c *Cache) Resolve(ctx context.Context, participantID string) string {
	c.mu.Lock()
	if e, ok := c.entries[participantID]; ok {
		if c.ttl == 0 || c.nowFunc().Sub(e.cachedAt) < c.ttl {
			c.hits++
			c.mu.Unlock()
			return e.name
		}
		delete(c.entries, participantID)
	}
	c.misses++
	c.mu.Unlock()

	name, err := c.doLookup(ctx, participantID)
	if err != nil {
		c.mu.Lock()
		c.fallbacks++
		c.mu.Unlock()

		c.logger.Warn("participant name lookup failed, using fallback",
			slog.String("participant_id", participantID),
			slog.String("error", err.Error()),
		)

		return FallbackPrefix + participantID
	}

	c.mu.Lock()
	c.entries[participantID] = entry{name: name, cachedAt: c.nowFunc()}
	c.mu.Unlock()

	return name
}

func (c *Cache) doLookup(ctx context.Context, participantID string) (string, error) {
	if c.lookup == nil {
		return "", errNoLookup
	}
	return c.lookup(ctx, participantID)
}

// Stats returns current cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Fallbacks: c.fallbacks,
		Size:      len(c.entries),
	}
}

var errNoLookup = lookupError("no participant lookup configured")

type lookupError string

func (e lookupError) Error() string { return string(e) }
