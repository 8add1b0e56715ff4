package uniqueness

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-fortune-backend/internal/domain"
)

// DefaultTimeout bounds a single store call when none is configured.
const DefaultTimeout = 2 * time.Second

// Operation labels for logs and metrics.
const (
	OpExists = "exists"
	OpCount  = "count"
	OpInsert = "insert"
)

// Client combines a Store with a LocalCache and turns store failures into
// safe defaults: a failed lookup is "not seen", a failed count is zero and a
// failed insert is logged and dropped. Only maintenance calls report errors.
type Client struct {
	store   Store
	cache   *LocalCache
	timeout time.Duration
}

// NewClient wraps store. A nil cache gets a default-capacity cache and a
// non-positive timeout uses DefaultTimeout.
func NewClient(store Store, cache *LocalCache, timeout time.Duration) *Client {
	if cache == nil {
		cache = NewLocalCache(DefaultCacheCapacity)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{store: store, cache: cache, timeout: timeout}
}

// Store returns the wrapped store.
func (c *Client) Store() Store { return c.store }

// Cache returns the local cache.
func (c *Client) Cache() *LocalCache { return c.cache }

// Seen reports whether hash was issued before. local is true when the answer
// came from the cache. Store errors count as "not seen".
func (c *Client) Seen(ctx context.Context, hash string) (seen, local bool) {
	if c.cache.Contains(hash) {
		cacheHits.Inc()
		return true, true
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ok, err := c.store.Exists(ctx, hash)
	if err != nil {
		c.degraded(OpExists, "", err)
		return false, false
	}
	if ok {
		c.cache.Add(hash)
	}
	return ok, false
}

// Claim is Seen for a caller about to issue hash. The cache entry is taken
// atomically before the store is asked, so concurrent callers in this
// process cannot both be told that the same hash is fresh. A caller that
// claims a fresh hash and then does not issue it must Release it.
func (c *Client) Claim(ctx context.Context, hash string) (seen, local bool) {
	if !c.cache.TryAdd(hash) {
		cacheHits.Inc()
		return true, true
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ok, err := c.store.Exists(ctx, hash)
	if err != nil {
		c.degraded(OpExists, "", err)
		return false, false
	}
	return ok, false
}

// Release undoes a Claim whose hash was not issued.
func (c *Client) Release(hash string) { c.cache.Remove(hash) }

// Count returns the stored record count for subjectID, or 0 when the store
// is unavailable.
func (c *Client) Count(ctx context.Context, subjectID string) int64 {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	n, err := c.store.CountForSubject(ctx, subjectID)
	if err != nil {
		c.degraded(OpCount, subjectID, err)
		return 0
	}
	return n
}

// Record caches rec's hash and persists rec. The write is detached from the
// caller's cancellation and bounded by the client timeout, so an accepted
// message is recorded even when the caller has given up. It reports whether
// the record is durably stored; a duplicate counts as stored.
func (c *Client) Record(ctx context.Context, rec domain.MessageRecord) bool {
	c.cache.Add(rec.MessageHash)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	err := c.store.Insert(ctx, rec)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrDuplicate):
		log.Debug().Str("subject_id", rec.SubjectID).Msg("message hash already recorded")
		return true
	default:
		c.degraded(OpInsert, rec.SubjectID, err)
		return false
	}
}

// Purge removes records created before cutoff. Errors are returned.
func (c *Client) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	return c.store.PurgeOlderThan(ctx, cutoff)
}

// Statistics returns store aggregates. Errors are returned.
func (c *Client) Statistics(ctx context.Context, now time.Time) (domain.StoreStatistics, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.store.Statistics(ctx, now)
}

func (c *Client) degraded(op, subjectID string, err error) {
	storeErrors.WithLabelValues(op).Inc()
	ev := log.Warn().Err(err).Str("op", op)
	if subjectID != "" {
		ev = ev.Str("subject_id", subjectID)
	}
	ev.Msg("uniqueness store unavailable; using safe default")
}
