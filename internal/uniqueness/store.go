// Package uniqueness records which message hashes have been issued and
// answers whether a candidate was issued before. A Store is the durable
// capability; Client layers a bounded in-process cache and the degradation
// rules on top so callers never see a store failure on the request path.
package uniqueness

import (
	"context"
	"errors"
	"time"

	"github.com/tbourn/go-fortune-backend/internal/domain"
)

// ErrDuplicate is returned by Store.Insert when the message hash is already
// recorded.
var ErrDuplicate = errors.New("uniqueness: duplicate message hash")

// Store is the durable record of issued messages, keyed by message hash.
// Implementations must be safe for concurrent use.
type Store interface {
	// Exists reports whether a record with hash is stored.
	Exists(ctx context.Context, hash string) (bool, error)
	// Insert stores rec, returning ErrDuplicate when the hash is taken.
	Insert(ctx context.Context, rec domain.MessageRecord) error
	// CountForSubject returns how many records belong to subjectID.
	CountForSubject(ctx context.Context, subjectID string) (int64, error)
	// PurgeOlderThan removes exactly the records with CreatedAt < cutoff.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// Statistics aggregates the stored records relative to now.
	Statistics(ctx context.Context, now time.Time) (domain.StoreStatistics, error)
}

// windows shared by every Store's Statistics.
const (
	day  = 24 * time.Hour
	week = 7 * day
)

// tally accumulates StoreStatistics for stores that scan their records.
type tally struct {
	st       domain.StoreStatistics
	subjects map[string]struct{}
	dayAgo   time.Time
	weekAgo  time.Time
}

func newTally(now time.Time) *tally {
	return &tally{
		subjects: make(map[string]struct{}),
		dayAgo:   now.Add(-day),
		weekAgo:  now.Add(-week),
	}
}

func (t *tally) add(rec domain.MessageRecord) {
	t.st.TotalMessages++
	t.subjects[rec.SubjectID] = struct{}{}
	if !rec.CreatedAt.Before(t.dayAgo) {
		t.st.MessagesLast24h++
	}
	if !rec.CreatedAt.Before(t.weekAgo) {
		t.st.MessagesLast7d++
	}
}

func (t *tally) result() domain.StoreStatistics {
	t.st.UniqueSubjects = int64(len(t.subjects))
	return t.st
}
