package uniqueness

import (
	"context"
	"sync"
	"time"

	"github.com/tbourn/go-fortune-backend/internal/domain"
	"github.com/tbourn/go-fortune-backend/internal/repo"
)

// MemoryStore is a process-local Store. It backs tests and offline runs and
// loses everything on exit.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]domain.MessageRecord
	subjects map[string]int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]domain.MessageRecord),
		subjects: make(map[string]int64),
	}
}

func (m *MemoryStore) Exists(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	_, ok := m.records[hash]
	m.mu.RUnlock()
	return ok, nil
}

func (m *MemoryStore) Insert(ctx context.Context, rec domain.MessageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Source == "" {
		rec.Source = domain.DefaultSource
	}
	rec.CreatedAt = repo.NormalizeTime(rec.CreatedAt)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.MessageHash]; ok {
		return ErrDuplicate
	}
	m.records[rec.MessageHash] = rec
	m.subjects[rec.SubjectID]++
	return nil
}

func (m *MemoryStore) CountForSubject(ctx context.Context, subjectID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subjects[subjectID], nil
}

func (m *MemoryStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, rec := range m.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(m.records, hash)
			if m.subjects[rec.SubjectID]--; m.subjects[rec.SubjectID] <= 0 {
				delete(m.subjects, rec.SubjectID)
			}
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Statistics(ctx context.Context, now time.Time) (domain.StoreStatistics, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoreStatistics{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t := newTally(now)
	for _, rec := range m.records {
		t.add(rec)
	}
	return t.result(), nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
