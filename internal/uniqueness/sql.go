package uniqueness

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-fortune-backend/internal/domain"
	"github.com/tbourn/go-fortune-backend/internal/repo"
)

// SQLStore is a Store over a GORM handle (SQLite or Postgres). The primary
// key on message_hash is the concurrency safety net.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps db. The schema must already be migrated (repo.AutoMigrate).
func NewSQLStore(db *gorm.DB) *SQLStore { return &SQLStore{db: db} }

// DB exposes the underlying handle.
func (s *SQLStore) DB() *gorm.DB { return s.db }

func (s *SQLStore) Exists(ctx context.Context, hash string) (bool, error) {
	return repo.RecordExists(ctx, s.db, hash)
}

func (s *SQLStore) Insert(ctx context.Context, rec domain.MessageRecord) error {
	err := repo.CreateRecord(ctx, s.db, &rec)
	if errors.Is(err, repo.ErrDuplicate) {
		return ErrDuplicate
	}
	return err
}

func (s *SQLStore) CountForSubject(ctx context.Context, subjectID string) (int64, error) {
	return repo.CountRecordsForSubject(ctx, s.db, subjectID)
}

func (s *SQLStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return repo.PurgeRecordsBefore(ctx, s.db, cutoff)
}

func (s *SQLStore) Statistics(ctx context.Context, now time.Time) (domain.StoreStatistics, error) {
	return repo.RecordStats(ctx, s.db, now)
}

// Close releases the pooled connections.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
