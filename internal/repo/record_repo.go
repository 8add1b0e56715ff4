// Package repo implements the data persistence layer for message records,
// backed by GORM. This file provides the record queries behind the SQL
// uniqueness store.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-fortune-backend/internal/domain"
)

// ErrDuplicate indicates that a record with the same message hash exists.
var ErrDuplicate = errors.New("duplicate")

// RecordExists reports whether a record with the given hash is stored.
func RecordExists(ctx context.Context, db *gorm.DB, hash string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.MessageRecord{}).
		Where("message_hash = ?", hash).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

// CreateRecord inserts rec and returns ErrDuplicate on primary-key violation.
// CreatedAt is normalized to UTC with microsecond precision so that range
// queries behave the same on every driver.
func CreateRecord(ctx context.Context, db *gorm.DB, rec *domain.MessageRecord) error {
	if rec.Source == "" {
		rec.Source = domain.DefaultSource
	}
	rec.CreatedAt = NormalizeTime(rec.CreatedAt)
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// CountRecordsForSubject returns how many records belong to subjectID.
func CountRecordsForSubject(ctx context.Context, db *gorm.DB, subjectID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.MessageRecord{}).
		Where("subject_id = ?", subjectID).
		Count(&n).Error
	return n, err
}

// PurgeRecordsBefore deletes every record created strictly before cutoff and
// returns the number of rows removed.
func PurgeRecordsBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("created_at < ?", CeilTime(cutoff)).
		Delete(&domain.MessageRecord{})
	return res.RowsAffected, res.Error
}

// IsDuplicate recognizes unique violations across drivers. glebarez/sqlite
// often returns plain-text errors that do not map to gorm.ErrDuplicatedKey.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ErrDuplicate) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value violates unique constraint")
}

// NormalizeTime converts t to UTC and truncates it to microseconds.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// CeilTime is NormalizeTime rounded up. Stored times sit on the microsecond
// grid, so "stored < CeilTime(c)" holds exactly when "stored < c".
func CeilTime(t time.Time) time.Time {
	c := NormalizeTime(t)
	if c.Before(t.UTC()) {
		c = c.Add(time.Microsecond)
	}
	return c
}
