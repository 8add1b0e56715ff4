// Package repo implements the data persistence layer for message records,
// backed by GORM. This file provides the aggregate queries used for
// operator-facing statistics.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-fortune-backend/internal/domain"
)

// RecordStats returns aggregate counts over the record table relative to now:
// total rows, distinct subjects, and rows created in the last 24 hours and
// the last 7 days.
//
// It executes four lightweight COUNT queries. An empty table yields all zeros.
func RecordStats(ctx context.Context, db *gorm.DB, now time.Time) (domain.StoreStatistics, error) {
	var st domain.StoreStatistics
	q := func() *gorm.DB { return db.WithContext(ctx).Model(&domain.MessageRecord{}) }

	if err := q().Count(&st.TotalMessages).Error; err != nil {
		return domain.StoreStatistics{}, err
	}
	if st.TotalMessages == 0 {
		return st, nil
	}
	if err := q().Distinct("subject_id").Count(&st.UniqueSubjects).Error; err != nil {
		return domain.StoreStatistics{}, err
	}
	dayAgo := NormalizeTime(now.Add(-24 * time.Hour))
	if err := q().Where("created_at >= ?", dayAgo).Count(&st.MessagesLast24h).Error; err != nil {
		return domain.StoreStatistics{}, err
	}
	weekAgo := NormalizeTime(now.Add(-7 * 24 * time.Hour))
	if err := q().Where("created_at >= ?", weekAgo).Count(&st.MessagesLast7d).Error; err != nil {
		return domain.StoreStatistics{}, err
	}
	return st, nil
}
