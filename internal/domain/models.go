// Package domain defines the core types of the fortune engine: the subject
// identity and request shapes consumed by the generation service, and the
// persistence model for accepted messages. MessageRecord is mapped with GORM
// and shared across the repository, uniqueness and service layers.
package domain

import "time"

// MessageRecord is the durable, content-addressed trace of one accepted
// message. The primary key is the digest of the final message text, so the
// table itself enforces that no text is ever recorded twice.
//
// Fields:
//   - MessageHash: hex digest of the accepted text (primary key).
//   - SubjectID: derived subject identifier; indexed for per-subject counts.
//   - Source: divination source tag that produced the base message.
//   - CreatedAt: acceptance time; indexed for retention purges and windows.
//
// Records are created exactly once and never updated. They are deleted only
// by the retention purge.
type MessageRecord struct {
	MessageHash string    `json:"message_hash" gorm:"type:varchar(128);primaryKey"`
	SubjectID   string    `json:"subject_id"   gorm:"type:varchar(64);not null;index:idx_records_subject"`
	Source      string    `json:"source"       gorm:"type:varchar(64);not null;default:'general'"`
	CreatedAt   time.Time `json:"created_at"   gorm:"not null;index:idx_records_created"`
}

// TableName returns the database table name for MessageRecord.
func (MessageRecord) TableName() string { return "message_records" }
