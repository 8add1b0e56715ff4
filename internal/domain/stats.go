package domain

// StoreStatistics is the read-only aggregate view of the uniqueness store.
type StoreStatistics struct {
	TotalMessages   int64 `json:"total_messages"`
	UniqueSubjects  int64 `json:"unique_subjects"`
	MessagesLast24h int64 `json:"messages_last_24h"`
	MessagesLast7d  int64 `json:"messages_last_7d"`
}

// Statistics combines in-process session counters with the store aggregate.
// StoreAvailable is false when the store query failed and Store holds zeros.
type Statistics struct {
	SessionSubjects int             `json:"session_subjects"`
	SessionMessages int64           `json:"session_messages"`
	Store           StoreStatistics `json:"store"`
	StoreAvailable  bool            `json:"store_available"`
}
