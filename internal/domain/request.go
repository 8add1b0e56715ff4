package domain

import (
	"strings"
	"time"
)

// DefaultSource is the source tag applied when a request does not name the
// calculator that produced its base message.
const DefaultSource = "general"

// Identity describes the subject a fortune is generated for. Only FullName
// and BirthDate take part in the derived subject id; BirthTime and BirthPlace
// are carried for callers that want them but never persisted.
type Identity struct {
	FullName   string    `json:"name"`
	BirthDate  time.Time `json:"birth_date"`
	BirthTime  string    `json:"birth_time,omitempty"` // "HH:MM", optional
	BirthPlace string    `json:"birth_place,omitempty"`
}

// Environment is an optional snapshot of external conditions at request time.
type Environment struct {
	LunarPhase float64 `json:"lunar_phase"` // fraction of the synodic month in [0,1)
	Weather    string  `json:"weather,omitempty"`
}

// Request is one generation call. It is transient and lives only for the
// duration of FortuneService.Generate.
type Request struct {
	BaseMessage string
	Category    string
	Identity    Identity
	Environment *Environment
	Source      string
}

// SourceOrDefault returns the trimmed source tag, or DefaultSource when blank.
func (r Request) SourceOrDefault() string {
	if s := strings.TrimSpace(r.Source); s != "" {
		return s
	}
	return DefaultSource
}

// CategoryKey returns the normalized category label used for hashing and
// style lookup.
func (r Request) CategoryKey() string {
	return strings.ToLower(strings.TrimSpace(r.Category))
}
