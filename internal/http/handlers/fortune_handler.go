// Fortune HTTP handlers.
//
// This file exposes the REST endpoints of the fortune engine:
//   - POST /fortunes               (generate one personalized message)
//   - GET  /stats                  (session and store statistics)
//   - POST /maintenance/cleanup    (purge records past the retention window)
//
// Handlers are transport-thin: they validate and normalize input, call the
// FortuneService, and translate results into HTTP responses. Identity fields
// never leave the handler except inside the domain.Request; the access log
// only ever sees the hashed subject id.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-fortune-backend/internal/domain"
	"github.com/tbourn/go-fortune-backend/internal/http/middleware"
	"github.com/tbourn/go-fortune-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// FortuneService generates messages. It never fails; degraded runs are
// reported through Result.Fallback.
type FortuneService interface {
	GenerateDetailed(ctx context.Context, req domain.Request) services.Result
}

// StatsService reports session and store statistics.
type StatsService interface {
	Statistics(ctx context.Context) domain.Statistics
}

// MaintenanceService purges expired uniqueness records.
type MaintenanceService interface {
	Cleanup(ctx context.Context) (services.CleanupResult, error)
}

//
// Handler wiring
//

// Handlers groups the fortune endpoints.
type Handlers struct {
	fortunes FortuneService
	stats    StatsService
	maint    MaintenanceService
	timeout  time.Duration
}

// New binds handlers to the given services. generateTimeout bounds each
// generation; zero leaves the request context as is.
func New(fortunes FortuneService, stats StatsService, maint MaintenanceService, generateTimeout time.Duration) *Handlers {
	return &Handlers{fortunes: fortunes, stats: stats, maint: maint, timeout: generateTimeout}
}

//
// DTOs
//

const (
	maxNameRunes = 200
	maxBaseRunes = 2000
	dateLayout   = "2006-01-02"
	timeLayout   = "15:04"
)

// SubjectPayload identifies the person a message is generated for.
type SubjectPayload struct {
	Name       string `json:"name"`
	BirthDate  string `json:"birth_date"`           // YYYY-MM-DD
	BirthTime  string `json:"birth_time,omitempty"` // HH:MM
	BirthPlace string `json:"birth_place,omitempty"`
}

// EnvironmentPayload is the optional snapshot of external conditions.
type EnvironmentPayload struct {
	LunarPhase float64 `json:"lunar_phase"`
	Weather    string  `json:"weather,omitempty"`
}

// GenerateRequest is the JSON payload of POST /fortunes.
type GenerateRequest struct {
	BaseMessage string              `json:"base_message"`
	Category    string              `json:"category"`
	Source      string              `json:"source"`
	Subject     SubjectPayload      `json:"subject"`
	Environment *EnvironmentPayload `json:"environment,omitempty"`
}

// GenerateResponse is the body of a successful generation.
type GenerateResponse struct {
	Message   string `json:"message"`
	SubjectID string `json:"subject_id"`
	Style     string `json:"style"`
	Attempts  int    `json:"attempts"`
	Fallback  bool   `json:"fallback"`
}

// toDomain validates the payload and converts it into a domain.Request.
func (r GenerateRequest) toDomain() (domain.Request, error) {
	name := strings.TrimSpace(r.Subject.Name)
	switch {
	case name == "":
		return domain.Request{}, ErrNameRequired
	case utf8.RuneCountInString(name) > maxNameRunes:
		return domain.Request{}, ErrNameTooLong
	}

	birth, err := time.Parse(dateLayout, strings.TrimSpace(r.Subject.BirthDate))
	if err != nil {
		return domain.Request{}, ErrBirthDateInvalid
	}
	birthTime := strings.TrimSpace(r.Subject.BirthTime)
	if birthTime != "" {
		if _, err := time.Parse(timeLayout, birthTime); err != nil {
			return domain.Request{}, ErrBirthTimeInvalid
		}
	}

	base := sanitizeBase(r.BaseMessage)
	if utf8.RuneCountInString(base) > maxBaseRunes {
		return domain.Request{}, ErrBaseTooLong
	}

	out := domain.Request{
		BaseMessage: base,
		Category:    strings.TrimSpace(r.Category),
		Source:      strings.TrimSpace(r.Source),
		Identity: domain.Identity{
			FullName:   name,
			BirthDate:  birth,
			BirthTime:  birthTime,
			BirthPlace: strings.TrimSpace(r.Subject.BirthPlace),
		},
	}
	if r.Environment != nil {
		if p := r.Environment.LunarPhase; p < 0 || p >= 1 {
			return domain.Request{}, ErrLunarPhaseRange
		}
		out.Environment = &domain.Environment{
			LunarPhase: r.Environment.LunarPhase,
			Weather:    strings.TrimSpace(r.Environment.Weather),
		}
	}
	return out, nil
}

// sanitizeBase normalizes line endings and trims surrounding whitespace.
func sanitizeBase(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

//
// Handlers
//

// GenerateFortune handles POST /fortunes.
//
// Responses: 201 with GenerateResponse, 400 on invalid input. Store outages
// do not fail the request; they show up as fallback messages.
func (h *Handlers) GenerateFortune(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	dreq, err := req.toDomain()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res := h.fortunes.GenerateDetailed(ctx, dreq)
	middleware.SetSubject(c, res.SubjectID)
	if res.Fallback {
		middleware.LoggerFrom(c).Info().Int("attempts", res.Attempts).Msg("served fallback message")
	}
	ok(c, http.StatusCreated, GenerateResponse{
		Message:   res.Text,
		SubjectID: res.SubjectID,
		Style:     res.Style,
		Attempts:  res.Attempts,
		Fallback:  res.Fallback,
	})
}

// GetStats handles GET /stats. It answers 200 even when the store is down;
// store_available tells the two cases apart.
func (h *Handlers) GetStats(c *gin.Context) {
	ok(c, http.StatusOK, h.stats.Statistics(c.Request.Context()))
}

// RunCleanup handles POST /maintenance/cleanup.
//
// Responses: 200 with {purged, cutoff}, 503 when the store cannot be purged.
func (h *Handlers) RunCleanup(c *gin.Context) {
	res, err := h.maint.Cleanup(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrCleanupUnavailable) {
			fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "uniqueness store unavailable")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "cleanup failed")
		return
	}
	ok(c, http.StatusOK, res)
}
