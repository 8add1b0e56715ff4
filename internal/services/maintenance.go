package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-fortune-backend/internal/domain"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CleanupResult reports one retention purge.
type CleanupResult struct {
	Purged int64     `json:"purged"`
	Cutoff time.Time `json:"cutoff"`
}

// Statistics returns the session counters and the store aggregate. When the
// store cannot be read the session half is still returned with
// StoreAvailable set to false.
func (s *FortuneService) Statistics(ctx context.Context) domain.Statistics {
	tr := otel.Tracer("services/FortuneService")
	ctx, span := tr.Start(ctx, "Statistics")
	defer span.End()

	s.mu.Lock()
	out := domain.Statistics{SessionSubjects: len(s.sessions)}
	s.mu.Unlock()
	out.SessionMessages = s.total.Load()

	st, err := s.client.Statistics(ctx, s.opts.Now())
	if err != nil {
		log.Warn().Err(err).Msg("store statistics unavailable")
		return out
	}
	out.Store = st
	out.StoreAvailable = true
	return out
}

// PerformCleanup purges records older than the retention window and returns
// how many were removed.
func (s *FortuneService) PerformCleanup(ctx context.Context) (int64, error) {
	res, err := s.Cleanup(ctx)
	return res.Purged, err
}

// Cleanup is PerformCleanup that also reports the cutoff used.
func (s *FortuneService) Cleanup(ctx context.Context) (CleanupResult, error) {
	cutoff := s.opts.Now().Add(-s.opts.Retention)
	tr := otel.Tracer("services/FortuneService")
	ctx, span := tr.Start(ctx, "Cleanup",
		trace.WithAttributes(attribute.String("cleanup.cutoff", cutoff.UTC().Format(time.RFC3339))),
	)
	defer span.End()

	n, err := s.client.Purge(ctx, cutoff)
	if err != nil {
		return CleanupResult{Cutoff: cutoff}, fmt.Errorf("%w: %w", ErrCleanupUnavailable, err)
	}
	purgedTotal.Add(float64(n))
	span.SetAttributes(attribute.Int64("cleanup.purged", n))
	log.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("retention cleanup finished")
	return CleanupResult{Purged: n, Cutoff: cutoff}, nil
}

// Retention returns the configured retention window.
func (s *FortuneService) Retention() time.Duration { return s.opts.Retention }

// Cleaner is the maintenance surface a Janitor drives.
type Cleaner interface {
	PerformCleanup(ctx context.Context) (int64, error)
}

// Janitor runs retention cleanup on a fixed interval until its context ends.
type Janitor struct {
	Cleaner  Cleaner
	Interval time.Duration
}

// Run blocks, calling PerformCleanup every Interval. Failures are logged and
// retried on the next tick. It returns ctx.Err() when ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	if j.Interval <= 0 {
		return fmt.Errorf("janitor: interval must be positive, got %s", j.Interval)
	}
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := j.Cleaner.PerformCleanup(ctx); err != nil {
				log.Warn().Err(err).Msg("scheduled cleanup failed")
			}
		}
	}
}
