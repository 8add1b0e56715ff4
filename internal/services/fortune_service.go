// Package services – FortuneService
//
// This file implements FortuneService, the generation orchestrator. For each
// request it derives the subject id and a per-call hash, asks the synthesizer
// for a candidate, and checks the candidate against the local cache and the
// uniqueness store. A fresh candidate is recorded and returned; a repeat is
// resynthesized with the next attempt number until the attempt budget is
// spent, after which the base message is returned with a clock-derived
// suffix that cannot have been issued before.
//
// Generate never fails. Store outages degrade quality (fewer real checks,
// possible repeats), never availability.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// carry the subject id and attempt counts, never identity fields.
package services

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/go-fortune-backend/internal/digest"
	"github.com/tbourn/go-fortune-backend/internal/domain"
	"github.com/tbourn/go-fortune-backend/internal/hashing"
	"github.com/tbourn/go-fortune-backend/internal/synth"
	"github.com/tbourn/go-fortune-backend/internal/uniqueness"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Defaults applied by NewFortuneService for zero-valued options.
const (
	DefaultMaxAttempts = 10
	DefaultRetention   = 730 * 24 * time.Hour

	// FallbackTimestamp suffixes the base message with the clock in
	// nanoseconds, the instance tag and a process-wide sequence number.
	FallbackTimestamp = "timestamp"
	// FallbackDigest suffixes the base message with a 16-hex-digit digest of
	// the timestamp material, so the suffix reveals neither time nor host.
	FallbackDigest = "digest"

	digestSuffixLen = 16
)

// Options configures a FortuneService.
type Options struct {
	// MaxAttempts is the number of candidates synthesized before falling back.
	MaxAttempts int
	// FallbackStrategy is FallbackTimestamp (default) or FallbackDigest.
	FallbackStrategy string
	// Retention is the age past which PerformCleanup purges records.
	Retention time.Duration
	// InstanceID distinguishes fallback suffixes across processes.
	InstanceID string
	// Now overrides the clock. Tests use it to simulate long horizons.
	Now func() time.Time
}

// Result is a generated message plus how it was produced.
type Result struct {
	Text      string `json:"message"`
	Hash      string `json:"-"`
	SubjectID string `json:"subject_id"`
	Style     string `json:"style"`
	Attempts  int    `json:"attempts"`
	Fallback  bool   `json:"fallback"`
	Recorded  bool   `json:"-"`
}

// FortuneService generates personalized messages that do not repeat for a
// subject within the retention window. It is safe for concurrent use.
type FortuneService struct {
	digest digest.Digester
	synth  *synth.Synthesizer
	client *uniqueness.Client
	opts   Options

	seq    atomic.Uint64
	counts singleflight.Group

	mu       sync.Mutex
	sessions map[string]int64 // in-process messages per subject
	total    atomic.Int64
}

// NewFortuneService wires the orchestrator. A nil digester uses SHA-256 and a
// nil synthesizer uses the embedded vocabulary.
func NewFortuneService(d digest.Digester, s *synth.Synthesizer, client *uniqueness.Client, opts Options) *FortuneService {
	if d == nil {
		d = digest.Default()
	}
	if s == nil {
		s = synth.New(nil)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	switch opts.FallbackStrategy {
	case FallbackTimestamp, FallbackDigest:
	case "":
		opts.FallbackStrategy = FallbackTimestamp
	default:
		log.Warn().Str("strategy", opts.FallbackStrategy).Msg("unknown fallback strategy, using timestamp")
		opts.FallbackStrategy = FallbackTimestamp
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.InstanceID == "" {
		opts.InstanceID = "local"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &FortuneService{
		digest:   d,
		synth:    s,
		client:   client,
		opts:     opts,
		sessions: make(map[string]int64),
	}
}

// Generate returns a message for req. It always returns non-empty text.
func (s *FortuneService) Generate(ctx context.Context, req domain.Request) string {
	return s.GenerateDetailed(ctx, req).Text
}

// GenerateDetailed runs the retry loop and reports how the text was produced.
// A caller deadline that expires mid-loop ends in the fallback path.
func (s *FortuneService) GenerateDetailed(ctx context.Context, req domain.Request) Result {
	tr := otel.Tracer("services/FortuneService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("fortune.category", req.CategoryKey()),
			attribute.String("fortune.source", req.SourceOrDefault()),
		),
	)
	defer span.End()

	now := s.opts.Now()
	subjectID := hashing.SubjectID(s.digest, req.Identity)
	span.SetAttributes(attribute.String("subject.id", subjectID))

	style := s.synth.ResolveStyle(req.Category, req.BaseMessage)
	res := Result{SubjectID: subjectID, Style: style}

	if ctx.Err() != nil {
		return s.fallback(ctx, span, req, res, now)
	}

	p := s.newPlan(req, subjectID, style, s.counter(ctx, subjectID), now)
	for attempt := 0; attempt < s.opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		res.Attempts = attempt + 1
		cand, hash := s.candidate(p, attempt)

		seen, local := s.client.Claim(ctx, hash)
		if ctx.Err() != nil {
			// the store answer is unreliable once the caller is gone
			if !seen {
				s.client.Release(hash)
			}
			break
		}
		if seen {
			log.Debug().Str("subject_id", subjectID).Int("attempt", attempt).Bool("local", local).Msg("candidate collision; retrying")
			continue
		}

		res.Text, res.Hash, res.Style = cand.Text, hash, cand.Style
		res.Recorded = s.accept(ctx, req, subjectID, hash, now)
		generationsTotal.WithLabelValues(outcomeAccepted).Inc()
		attemptsHist.Observe(float64(res.Attempts))
		span.SetAttributes(attribute.Int("fortune.attempts", res.Attempts))
		return res
	}
	return s.fallback(ctx, span, req, res, now)
}

// fallback appends a unique suffix to the original base message and records it.
func (s *FortuneService) fallback(ctx context.Context, span trace.Span, req domain.Request, res Result, now time.Time) Result {
	text := strings.TrimSpace(req.BaseMessage)
	suffix := s.fallbackSuffix()
	if text == "" {
		text = suffix
	} else {
		text += " #" + suffix
	}

	res.Text = text
	res.Hash = s.digest.HexString(text)
	res.Fallback = true
	res.Recorded = s.accept(ctx, req, res.SubjectID, res.Hash, now)

	generationsTotal.WithLabelValues(outcomeFallback).Inc()
	attemptsHist.Observe(float64(res.Attempts))
	span.SetAttributes(
		attribute.Int("fortune.attempts", res.Attempts),
		attribute.Bool("fortune.fallback", true),
	)
	log.Info().Str("subject_id", res.SubjectID).Int("attempts", res.Attempts).Msg("generation fell back to suffixed base message")
	return res
}

// fallbackSuffix is base36 nanoseconds, the instance tag and a sequence
// number. The sequence alone keeps suffixes distinct within one process.
// FallbackDigest hashes that material instead of printing it.
func (s *FortuneService) fallbackSuffix() string {
	n := s.seq.Add(1)
	ts := s.opts.Now().UnixNano()
	if ts < 0 {
		ts = -ts
	}
	raw := strconv.FormatInt(ts, 36) + "-" + s.opts.InstanceID + "-" + strconv.FormatUint(n, 36)
	if s.opts.FallbackStrategy == FallbackDigest {
		sum := s.digest.HexString(raw)
		if len(sum) > digestSuffixLen {
			sum = sum[:digestSuffixLen]
		}
		return sum
	}
	return raw
}

func (s *FortuneService) accept(ctx context.Context, req domain.Request, subjectID, hash string, now time.Time) bool {
	ok := s.client.Record(ctx, domain.MessageRecord{
		MessageHash: hash,
		SubjectID:   subjectID,
		Source:      req.SourceOrDefault(),
		CreatedAt:   now,
	})
	s.mu.Lock()
	s.sessions[subjectID]++
	s.mu.Unlock()
	s.total.Add(1)
	return ok
}

// counter is the advisory per-subject counter: the stored count plus this
// process's count. Concurrent lookups for one subject share a store call.
func (s *FortuneService) counter(ctx context.Context, subjectID string) int64 {
	// Shared by every waiter, so one caller's cancellation must not zero it.
	shared := context.WithoutCancel(ctx)
	v, _, _ := s.counts.Do(subjectID, func() (any, error) {
		return s.client.Count(shared, subjectID), nil
	})
	stored, _ := v.(int64)

	s.mu.Lock()
	local := s.sessions[subjectID]
	s.mu.Unlock()
	return stored + local
}

// plan is the per-call state shared by every attempt.
type plan struct {
	in     hashing.CallInput
	style  string
	base   string
	season string
	lunar  string
}

func (s *FortuneService) newPlan(req domain.Request, subjectID, style string, counter int64, now time.Time) *plan {
	return &plan{
		in: hashing.CallInput{
			SubjectID: subjectID,
			DateSeed:  hashing.DateSeed(now),
			Counter:   counter,
			Category:  req.CategoryKey(),
			Env:       req.Environment,
			Minute:    hashing.MinuteStamp(now),
		},
		style:  style,
		base:   req.BaseMessage,
		season: hashing.Season(now),
		lunar:  lunarKey(req.Environment, now),
	}
}

// candidate synthesizes attempt and returns it with the digest of its text.
func (s *FortuneService) candidate(p *plan, attempt int) (synth.Candidate, string) {
	in := p.in
	in.Attempt = attempt
	cand := s.synth.Compose(synth.Input{
		Digest:      hashing.CallHash(s.digest, in),
		Attempt:     attempt,
		Style:       p.style,
		BaseMessage: p.base,
		Season:      p.season,
		Lunar:       p.lunar,
	})
	return cand, s.digest.HexString(cand.Text)
}

func lunarKey(env *domain.Environment, now time.Time) string {
	if env != nil {
		return hashing.LunarPhaseBucket(env.LunarPhase)
	}
	return hashing.LunarPhaseBucket(hashing.ApproxLunarPhase(now))
}
