package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tbourn/go-fortune-backend/internal/domain"
	"github.com/tbourn/go-fortune-backend/internal/hashing"
	"github.com/tbourn/go-fortune-backend/internal/uniqueness"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	goleak.VerifyTestMain(m)
}

// ---------- test helpers ----------

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var t0 = time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC)

func newSvc(t *testing.T, store uniqueness.Store, clock *fakeClock, opts Options) (*FortuneService, *uniqueness.Client) {
	t.Helper()
	if clock == nil {
		clock = newClock(t0)
	}
	opts.Now = clock.Now
	cl := uniqueness.NewClient(store, uniqueness.NewLocalCache(1000), 100*time.Millisecond)
	return NewFortuneService(nil, nil, cl, opts), cl
}

func hanako() domain.Request {
	return domain.Request{
		BaseMessage: "あなたの未来は明るい",
		Category:    "love",
		Identity: domain.Identity{
			FullName:  "山田 花子",
			BirthDate: time.Date(1990, 3, 15, 0, 0, 0, 0, time.UTC),
		},
	}
}

func subject(i int) domain.Request {
	r := hanako()
	r.Identity.FullName = fmt.Sprintf("subject-%d", i)
	r.Category = []string{"general", "love", "career", "health", "wealth"}[i%5]
	return r
}

// alwaysHit reports every hash as already issued.
type alwaysHit struct{ *uniqueness.MemoryStore }

func (alwaysHit) Exists(context.Context, string) (bool, error) { return true, nil }

// failing rejects every call.
type failing struct{}

var errStore = errors.New("connection refused")

func (failing) Exists(context.Context, string) (bool, error)           { return false, errStore }
func (failing) Insert(context.Context, domain.MessageRecord) error     { return errStore }
func (failing) CountForSubject(context.Context, string) (int64, error) { return 0, errStore }
func (failing) PurgeOlderThan(context.Context, time.Time) (int64, error) {
	return 0, errStore
}
func (failing) Statistics(context.Context, time.Time) (domain.StoreStatistics, error) {
	return domain.StoreStatistics{}, errStore
}

// staleCount never sees recent inserts when counting.
type staleCount struct{ *uniqueness.MemoryStore }

func (staleCount) CountForSubject(context.Context, string) (int64, error) { return 0, nil }

// blocking holds Exists until the context ends.
type blocking struct{ *uniqueness.MemoryStore }

func (blocking) Exists(ctx context.Context, _ string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

// ---------- tests ----------

func TestGenerate_ReturnsRecordedText(t *testing.T) {
	store := uniqueness.NewMemoryStore()
	svc, _ := newSvc(t, store, nil, Options{})

	res := svc.GenerateDetailed(context.Background(), hanako())
	require.NotEmpty(t, res.Text)
	require.Contains(t, res.Text, "あなたの未来は明るい")
	require.False(t, res.Fallback)
	require.Equal(t, 1, res.Attempts)
	require.Equal(t, "romantic", res.Style)
	require.Len(t, res.SubjectID, hashing.SubjectIDLen)
	require.True(t, res.Recorded)

	ok, err := store.Exists(context.Background(), res.Hash)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGenerate_UniqueOverTwoYears(t *testing.T) {
	const n = 10_000
	store := uniqueness.NewMemoryStore()
	clock := newClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	svc, _ := newSvc(t, store, clock, Options{})
	step := (730 * 24 * time.Hour) / n

	seen := make(map[string]struct{}, n)
	fallbacks := 0
	for i := 0; i < n; i++ {
		res := svc.GenerateDetailed(context.Background(), subject(i%7))
		if _, dup := seen[res.Text]; dup {
			t.Fatalf("duplicate text at call %d: %q", i, res.Text)
		}
		seen[res.Text] = struct{}{}
		if res.Fallback {
			fallbacks++
		}
		clock.Advance(step)
	}
	require.Equal(t, n, store.Len())
	require.Zero(t, fallbacks)
}

func TestGenerate_FallbackGuarantee(t *testing.T) {
	store := alwaysHit{uniqueness.NewMemoryStore()}
	svc, _ := newSvc(t, store, nil, Options{MaxAttempts: 4, InstanceID: "test"})

	before := testutil.ToFloat64(generationsTotal.WithLabelValues(outcomeFallback))
	texts := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		res := svc.GenerateDetailed(context.Background(), hanako())
		require.True(t, res.Fallback)
		require.Equal(t, 4, res.Attempts)
		require.True(t, strings.HasPrefix(res.Text, "あなたの未来は明るい #"), res.Text)
		require.Contains(t, res.Text, "-test-")
		texts[res.Text] = struct{}{}
	}
	require.Len(t, texts, 50)
	require.Equal(t, 50, store.Len())
	require.Equal(t, before+50, testutil.ToFloat64(generationsTotal.WithLabelValues(outcomeFallback)))
}

func TestGenerate_DigestFallback(t *testing.T) {
	store := alwaysHit{uniqueness.NewMemoryStore()}
	svc, _ := newSvc(t, store, nil, Options{MaxAttempts: 2, InstanceID: "host-a", FallbackStrategy: FallbackDigest})

	const prefix = "あなたの未来は明るい #"
	texts := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		res := svc.GenerateDetailed(context.Background(), hanako())
		require.True(t, res.Fallback)
		require.True(t, strings.HasPrefix(res.Text, prefix), res.Text)
		suffix := strings.TrimPrefix(res.Text, prefix)
		require.Len(t, suffix, digestSuffixLen)
		require.NotContains(t, suffix, "host-a")
		for _, r := range suffix {
			require.Contains(t, "0123456789abcdef", string(r))
		}
		texts[res.Text] = struct{}{}
	}
	require.Len(t, texts, 50)
	require.Equal(t, 50, store.Len())
}

func TestNewFortuneService_UnknownFallbackStrategy(t *testing.T) {
	svc, _ := newSvc(t, uniqueness.NewMemoryStore(), nil, Options{FallbackStrategy: "random"})
	require.Equal(t, FallbackTimestamp, svc.opts.FallbackStrategy)
}

// gatedCount blocks CountForSubject until gate closes or ctx ends.
type gatedCount struct {
	*uniqueness.MemoryStore
	entered chan struct{}
	gate    chan struct{}
}

func (g gatedCount) CountForSubject(ctx context.Context, _ string) (int64, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.gate:
		return 5, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestCounter_SharedLookupSurvivesCanceledCaller(t *testing.T) {
	store := gatedCount{MemoryStore: uniqueness.NewMemoryStore(), entered: make(chan struct{}, 1), gate: make(chan struct{})}
	svc, _ := newSvc(t, store, nil, Options{})

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	var gotA, gotB int64
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); gotA = svc.counter(ctxA, "subject") }()
	<-store.entered
	go func() { defer wg.Done(); gotB = svc.counter(context.Background(), "subject") }()

	time.Sleep(5 * time.Millisecond)
	cancelA()
	time.Sleep(10 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	require.EqualValues(t, 5, gotA, "first caller's cancellation must not zero the shared count")
	require.EqualValues(t, 5, gotB)
}

func TestGenerate_DegradesWhenStoreFails(t *testing.T) {
	svc, cl := newSvc(t, failing{}, nil, Options{})

	texts := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		res := svc.GenerateDetailed(context.Background(), subject(i%3))
		require.NotEmpty(t, res.Text)
		require.False(t, res.Recorded)
		texts[res.Text] = struct{}{}
	}
	// the local cache alone still prevents repeats inside its window
	require.Len(t, texts, 1000)
	require.Equal(t, 1000, cl.Cache().Len())

	st := svc.Statistics(context.Background())
	require.False(t, st.StoreAvailable)
	require.EqualValues(t, 1000, st.SessionMessages)
	require.Equal(t, 3, st.SessionSubjects)

	_, err := svc.PerformCleanup(context.Background())
	require.ErrorIs(t, err, ErrCleanupUnavailable)
	require.ErrorIs(t, err, errStore)
}

func TestGenerate_CacheAndStoreAgree(t *testing.T) {
	store := uniqueness.NewMemoryStore()
	clock := newClock(t0)
	svc, cl := newSvc(t, store, clock, Options{})

	var hashes []string
	for i := 0; i < 200; i++ {
		hashes = append(hashes, svc.GenerateDetailed(context.Background(), subject(i)).Hash)
		clock.Advance(time.Second)
	}
	for _, h := range hashes {
		require.True(t, cl.Cache().Contains(h))
		ok, err := store.Exists(context.Background(), h)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestGenerate_HanakoForcedCollision(t *testing.T) {
	store := uniqueness.NewMemoryStore()
	clock := newClock(t0)
	svc, _ := newSvc(t, store, clock, Options{})
	req := hanako()

	// Pre-populate the store with exactly the first candidate of the first call.
	subjectID := hashing.SubjectID(svc.digest, req.Identity)
	style := svc.synth.ResolveStyle(req.Category, req.BaseMessage)
	_, first := svc.candidate(svc.newPlan(req, subjectID, style, 0, clock.Now()), 0)
	require.NoError(t, store.Insert(context.Background(), domain.MessageRecord{
		MessageHash: first, SubjectID: "someone-else", CreatedAt: t0.Add(-time.Hour),
	}))

	a := svc.GenerateDetailed(context.Background(), req)
	b := svc.GenerateDetailed(context.Background(), req)

	require.Equal(t, 2, a.Attempts, "first call must collide once")
	require.NotEqual(t, first, a.Hash)
	require.NotEqual(t, a.Text, b.Text)
	for _, h := range []string{a.Hash, b.Hash} {
		ok, err := store.Exists(context.Background(), h)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

// Two processes share one store whose per-subject count lags behind, so
// both start from the same advisory counter. An identical request in the
// same minute then collides on the first attempt and diverges on retry.
func TestGenerate_SameMinuteFirstAttemptCollision(t *testing.T) {
	shared := staleCount{uniqueness.NewMemoryStore()}
	clock := newClock(t0)
	svcA, _ := newSvc(t, shared, clock, Options{InstanceID: "a"})
	svcB, _ := newSvc(t, shared, clock, Options{InstanceID: "b"})

	a := svcA.GenerateDetailed(context.Background(), hanako())
	b := svcB.GenerateDetailed(context.Background(), hanako())

	require.Equal(t, 1, a.Attempts)
	require.Equal(t, 2, b.Attempts)
	require.NotEqual(t, a.Text, b.Text)
	require.Equal(t, 2, shared.Len())
}

func TestGenerate_DeadlineFallsBack(t *testing.T) {
	t.Run("expired before start", func(t *testing.T) {
		store := uniqueness.NewMemoryStore()
		svc, _ := newSvc(t, store, nil, Options{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res := svc.GenerateDetailed(ctx, hanako())
		require.True(t, res.Fallback)
		require.Zero(t, res.Attempts)
		require.True(t, res.Recorded, "fallback is recorded even after cancellation")
		require.Equal(t, 1, store.Len())
	})

	t.Run("expires during store check", func(t *testing.T) {
		store := blocking{uniqueness.NewMemoryStore()}
		cl := uniqueness.NewClient(store, nil, time.Second)
		svc := NewFortuneService(nil, nil, cl, Options{})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		res := svc.GenerateDetailed(ctx, hanako())
		require.True(t, res.Fallback)
		require.Equal(t, 1, res.Attempts)
		require.Less(t, time.Since(start), time.Second)
		require.NotEmpty(t, svc.Generate(ctx, hanako()))
	})
}

func TestGenerate_ConcurrentCallers(t *testing.T) {
	store := uniqueness.NewMemoryStore()
	svc, _ := newSvc(t, store, nil, Options{})

	const workers, per = 16, 50
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		texts = map[string]struct{}{}
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				txt := svc.Generate(context.Background(), hanako())
				mu.Lock()
				texts[txt] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, texts, workers*per)
	require.Equal(t, workers*per, store.Len())
}

func TestStatisticsAndCleanup(t *testing.T) {
	store := uniqueness.NewMemoryStore()
	clock := newClock(t0)
	svc, _ := newSvc(t, store, clock, Options{Retention: 48 * time.Hour})

	svc.Generate(context.Background(), subject(1))
	svc.Generate(context.Background(), subject(2))
	clock.Advance(72 * time.Hour)
	svc.Generate(context.Background(), subject(1))

	st := svc.Statistics(context.Background())
	require.True(t, st.StoreAvailable)
	require.Equal(t, 2, st.SessionSubjects)
	require.EqualValues(t, 3, st.SessionMessages)
	require.Equal(t, domain.StoreStatistics{
		TotalMessages: 3, UniqueSubjects: 2, MessagesLast24h: 1, MessagesLast7d: 3,
	}, st.Store)

	before := testutil.ToFloat64(purgedTotal)
	res, err := svc.Cleanup(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, res.Purged)
	require.Equal(t, clock.Now().Add(-48*time.Hour), res.Cutoff)
	require.Equal(t, before+2, testutil.ToFloat64(purgedTotal))
	require.Equal(t, 1, store.Len())

	n, err := svc.PerformCleanup(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestNewFortuneService_Defaults(t *testing.T) {
	svc := NewFortuneService(nil, nil, uniqueness.NewClient(uniqueness.NewMemoryStore(), nil, 0), Options{})
	require.Equal(t, DefaultMaxAttempts, svc.opts.MaxAttempts)
	require.Equal(t, DefaultRetention, svc.Retention())
	require.Equal(t, FallbackTimestamp, svc.opts.FallbackStrategy)
	require.NotNil(t, svc.opts.Now)
}
