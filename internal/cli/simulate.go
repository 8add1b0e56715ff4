package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-fortune-backend/internal/domain"
	"github.com/tbourn/go-fortune-backend/internal/uniqueness"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	Generations int
	Subjects    int
	Span        time.Duration
	Workers     int
	UseStore    bool
	Start       string
}

// SimulationReport summarizes a simulate run.
type SimulationReport struct {
	Generations int           `json:"generations"`
	Subjects    int           `json:"subjects"`
	Span        string        `json:"span"`
	Distinct    int           `json:"distinct"`
	Duplicates  int           `json:"duplicates"`
	Fallbacks   int64         `json:"fallbacks"`
	MeanAttempt float64       `json:"mean_attempts"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run many generations over a simulated clock and report repeats",
		Long: `Run N generations spread across S subjects while a simulated clock
advances evenly over the given span. Every issued text is compared against
all others; the command fails when any text repeats.

By default the run uses a private in-memory store so it never writes
simulated timestamps into the configured one.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := runSimulate(cmd.Context(), rootOpts, opts)
			if err != nil {
				return err
			}
			if err := emit(rootOpts, cmd.OutOrStdout(), rep, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%d generations, %d subjects over %s: %d distinct, %d duplicates, %d fallbacks, %.2f mean attempts (%s)\n",
					rep.Generations, rep.Subjects, rep.Span, rep.Distinct, rep.Duplicates, rep.Fallbacks, rep.MeanAttempt, rep.Elapsed.Round(time.Millisecond))
				return err
			}); err != nil {
				return err
			}
			if rep.Duplicates > 0 {
				return fmt.Errorf("simulation produced %d duplicate messages", rep.Duplicates)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.Generations, "generations", "n", 10000, "total generations")
	f.IntVar(&opts.Subjects, "subjects", 7, "distinct subjects")
	f.DurationVar(&opts.Span, "span", 730*24*time.Hour, "simulated time span")
	f.IntVar(&opts.Workers, "workers", 4, "concurrent callers")
	f.BoolVar(&opts.UseStore, "use-store", false, "use the configured store instead of a private in-memory one")
	f.StringVar(&opts.Start, "start", "2025-01-01", "simulated start date, YYYY-MM-DD")

	return cmd
}

// simClock is a shared clock advanced by the workers.
type simClock struct {
	start time.Time
	off   atomic.Int64
}

func (c *simClock) Now() time.Time          { return c.start.Add(time.Duration(c.off.Load())) }
func (c *simClock) Advance(d time.Duration) { c.off.Add(int64(d)) }

func runSimulate(ctx context.Context, rootOpts *RootOptions, opts *SimulateOptions) (SimulationReport, error) {
	if opts.Generations < 1 || opts.Subjects < 1 || opts.Workers < 1 || opts.Span <= 0 {
		return SimulationReport{}, fmt.Errorf("generations, subjects, workers and span must be positive")
	}
	start, err := time.Parse("2006-01-02", opts.Start)
	if err != nil {
		return SimulationReport{}, fmt.Errorf("--start: %w", err)
	}

	cfg := rootOpts.Config
	if !opts.UseStore {
		cfg.Store.Driver = uniqueness.DriverMemory
	}
	clock := &simClock{start: start}
	eng, err := BuildEngine(cfg, clock.Now)
	if err != nil {
		return SimulationReport{}, err
	}
	defer eng.Close()

	step := opts.Span / time.Duration(opts.Generations)
	categories := []string{"general", "love", "career", "health", "wealth"}

	var (
		mu        sync.Mutex
		seen      = make(map[string]struct{}, opts.Generations)
		dupes     int
		fallbacks atomic.Int64
		attempts  atomic.Int64
		next      atomic.Int64
	)
	began := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.Workers; w++ {
		g.Go(func() error {
			for {
				i := int(next.Add(1)) - 1
				if i >= opts.Generations {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				clock.Advance(step)
				req := simRequest(i%opts.Subjects, categories[i%len(categories)])
				res := eng.Service.GenerateDetailed(gctx, req)

				attempts.Add(int64(res.Attempts))
				if res.Fallback {
					fallbacks.Add(1)
				}
				mu.Lock()
				if _, dup := seen[res.Text]; dup {
					dupes++
				}
				seen[res.Text] = struct{}{}
				mu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return SimulationReport{}, err
	}

	return SimulationReport{
		Generations: opts.Generations,
		Subjects:    opts.Subjects,
		Span:        opts.Span.String(),
		Distinct:    len(seen),
		Duplicates:  dupes,
		Fallbacks:   fallbacks.Load(),
		MeanAttempt: float64(attempts.Load()) / float64(opts.Generations),
		Elapsed:     time.Since(began),
	}, nil
}

func simRequest(subject int, category string) domain.Request {
	return domain.Request{
		BaseMessage: "今日は新しい扉が開く",
		Category:    category,
		Source:      "simulate",
		Identity: domain.Identity{
			FullName:  fmt.Sprintf("subject-%03d", subject),
			BirthDate: time.Date(1970+subject%50, time.Month(1+subject%12), 1+subject%28, 0, 0, 0, 0, time.UTC),
		},
	}
}
