package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-fortune-backend/internal/domain"
	"github.com/tbourn/go-fortune-backend/internal/hashing"
	"github.com/tbourn/go-fortune-backend/internal/services"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	Name       string
	BirthDate  string
	BirthTime  string
	BirthPlace string
	Category   string
	Base       string
	Source     string
	LunarPhase float64
	Weather    string
	Count      int
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate messages for one subject",
		Long: `Generate one or more messages for a subject against the configured store.

Every message is recorded, so repeated runs keep producing new text.`,
		Example: `  fortuned generate --name "山田 花子" --birth-date 1990-03-15 --category love --base "あなたの未来は明るい"`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(cmd.Flags().Changed("lunar-phase"))
			if err != nil {
				return err
			}
			eng, err := BuildEngine(rootOpts.Config, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			results := make([]services.Result, 0, opts.Count)
			for i := 0; i < opts.Count; i++ {
				results = append(results, eng.Service.GenerateDetailed(cmd.Context(), req))
			}
			return emit(rootOpts, cmd.OutOrStdout(), results, func(w io.Writer) error {
				for _, r := range results {
					if _, err := fmt.Fprintln(w, r.Text); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Name, "name", "", "subject full name (required)")
	f.StringVar(&opts.BirthDate, "birth-date", "", "subject birth date, YYYY-MM-DD (required)")
	f.StringVar(&opts.BirthTime, "birth-time", "", "subject birth time, HH:MM")
	f.StringVar(&opts.BirthPlace, "birth-place", "", "subject birth place")
	f.StringVar(&opts.Category, "category", "general", "fortune category (love, career, health, ...)")
	f.StringVar(&opts.Base, "base", "", "base message from the upstream calculator")
	f.StringVar(&opts.Source, "source", domain.DefaultSource, "name of the upstream calculator")
	f.Float64Var(&opts.LunarPhase, "lunar-phase", 0, "lunar phase fraction in [0,1); approximated from the clock when unset")
	f.StringVar(&opts.Weather, "weather", "", "weather keyword")
	f.IntVarP(&opts.Count, "count", "n", 1, "number of messages to generate")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("birth-date")

	return cmd
}

func (o *GenerateOptions) request(withPhase bool) (domain.Request, error) {
	name := strings.TrimSpace(o.Name)
	if name == "" {
		return domain.Request{}, errors.New("--name must not be empty")
	}
	birth, err := time.Parse("2006-01-02", strings.TrimSpace(o.BirthDate))
	if err != nil {
		return domain.Request{}, fmt.Errorf("--birth-date: %w", err)
	}
	if o.BirthTime != "" {
		if _, err := time.Parse("15:04", o.BirthTime); err != nil {
			return domain.Request{}, fmt.Errorf("--birth-time: %w", err)
		}
	}
	if o.Count < 1 {
		return domain.Request{}, errors.New("--count must be >= 1")
	}

	req := domain.Request{
		BaseMessage: strings.TrimSpace(o.Base),
		Category:    o.Category,
		Source:      o.Source,
		Identity: domain.Identity{
			FullName:   name,
			BirthDate:  birth,
			BirthTime:  o.BirthTime,
			BirthPlace: o.BirthPlace,
		},
	}
	if withPhase || o.Weather != "" {
		if withPhase && (o.LunarPhase < 0 || o.LunarPhase >= 1) {
			return domain.Request{}, errors.New("--lunar-phase must be in [0,1)")
		}
		phase := o.LunarPhase
		if !withPhase {
			phase = hashing.ApproxLunarPhase(time.Now())
		}
		req.Environment = &domain.Environment{LunarPhase: phase, Weather: o.Weather}
	}
	return req, nil
}
