package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-fortune-backend/internal/config"
	httpapi "github.com/tbourn/go-fortune-backend/internal/http"
	"github.com/tbourn/go-fortune-backend/internal/observability"
	"github.com/tbourn/go-fortune-backend/internal/services"
)

const shutdownGrace = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until SIGINT or SIGTERM.

When CLEANUP_INTERVAL is positive a janitor purges records older than
RETENTION on that interval.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts)
		},
	}
}

func newServer(cfg config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cfg := opts.Config

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.BuildInfo{
		Version:    opts.Version,
		InstanceID: cfg.Engine.InstanceID,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	eng, err := BuildEngine(cfg, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Warn().Err(err).Msg("store close")
		}
	}()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, eng.Service, cfg)
	srv := newServer(cfg, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.Store.Driver).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Engine.CleanupInterval > 0 {
		g.Go(func() error {
			j := &services.Janitor{Cleaner: eng.Service, Interval: cfg.Engine.CleanupInterval}
			if err := j.Run(gctx); err != nil && gctx.Err() == nil {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		log.Info().Msg("shutting down http server")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
