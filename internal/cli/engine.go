package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-fortune-backend/internal/config"
	"github.com/tbourn/go-fortune-backend/internal/digest"
	"github.com/tbourn/go-fortune-backend/internal/services"
	"github.com/tbourn/go-fortune-backend/internal/synth"
	"github.com/tbourn/go-fortune-backend/internal/uniqueness"
	"github.com/tbourn/go-fortune-backend/internal/vocab"
)

// Engine is a wired FortuneService plus the resources behind it.
type Engine struct {
	Service *services.FortuneService
	Client  *uniqueness.Client

	closeStore func() error
}

// BuildEngine wires digest, vocabulary, store, client and service from cfg.
// now overrides the service clock when non-nil.
func BuildEngine(cfg config.Config, now func() time.Time) (*Engine, error) {
	d, err := digest.New(cfg.Engine.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	bank := vocab.Default()
	if cfg.Engine.VocabPath != "" {
		if bank, err = vocab.LoadFile(cfg.Engine.VocabPath); err != nil {
			return nil, fmt.Errorf("vocabulary: %w", err)
		}
	}

	store, closeStore, err := uniqueness.Open(uniqueness.OpenOptions{
		Driver:      cfg.Store.Driver,
		DBPath:      cfg.Store.DBPath,
		DatabaseURL: cfg.Store.DatabaseURL,
		BadgerDir:   cfg.Store.BadgerDir,
	})
	if err != nil {
		return nil, err
	}

	client := uniqueness.NewClient(store, uniqueness.NewLocalCache(cfg.Engine.CacheCapacity), cfg.Store.Timeout)
	svc := services.NewFortuneService(d, synth.New(bank), client, services.Options{
		MaxAttempts:      cfg.Engine.MaxAttempts,
		FallbackStrategy: cfg.Engine.FallbackStrategy,
		Retention:        cfg.Engine.Retention,
		InstanceID:       cfg.Engine.InstanceID,
		Now:              now,
	})

	log.Debug().
		Str("store", cfg.Store.Driver).
		Str("hash", d.Name()).
		Int("max_attempts", cfg.Engine.MaxAttempts).
		Msg("engine ready")
	return &Engine{Service: svc, Client: client, closeStore: closeStore}, nil
}

// Close releases the store.
func (e *Engine) Close() error {
	if e == nil || e.closeStore == nil {
		return nil
	}
	return e.closeStore()
}
