package uniqueness

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-fortune-backend/internal/repo"
)

// Store drivers selectable by configuration.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// OpenOptions selects and locates a Store backend.
type OpenOptions struct {
	Driver      string
	DBPath      string // sqlite file
	DatabaseURL string // postgres DSN
	BadgerDir   string
}

// Open builds the Store named by opts.Driver and returns it with a function
// that releases its resources.
func Open(opts OpenOptions) (Store, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverMemory:
		return NewMemoryStore(), noop, nil
	case DriverSQLite:
		db, err := repo.OpenSQLite(opts.DBPath)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite store: %w", err)
		}
		return migrated(db)
	case DriverPostgres:
		db, err := repo.OpenPostgres(opts.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("open postgres store: %w", err)
		}
		return migrated(db)
	case DriverBadger:
		s, err := OpenBadger(BadgerConfig{Dir: opts.BadgerDir, SyncWrites: true})
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

func migrated(db *gorm.DB) (Store, func() error, error) {
	s := NewSQLStore(db)
	if err := repo.AutoMigrate(db); err != nil {
		_ = s.Close()
		return nil, func() error { return nil }, fmt.Errorf("migrate: %w", err)
	}
	return s, s.Close, nil
}
