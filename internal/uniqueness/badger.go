package uniqueness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-fortune-backend/internal/domain"
	"github.com/tbourn/go-fortune-backend/internal/repo"
)

// Key layout:
//
//	rec/<hash>               -> JSON MessageRecord
//	subj/<subject>/<hash>    -> empty (per-subject index)
var (
	recPrefix  = []byte("rec/")
	subjPrefix = []byte("subj/")
)

// BadgerConfig configures an embedded Badger store.
type BadgerConfig struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir        string
	InMemory   bool
	SyncWrites bool
}

// BadgerStore is a Store over an embedded Badger key-value database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger database.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("uniqueness: badger dir is required for a persistent store")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create badger dir %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{l: log.Logger.With().Str("component", "badger").Logger()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func recKey(hash string) []byte { return append(append([]byte{}, recPrefix...), hash...) }

func subjKey(subject, hash string) []byte {
	k := append(append([]byte{}, subjPrefix...), subject...)
	k = append(k, '/')
	return append(k, hash...)
}

func subjScan(subject string) []byte {
	k := append(append([]byte{}, subjPrefix...), subject...)
	return append(k, '/')
}

func (b *BadgerStore) Exists(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(recKey(hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (b *BadgerStore) Insert(ctx context.Context, rec domain.MessageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Source == "" {
		rec.Source = domain.DefaultSource
	}
	rec.CreatedAt = repo.NormalizeTime(rec.CreatedAt)
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(recKey(rec.MessageHash))
		if err == nil {
			return ErrDuplicate
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(recKey(rec.MessageHash), val); err != nil {
			return err
		}
		return txn.Set(subjKey(rec.SubjectID, rec.MessageHash), nil)
	})
	// Only rec/<hash> is read, so a conflict means a concurrent writer took it.
	if errors.Is(err, badger.ErrConflict) {
		return ErrDuplicate
	}
	return err
}

func (b *BadgerStore) CountForSubject(ctx context.Context, subjectID string) (int64, error) {
	var n int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = subjScan(subjectID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// scan decodes every record, stopping early when fn returns an error.
func (b *BadgerStore) scan(ctx context.Context, fn func(domain.MessageRecord) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec domain.MessageRecord
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
				return err
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var stale []domain.MessageRecord
	err := b.scan(ctx, func(rec domain.MessageRecord) error {
		if rec.CreatedAt.Before(cutoff) {
			stale = append(stale, rec)
		}
		return nil
	})
	if err != nil || len(stale) == 0 {
		return 0, err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, rec := range stale {
		if err := wb.Delete(recKey(rec.MessageHash)); err != nil {
			return 0, err
		}
		if err := wb.Delete(subjKey(rec.SubjectID, rec.MessageHash)); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return int64(len(stale)), nil
}

func (b *BadgerStore) Statistics(ctx context.Context, now time.Time) (domain.StoreStatistics, error) {
	t := newTally(now)
	err := b.scan(ctx, func(rec domain.MessageRecord) error {
		t.add(rec)
		return nil
	})
	if err != nil {
		return domain.StoreStatistics{}, err
	}
	return t.result(), nil
}

// Close flushes and closes the database.
func (b *BadgerStore) Close() error { return b.db.Close() }

// badgerLogger routes Badger's internal logging through zerolog.
type badgerLogger struct{ l zerolog.Logger }

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.l.Error().Msgf(f, v...) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.l.Warn().Msgf(f, v...) }
func (b badgerLogger) Infof(f string, v ...interface{})    { b.l.Debug().Msgf(f, v...) }
func (b badgerLogger) Debugf(f string, v ...interface{})   { b.l.Trace().Msgf(f, v...) }
