// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/chatvault/storage"
	"github.com/timshannon/badgerhold/v4"
)

// Store implements storage.Store on BadgerDB through badgerhold.
// Records are gob-encoded; every multi-record write runs in one badger transaction.
type Store struct {
	store  *badgerhold.Store
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens a store at the specified directory, creating it if needed.
// An empty path opens an in-memory store.
//
// Returns storage.Store interface to keep callers independent of badger.
func Open(path string) (storage.Store, error) {
	s, err := openStore(path, path == "")
	if err != nil {
		return nil, err
	}
	return s, nil
}

// openStore is the internal constructor returning the concrete type.
func openStore(filePath string, inMemory bool) (*Store, error) {
	opts := badgerhold.DefaultOptions

	if inMemory {
		opts.Options = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(filePath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(filePath, 0755); err != nil {
				return nil, err
			}
			if info, err = os.Stat(filePath); err != nil {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts.Options = badger.DefaultOptions(filePath)
	}

	logger := slog.Default().With("component", "badger-store")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	store, err := badgerhold.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Store{
		store:  store,
		logger: logger,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.IsClosed() {
		return nil
	}
	return s.store.Close()
}

// IsClosed returns true if the database is closed.
func (s *Store) IsClosed() bool {
	return s.store.Badger().IsClosed()
}

// ready fails fast when the context is done or the database is closed.
func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.IsClosed() {
		return storage.ErrStoreUnavailable
	}
	return nil
}

// view runs fn in a read-only transaction.
func (s *Store) view(ctx context.Context, fn func(tx *badger.Txn) error) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return wrapError(s.store.Badger().View(fn))
}

// conflictAttempts bounds how often update re-runs a transaction that lost a
// write conflict to a concurrent one.
const conflictAttempts = 10

// update runs fn in a read-write transaction committed only when fn succeeds.
// fn is run again on badger.ErrConflict, so it must not keep state between runs.
func (s *Store) update(ctx context.Context, fn func(tx *badger.Txn) error) error {
	for attempt := 1; ; attempt++ {
		if err := s.ready(ctx); err != nil {
			return err
		}
		err := s.store.Badger().Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt == conflictAttempts {
			return wrapError(err)
		}
		s.logger.Debug("transaction conflict, retrying", "attempt", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Millisecond):
		}
	}
}

// wrapError maps badger and badgerhold errors onto storage sentinels.
func wrapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrStoreUnavailable):
		return err
	case errors.Is(err, badgerhold.ErrNotFound):
		return storage.ErrNotFound
	case errors.Is(err, badger.ErrDBClosed):
		return fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, err)
	default:
		return err
	}
}

// notFound wraps ErrNotFound with the missing ID.
func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, storage.ErrNotFound)
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound) || errors.Is(err, badgerhold.ErrNotFound)
}

// ignoreNotFound treats a missing record as success, for idempotent deletes.
func ignoreNotFound(err error) error {
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil
	}
	return err
}
