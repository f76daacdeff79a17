// Package localstore is the on-device key-value store of the client: cached
// wrapped bundle, local entry cache, sync queue, device-wrapped key.
//
// The store never fails its callers. When the durable backend cannot be
// opened or an operation on it fails, the store logs the problem once and
// keeps serving from an in-memory map for the rest of the session.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/gophjournal/internal/client/migrations"
	"github.com/dmitrijs2005/gophjournal/internal/logging"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

type Store struct {
	mu       sync.Mutex
	repo     Repository
	closer   io.Closer
	mem      map[string][]byte
	degraded bool
	logger   logging.Logger
}

// New wraps a durable repository. A nil repo yields a memory-only store.
func New(repo Repository, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{
		repo:     repo,
		mem:      make(map[string][]byte),
		degraded: repo == nil,
		logger:   logger,
	}
}

// NewMemory returns a store that never touches the disk.
func NewMemory(logger logging.Logger) *Store {
	return New(nil, logger)
}

// RunMigrations applies the embedded client schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Open opens the SQLite database at dsn. On any failure the returned store is
// memory-only; the error is logged, never returned.
func Open(ctx context.Context, dsn string, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		logger.Warn(ctx, "local store unavailable, using memory", "error", err)
		return NewMemory(logger)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		logger.Warn(ctx, "local store migration failed, using memory", "error", err)
		return NewMemory(logger)
	}
	s := New(NewSQLiteRepository(db), logger)
	s.closer = db
	return s
}

// Degraded reports whether the store has fallen back to memory.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *Store) degrade(ctx context.Context, op string, err error) {
	if s.degraded {
		return
	}
	s.degraded = true
	s.logger.Warn(ctx, "local store failed, continuing in memory", "op", op, "error", err)
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.degraded {
		v, err := s.repo.Get(ctx, key)
		if err == nil {
			if v == nil {
				delete(s.mem, key)
				return nil, false
			}
			s.mem[key] = v
			return clone(v), true
		}
		s.degrade(ctx, "get", err)
	}

	v, ok := s.mem[key]
	return clone(v), ok
}

// Set stores value under key. Failures are absorbed.
func (s *Store) Set(ctx context.Context, key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mem[key] = clone(value)
	if s.degraded {
		return
	}
	if err := s.repo.Set(ctx, key, value); err != nil {
		s.degrade(ctx, "set", err)
	}
}

// Delete removes key. Failures are absorbed.
func (s *Store) Delete(ctx context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.mem, key)
	if s.degraded {
		return
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		s.degrade(ctx, "delete", err)
	}
}

// GetJSON decodes the value under key into v. A value that does not decode
// is logged and treated as absent.
func (s *Store) GetJSON(ctx context.Context, key string, v any) bool {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.logger.Warn(ctx, "local store value is not valid JSON", "key", key, "error", err)
		return false
	}
	return true
}

// SetJSON encodes v and stores it under key.
func (s *Store) SetJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.Set(ctx, key, raw)
	return nil
}

// Close releases the underlying database, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	s.degraded = true
	return err
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
