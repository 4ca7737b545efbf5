// Package kvstore is the small key-value store holding the installed
// version and diagnostic snapshots.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/ruletoggle/internal/logger"
)

// Known keys.
const (
	KeyVersion       = "version"
	KeyLastToggle    = "debug:last_toggle"
	KeyLastReconcile = "debug:last_reconcile"
	KeyLastMigration = "debug:last_migration"
)

// Entry is one stored pair.
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the key-value API used by the rest of the daemon.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) ([]Entry, error)
	Close() error
}

// Config selects a backend.
//
// Driver values:
//   - "sqlite": database file at Path
//   - "memory": process-local map, lost on exit
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration
}

// ErrEmptyKey is returned by Set for an empty key.
var ErrEmptyKey = errors.New("empty key")

// Open initializes the configured store.
func Open(cfg Config, log *logger.Logger) (Store, error) {
	if log == nil {
		log = logger.Discard()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown kv driver: %s", cfg.Driver)
	}
}

// SetJSON stores v marshalled as JSON.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}

// GetJSON loads key into v. ok is false when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}
