// Package store persists the values collected by wizard sessions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/cv-wizard/internal/fields"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned by Load for an unknown session.
var ErrNotFound = errors.New("session not found")

// Record is the persisted view of one session.
type Record struct {
	SessionID   string         `json:"sessionId"`
	CV          map[string]any `json:"cv"`
	FilledKeys  []string       `json:"filledKeys"`
	AllowedKeys []string       `json:"allowedKeys"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Store saves session snapshots. Save matches wizard.Persister.
type Store interface {
	Save(ctx context.Context, sessionID string, cv map[string]any, updates map[string]any, schema *fields.Schema, filledKeys []string) error
	Load(ctx context.Context, sessionID string) (*Record, error)
	Close() error
}

// Opts holds backend settings.
type Opts struct {
	DSN string
}

// Option configures a backend.
type Option func(*Opts)

// WithDSN sets the data source name: a file path for SQLite, a connection
// string for PostgreSQL.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// New opens the backend named by driver.
func New(driver string, opts ...Option) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite, "sqlite3":
		return NewSQLiteStore(opts...)
	case DriverPostgres, "postgresql":
		return NewPostgresStore(opts...)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}

func applyOpts(opts []Option) Opts {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// cloneCV deep copies cv through its JSON form so stored snapshots never alias
// session state.
func cloneCV(cv map[string]any) (map[string]any, error) {
	data, err := json.Marshal(cv)
	if err != nil {
		return nil, fmt.Errorf("encode cv: %w", err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode cv: %w", err)
	}
	return out, nil
}

func allowedKeys(schema *fields.Schema) []string {
	keys := schema.AllowedKeys()
	if keys == nil {
		keys = []string{}
	}
	return keys
}

func cloneKeys(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}
