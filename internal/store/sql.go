package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/cv-wizard/internal/fields"
)

const (
	upsertSessionQuery = `INSERT INTO wizard_sessions (session_id, cv, filled_keys, allowed_keys, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (session_id) DO UPDATE SET
    cv = excluded.cv,
    filled_keys = excluded.filled_keys,
    allowed_keys = excluded.allowed_keys,
    updated_at = excluded.updated_at`
	insertUpdateQuery = `INSERT INTO wizard_field_updates (session_id, field_key, value, created_at) VALUES (?, ?, ?, ?)`
	selectSessionQuery = `SELECT cv, filled_keys, allowed_keys, updated_at FROM wizard_sessions WHERE session_id = ?`
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL backends.
// Queries are written with '?' placeholders and rebound per dialect.
type sqlStore struct {
	db          *sql.DB
	placeholder func(n int) string
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return "$" + strconv.Itoa(n) }

func (s *sqlStore) rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) Save(ctx context.Context, sessionID string, cv map[string]any, updates map[string]any, schema *fields.Schema, filledKeys []string) error {
	cvJSON, err := json.Marshal(cv)
	if err != nil {
		return fmt.Errorf("encode cv for %s: %w", sessionID, err)
	}
	if filledKeys == nil {
		filledKeys = []string{}
	}
	filledJSON, err := json.Marshal(filledKeys)
	if err != nil {
		return fmt.Errorf("encode filled keys for %s: %w", sessionID, err)
	}
	allowedJSON, err := json.Marshal(allowedKeys(schema))
	if err != nil {
		return fmt.Errorf("encode allowed keys for %s: %w", sessionID, err)
	}

	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(upsertSessionQuery),
		sessionID, string(cvJSON), string(filledJSON), string(allowedJSON), now,
	); err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", sessionID, err)
	}

	for key, value := range updates {
		valueJSON, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode value of %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(insertUpdateQuery), sessionID, key, string(valueJSON), now); err != nil {
			return fmt.Errorf("failed to insert update %s for %s: %w", key, sessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session %s: %w", sessionID, err)
	}
	return nil
}

func (s *sqlStore) Load(ctx context.Context, sessionID string) (*Record, error) {
	var cvJSON, filledJSON, allowedJSON string
	var updatedAt int64

	err := s.db.QueryRowContext(ctx, s.rebind(selectSessionQuery), sessionID).
		Scan(&cvJSON, &filledJSON, &allowedJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session %s: %w", sessionID, err)
	}

	record := &Record{
		SessionID: sessionID,
		CV:        make(map[string]any),
		UpdatedAt: time.Unix(updatedAt, 0).UTC(),
	}
	if err := json.Unmarshal([]byte(cvJSON), &record.CV); err != nil {
		return nil, fmt.Errorf("decode cv of %s: %w", sessionID, err)
	}
	if err := json.Unmarshal([]byte(filledJSON), &record.FilledKeys); err != nil {
		return nil, fmt.Errorf("decode filled keys of %s: %w", sessionID, err)
	}
	if err := json.Unmarshal([]byte(allowedJSON), &record.AllowedKeys); err != nil {
		return nil, fmt.Errorf("decode allowed keys of %s: %w", sessionID, err)
	}
	return record, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
