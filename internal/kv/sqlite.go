package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLite is an Adapter backed by a single-table SQLite database.
type SQLite struct {
	conn *sql.DB
}

// Open opens (or creates) the database at path and runs the schema. Use
// ":memory:" for an ephemeral store in tests.
func Open(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single connection: the kv store is accessed by one logical writer and
	// modernc's driver serializes poorly across pooled connections.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init kv schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// Get implements Adapter.
func (s *SQLite) Get(ctx context.Context, key string, out any) (bool, error) {
	var raw string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("get %q: unmarshal: %w", key, err)
	}
	return true, nil
}

// GetMultiple implements Adapter.
func (s *SQLite) GetMultiple(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	if len(keys) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	rows, err := s.conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT key, value FROM kv WHERE key IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("get multiple: %w", err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage, len(keys))
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("get multiple: scan: %w", err)
		}
		out[key] = json.RawMessage(raw)
	}
	return out, rows.Err()
}

// Set implements Adapter.
func (s *SQLite) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("set %q: marshal: %w", key, err)
	}
	if _, err := s.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`, key, string(data)); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// SetMultiple writes all entries in a single transaction so a mid-write
// crash cannot leave half of a logical commit behind.
func (s *SQLite) SetMultiple(ctx context.Context, values map[string]any) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set multiple: begin: %w", err)
	}
	defer tx.Rollback()

	for key, value := range values {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("set multiple: marshal %q: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`, key, string(data)); err != nil {
			return fmt.Errorf("set multiple: %q: %w", key, err)
		}
	}
	return tx.Commit()
}

// Remove implements Adapter. Removing an absent key is a no-op.
func (s *SQLite) Remove(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// RemoveMultiple implements Adapter.
func (s *SQLite) RemoveMultiple(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	if _, err := s.conn.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM kv WHERE key IN (%s)`, placeholders), args...); err != nil {
		return fmt.Errorf("remove multiple: %w", err)
	}
	return nil
}
