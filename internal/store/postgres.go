package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/agentauth/agentauth/internal/challenge"
)

const challengesSchema = `
CREATE TABLE IF NOT EXISTS agentauth_challenges (
	id         TEXT PRIMARY KEY,
	record     JSONB NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agentauth_challenges_expires
	ON agentauth_challenges (expires_at);
`

// PostgresStore keeps pending challenges in Postgres. Expiry is enforced by
// filtering on expires_at; Purge removes dead rows.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the database and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, challengesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Set(ctx context.Context, id string, record *challenge.Record, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agentauth_challenges (id, record, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET record = $2, expires_at = $3`,
		id, data, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*challenge.Record, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT record FROM agentauth_challenges
		WHERE id = $1 AND expires_at > NOW()`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select challenge: %w", err)
	}

	var record challenge.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	return &record, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agentauth_challenges WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete challenge: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete challenge: %w", err)
	}
	return rows > 0, nil
}

// Purge removes expired rows and returns how many were dropped.
func (s *PostgresStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agentauth_challenges WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge challenges: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
