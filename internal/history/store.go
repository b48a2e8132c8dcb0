// Package history records order attempts in SQLite or PostgreSQL.
//
// The log is an audit trail only. Session state is never restored from it.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome of one submission.
type Outcome string

const (
	OutcomeSubmitted Outcome = "submitted"
	OutcomeFailed    Outcome = "failed"
)

// OrderAttempt is one submission and its result.
type OrderAttempt struct {
	ID         string
	SessionKey string
	Label      string
	Quantity   string
	FormURL    string
	Outcome    Outcome
	Detail     string
	CreatedAt  time.Time
}

// ErrNotFound is returned by Last when a session has no attempts.
var ErrNotFound = errors.New("no order attempts recorded")

// Store persists order attempts.
type Store interface {
	Record(ctx context.Context, a OrderAttempt) (OrderAttempt, error)
	Last(ctx context.Context, sessionKey string) (OrderAttempt, error)
	List(ctx context.Context, sessionKey string, limit int) ([]OrderAttempt, error)
	Close() error
}

// Opts holds store settings.
type Opts struct {
	DSN string
	Now func() time.Time
}

type Option func(*Opts)

// WithDSN sets the data source name.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithClock sets the clock used to stamp new attempts.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// DetectDSNType returns "postgres" for postgres URLs or key=value DSNs and
// "sqlite3" for everything else (file paths, file: URIs).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open picks the backend for dsn.
func Open(dsn string, opts ...Option) (Store, error) {
	opts = append([]Option{WithDSN(dsn)}, opts...)
	switch DetectDSNType(dsn) {
	case "postgres":
		return NewPostgresStore(opts...)
	default:
		return NewSQLiteStore(opts...)
	}
}

func applyOpts(opts []Option) (Opts, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return cfg, fmt.Errorf("database DSN not set")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg, nil
}

// sqlStore implements Store over database/sql. Backends differ only in
// placeholder syntax and migrations.
type sqlStore struct {
	db  *sql.DB
	now func() time.Time
	// ph returns the n-th (1-based) bind placeholder.
	ph func(n int) string
}

func (s *sqlStore) Record(ctx context.Context, a OrderAttempt) (OrderAttempt, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	q := fmt.Sprintf(`INSERT INTO order_attempts (id, session_key, label, quantity, form_url, outcome, detail, created_at)
VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8))
	_, err := s.db.ExecContext(ctx, q, a.ID, a.SessionKey, a.Label, a.Quantity, a.FormURL, string(a.Outcome), a.Detail, a.CreatedAt)
	if err != nil {
		return a, fmt.Errorf("failed to insert order attempt for %s: %w", a.SessionKey, err)
	}
	return a, nil
}

func (s *sqlStore) Last(ctx context.Context, sessionKey string) (OrderAttempt, error) {
	list, err := s.List(ctx, sessionKey, 1)
	if err != nil {
		return OrderAttempt{}, err
	}
	if len(list) == 0 {
		return OrderAttempt{}, ErrNotFound
	}
	return list[0], nil
}

// List returns the newest attempts first. limit <= 0 means no limit.
func (s *sqlStore) List(ctx context.Context, sessionKey string, limit int) ([]OrderAttempt, error) {
	q := fmt.Sprintf(`SELECT id, session_key, label, quantity, form_url, outcome, detail, created_at
FROM order_attempts WHERE session_key = %s ORDER BY created_at DESC, id DESC`, s.ph(1))
	args := []any{sessionKey}
	if limit > 0 {
		q += " LIMIT " + s.ph(2)
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order attempts: %w", err)
	}
	defer rows.Close()

	var out []OrderAttempt
	for rows.Next() {
		var a OrderAttempt
		var outcome string
		if err := rows.Scan(&a.ID, &a.SessionKey, &a.Label, &a.Quantity, &a.FormURL, &outcome, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order attempt row: %w", err)
		}
		a.Outcome = Outcome(outcome)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order attempt rows: %w", err)
	}
	return out, nil
}

func (s *sqlStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
