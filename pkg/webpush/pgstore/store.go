// Package pgstore is a PostgreSQL implementation of webpush.Store.
//
// The schema ships as goose migrations in Migrations; apply them with
// pg.Migrate before constructing the store.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mbarradev-debug/divisapp-sub000/pkg/logger"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/webpush"
)

// Migrations holds the goose migrations for the push_subscriptions table.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations goose reads from.
const MigrationsDir = "migrations"

const columns = `endpoint, p256dh, auth, user_id, user_agent, expiration_time, created_at, updated_at`

const (
	upsertQuery = `INSERT INTO push_subscriptions (` + columns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (endpoint) DO UPDATE SET
    p256dh = EXCLUDED.p256dh,
    auth = EXCLUDED.auth,
    user_id = EXCLUDED.user_id,
    user_agent = EXCLUDED.user_agent,
    expiration_time = EXCLUDED.expiration_time,
    updated_at = EXCLUDED.updated_at`

	findQuery        = `SELECT ` + columns + ` FROM push_subscriptions WHERE endpoint = $1`
	deleteQuery      = `DELETE FROM push_subscriptions WHERE endpoint = $1`
	listByUserQuery  = `SELECT ` + columns + ` FROM push_subscriptions WHERE user_id = $1 ORDER BY created_at, endpoint`
	listExpiredQuery = `SELECT ` + columns + ` FROM push_subscriptions WHERE expiration_time IS NOT NULL AND expiration_time < $1 ORDER BY expiration_time, endpoint`
	countByUserQuery = `SELECT COUNT(*) FROM push_subscriptions WHERE user_id = $1`
)

// Store persists subscriptions in the push_subscriptions table.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used to report skipped rows.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store over db.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("webpush.pgstore"))
	return s
}

var _ webpush.Store = (*Store)(nil)
var _ webpush.Counter = (*Store)(nil)

func (s *Store) Upsert(ctx context.Context, sub webpush.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	var exp sql.NullTime
	if sub.ExpirationTime != nil {
		exp = sql.NullTime{Time: sub.ExpirationTime.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, upsertQuery,
		sub.Endpoint,
		sub.Keys.P256dh,
		sub.Keys.Auth,
		sub.UserID,
		sub.UserAgent,
		exp,
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *Store) FindByEndpoint(ctx context.Context, endpoint string) (webpush.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, findQuery, endpoint))
	if errors.Is(err, sql.ErrNoRows) {
		return webpush.Subscription{}, webpush.ErrSubscriptionNotFound
	}
	if err != nil {
		return webpush.Subscription{}, fmt.Errorf("find subscription: %w", err)
	}
	if err := sub.Validate(); err != nil {
		return webpush.Subscription{}, fmt.Errorf("stored subscription: %w", err)
	}
	return sub, nil
}

func (s *Store) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	res, err := s.db.ExecContext(ctx, deleteQuery, endpoint)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if n == 0 {
		return webpush.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) DeleteByEndpoints(ctx context.Context, endpoints []string) (int, error) {
	if len(endpoints) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(endpoints))
	args := make([]any, len(endpoints))
	for i, endpoint := range endpoints {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = endpoint
	}
	query := `DELETE FROM push_subscriptions WHERE endpoint IN (` + strings.Join(placeholders, ", ") + `)`

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete subscriptions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete subscriptions: %w", err)
	}
	return int(n), nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]webpush.Subscription, error) {
	return s.list(ctx, listByUserQuery, userID)
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]webpush.Subscription, error) {
	return s.list(ctx, listExpiredQuery, now.UTC())
}

func (s *Store) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, countByUserQuery, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return n, nil
}

// list returns every well-formed row. Malformed rows are logged and skipped.
func (s *Store) list(ctx context.Context, query string, arg any) ([]webpush.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	subs := make([]webpush.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		if err := sub.Validate(); err != nil {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "skipping malformed subscription row",
				logger.Endpoint(sub.Endpoint),
				logger.Error(err),
			)
			continue
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (webpush.Subscription, error) {
	var (
		sub webpush.Subscription
		exp sql.NullTime
	)
	err := row.Scan(
		&sub.Endpoint,
		&sub.Keys.P256dh,
		&sub.Keys.Auth,
		&sub.UserID,
		&sub.UserAgent,
		&exp,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return webpush.Subscription{}, err
	}
	if exp.Valid {
		t := exp.Time
		sub.ExpirationTime = &t
	}
	return sub, nil
}
