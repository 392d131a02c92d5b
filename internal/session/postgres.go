package session

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/mmeshcher/shipper-client/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var defaultRetryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// PostgresStore хранит сессию в PostgreSQL, одна строка на установку агента.
type PostgresStore struct {
	pool           *pgxpool.Pool
	installationID string
	logger         *zap.Logger
	retryDelays    []time.Duration
}

// NewPostgresStore подключается к БД и применяет миграции.
func NewPostgresStore(dsn, installationID string, logger *zap.Logger) (*PostgresStore, error) {
	if installationID == "" {
		return nil, errors.New("installation id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{
		pool:           pool,
		installationID: installationID,
		logger:         logger,
		retryDelays:    defaultRetryDelays,
	}

	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (model.Session, error) {
	var sess model.Session
	err := s.withRetry(ctx, func() error {
		return s.pool.QueryRow(ctx,
			`SELECT token, user_id, user_name, user_email, user_phone
			 FROM sessions
			 WHERE installation_id = $1`,
			s.installationID,
		).Scan(&sess.Token, &sess.UserID, &sess.UserName, &sess.UserEmail, &sess.UserPhone)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("select session: %w", err)
	}
	return stored(sess)
}

// Save заменяет сессию одним upsert.
func (s *PostgresStore) Save(ctx context.Context, sess model.Session) error {
	err := s.withRetry(ctx, func() error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO sessions (installation_id, token, user_id, user_name, user_email, user_phone, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, now())
			 ON CONFLICT (installation_id) DO UPDATE SET
			   token = EXCLUDED.token,
			   user_id = EXCLUDED.user_id,
			   user_name = EXCLUDED.user_name,
			   user_email = EXCLUDED.user_email,
			   user_phone = EXCLUDED.user_phone,
			   updated_at = now()`,
			s.installationID, sess.Token, sess.UserID, sess.UserName, sess.UserEmail, sess.UserPhone,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	err := s.withRetry(ctx, func() error {
		_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE installation_id = $1`, s.installationID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Token(ctx context.Context) (string, error) {
	return tokenOf(ctx, s)
}

func (s *PostgresStore) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= len(s.retryDelays); i++ {
		err = fn()
		if err == nil || !isRetryable(err) || i == len(s.retryDelays) {
			return err
		}

		s.logger.Warn("retrying session query", zap.Int("attempt", i+1), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelays[i]):
		}
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}
