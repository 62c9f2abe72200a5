package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jts-services/portal/internal/repository"
	"github.com/rs/zerolog"
)

// DB wraps the connection pool shared by every repository in this package.
type DB struct {
	Pool *pgxpool.Pool
}

// Connect opens a pool against databaseURL, retrying with exponential backoff
// while the database comes up.
func Connect(ctx context.Context, databaseURL string, log zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("Connect: parse config: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	const maxAttempts = 5
	delay := 2 * time.Second

	for attempt := 1; ; attempt++ {
		pool, err := connectOnce(ctx, cfg)
		if err == nil {
			log.Info().Int("attempt", attempt).Msg("Connected to database")
			return &DB{Pool: pool}, nil
		}
		if attempt == maxAttempts {
			return nil, fmt.Errorf("Connect: giving up after %d attempts: %w", maxAttempts, err)
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("Database connection failed")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
}

func connectOnce(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Close releases the pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Postgres error codes the repositories translate.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeInvalidText         = "22P02"
	codeNoDataFound         = "P0002"
)

// mapError wraps err with op and, where the cause is known, with one of the
// repository sentinels so callers can use errors.Is.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, repository.ErrConflict, pgErr.Message)
		case codeForeignKeyViolation, codeCheckViolation, codeInvalidText:
			return fmt.Errorf("%s: %w: %s", op, repository.ErrInvalidInput, pgErr.Message)
		case codeNoDataFound:
			return fmt.Errorf("%s: %w: %s", op, repository.ErrNotFound, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// nullableTime maps the zero time to SQL NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
