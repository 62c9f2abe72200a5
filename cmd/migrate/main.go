package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"

	"github.com/jts-services/portal/internal/config"
	"github.com/jts-services/portal/internal/logger"
)

var (
	migrationsDir = flag.String("migrations", "migrations/postgres", "Path to migrations directory")
	direction     = flag.String("direction", "up", "Migration direction: up or down")
	steps         = flag.Int("steps", 0, "Number of migrations to apply (0 = all pending for up, 1 for down)")
	showVersion   = flag.Bool("version", false, "Print the current schema version and exit")
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("migrate", "info")
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	databaseURL := flag.String("database", cfg.DatabaseURL, "Postgres connection string (or set DATABASE_URL env)")
	flag.Parse()

	log := logger.New("migrate", cfg.LogLevel)

	if *databaseURL == "" {
		log.Fatal().Msg("Error: -database flag or DATABASE_URL is required")
	}

	m, err := newMigrate(*migrationsDir, *databaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("migrations", *migrationsDir).Msg("Failed to open migrations")
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			log.Warn().AnErr("source", srcErr).AnErr("database", dbErr).Msg("Closing migrator")
		}
	}()
	m.Log = migrateLogger{log: log}

	if *showVersion {
		printVersion(m, log)
		return
	}

	if err := apply(m, *direction, *steps); err != nil {
		log.Fatal().Err(err).Str("direction", *direction).Msg("Migration failed")
	}

	printVersion(m, log)
}

// newMigrate opens the file source at dir against the pgx/v5 driver.
func newMigrate(dir, databaseURL string) (*migrate.Migrate, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving migrations directory: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("migrations directory not found: %s", dir)
	}

	dsn, err := driverURL(databaseURL)
	if err != nil {
		return nil, err
	}
	return migrate.New("file://"+filepath.ToSlash(abs), dsn)
}

// driverURL rewrites a libpq style URL to the scheme the pgx/v5 driver
// registers under.
func driverURL(databaseURL string) (string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "pgx5://"):
		return databaseURL, nil
	case strings.HasPrefix(databaseURL, "postgres://"):
		return "pgx5://" + strings.TrimPrefix(databaseURL, "postgres://"), nil
	case strings.HasPrefix(databaseURL, "postgresql://"):
		return "pgx5://" + strings.TrimPrefix(databaseURL, "postgresql://"), nil
	default:
		return "", fmt.Errorf("unsupported database URL scheme, want postgres:// or postgresql://")
	}
}

// migrator is the subset of *migrate.Migrate that apply drives.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
}

func apply(m migrator, direction string, n int) error {
	if n < 0 {
		return fmt.Errorf("steps must not be negative, got %d", n)
	}

	var err error
	switch direction {
	case "up":
		if n == 0 {
			err = m.Up()
		} else {
			err = m.Steps(n)
		}
	case "down":
		// a bare down only ever rolls back one migration
		if n == 0 {
			n = 1
		}
		err = m.Steps(-n)
	default:
		return fmt.Errorf("unknown direction %q, want up or down", direction)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func printVersion(m *migrate.Migrate, log zerolog.Logger) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("No migrations applied.")
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read schema version")
	}
	if dirty {
		log.Warn().Uint("version", version).Msg("Schema is dirty - fix the failed migration and force the version")
	}
	fmt.Printf("Schema at version %d\n", version)
}

// migrateLogger routes golang-migrate's progress lines through zerolog.
type migrateLogger struct {
	log zerolog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.log.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return false
}
