// Package migrations embeds the schema and applies it with golang-migrate.
package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

//go:embed *.sql
var files embed.FS

// Source returns the embedded migrations as a golang-migrate source.
func Source() (source.Driver, error) {
	return iofs.New(files, ".")
}

// Up applies every pending up migration.
func Up(ctx context.Context, db *sqlx.DB) error {
	return run(ctx, db, func(m *migrate.Migrate) error { return m.Up() })
}

// Down rolls back the last n applied migrations.
func Down(ctx context.Context, db *sqlx.DB, n int) error {
	if n <= 0 {
		return fmt.Errorf("down: step count must be positive, got %d", n)
	}
	return run(ctx, db, func(m *migrate.Migrate) error { return m.Steps(-n) })
}

func run(ctx context.Context, db *sqlx.DB, apply func(*migrate.Migrate) error) error {
	src, err := Source()
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	// A dedicated connection keeps m.Close from closing the shared pool.
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = src.Close()
		return err
	}
	drv, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		_ = src.Close()
		_ = conn.Close()
		return fmt.Errorf("open migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		_ = src.Close()
		_ = drv.Close()
		return err
	}
	defer m.Close()
	m.Log = zerologMigrateLogger{}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	if err := apply(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Info().Msg("Schema has no migrations applied")
	case err != nil:
		return err
	default:
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema migrated")
	}
	return nil
}

type zerologMigrateLogger struct{}

func (zerologMigrateLogger) Printf(format string, v ...interface{}) {
	log.Debug().Str("component", "migrate").Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (zerologMigrateLogger) Verbose() bool { return false }
