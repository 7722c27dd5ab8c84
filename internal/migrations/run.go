package migrations

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
)

//go:embed postgres/*.sql sqlite/*.sql
var fs embed.FS

// Up applies all pending up migrations for driver against dsn.
func Up(driver, dsn string) error {
	m, err := open(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down reverts every applied migration.
func Down(driver, dsn string) error {
	m, err := open(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

func open(driver, dsn string) (*migrate.Migrate, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	dir, url, err := source(driver, dsn)
	if err != nil {
		return nil, err
	}

	// iofs driver from embedded files
	d, err := iofs.New(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("iofs: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, url)
	if err != nil {
		return nil, fmt.Errorf("migrate new: %w", err)
	}
	return m, nil
}

// source picks the embedded directory and the URL form golang-migrate expects.
func source(driver, dsn string) (string, string, error) {
	switch driver {
	case "pgx", "postgres":
		return "postgres", dsn, nil
	case "sqlite":
		if !strings.HasPrefix(dsn, "sqlite://") {
			dsn = "sqlite://" + dsn
		}
		return "sqlite", dsn, nil
	default:
		return "", "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}
