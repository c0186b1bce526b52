package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Migrator applies the embedded schema with golang-migrate.
type Migrator struct {
	m  *migrate.Migrate
	db *sql.DB
}

// MigrationStatus describes the database schema version.
type MigrationStatus struct {
	Current   uint
	Dirty     bool
	Available []uint
}

// Pending reports how many available migrations are above the current one.
func (s MigrationStatus) Pending() int {
	n := 0
	for _, v := range s.Available {
		if v > s.Current {
			n++
		}
	}
	return n
}

// NewMigrator opens databaseURL through the pgx stdlib driver and reads
// migrations from fsys.
func NewMigrator(databaseURL string, fsys fs.FS) (*Migrator, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(fsys, ".")
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return &Migrator{m: m, db: sqlDB}, nil
}

// Up applies all pending migrations. It returns false when there was
// nothing to apply.
func (m *Migrator) Up() (bool, error) {
	if err := m.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return false, nil
		}
		return false, fmt.Errorf("migrate up: %w", err)
	}
	return true, nil
}

// Down rolls back the given number of migrations.
func (m *Migrator) Down(steps int) error {
	if steps <= 0 {
		steps = 1
	}
	if err := m.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Status returns the applied version alongside the versions in fsys.
func (m *Migrator) Status(fsys fs.FS) (MigrationStatus, error) {
	available, err := ListVersions(fsys)
	if err != nil {
		return MigrationStatus{}, err
	}
	v, dirty, err := m.m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, fmt.Errorf("read version: %w", err)
	}
	return MigrationStatus{Current: v, Dirty: dirty, Available: available}, nil
}

// Close releases the migrator and its connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

// ListVersions returns the migration versions found in fsys in ascending
// order.
func ListVersions(fsys fs.FS) ([]uint, error) {
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("source driver: %w", err)
	}
	defer src.Close()
	return walkVersions(src)
}

func walkVersions(src source.Driver) ([]uint, error) {
	v, err := src.First()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("first migration: %w", err)
	}
	versions := []uint{v}
	for {
		next, err := src.Next(v)
		if errors.Is(err, os.ErrNotExist) {
			return versions, nil
		}
		if err != nil {
			return nil, fmt.Errorf("next migration after %d: %w", v, err)
		}
		versions = append(versions, next)
		v = next
	}
}
