package sqldb

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/aussiebroadwan/studyhub/internal/auth/store/drivers/sqldb/migrations"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ApplyMigrations applies any pending migrations for the store's dialect
// from the embedded schema files.
func (s *Store) ApplyMigrations() error {
	var (
		driver database.Driver
		files  fs.FS
		dir    string
		err    error
	)

	switch s.dialect {
	case DialectSQLite:
		driver, err = sqlite.WithInstance(s.db.DB, &sqlite.Config{})
		files, dir = migrations.SQLite, "sqlite"
	case DialectPostgres:
		driver, err = postgres.WithInstance(s.db.DB, &postgres.Config{})
		files, dir = migrations.Postgres, "postgres"
	default:
		return fmt.Errorf("sqldb: no migrations for %q", s.dialect)
	}
	if err != nil {
		return err
	}

	source, err := iofs.New(files, dir)
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", source, string(s.dialect), driver)
	if err != nil {
		return err
	}

	err = instance.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
