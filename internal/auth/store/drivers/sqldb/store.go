// Package sqldb implements store.Store on top of database/sql through sqlx.
// SQLite (modernc) and Postgres (lib/pq) share the same repositories; queries
// are written with ? placeholders and rebound per driver.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/store"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect names the database flavour behind a Store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

// NewSQLiteStore opens a SQLite database. Use ":memory:" for tests.
func NewSQLiteStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// A single connection keeps :memory: databases alive across calls and
	// serialises writers.
	db.SetMaxOpenConns(1)

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: sqlx.NewDb(db, "sqlite3"), dialect: DialectSQLite}, nil
}

// NewPostgresStore opens a Postgres database from a lib/pq connection string.
func NewPostgresStore(dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db, dialect: DialectPostgres}, nil
}

// Open picks the driver by name ("sqlite" or "postgres").
func Open(driver, dsn string) (*Store, error) {
	switch Dialect(strings.ToLower(driver)) {
	case DialectSQLite, "":
		return NewSQLiteStore(dsn)
	case DialectPostgres:
		return NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("sqldb: unsupported driver %q", driver)
	}
}

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return newTx(tx), nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) Users() store.Users                       { return &usersRepo{q: s.db} }
func (s *Store) Emails() store.Emails                     { return &emailsRepo{q: s.db} }
func (s *Store) LoginAttempts() store.LoginAttempts       { return &loginAttemptsRepo{q: s.db} }
func (s *Store) UnlockTokens() store.UnlockTokens         { return &unlockTokensRepo{q: s.db} }
func (s *Store) OAuthConnections() store.OAuthConnections { return &oauthConnectionsRepo{q: s.db} }

// execOne runs a write that must touch at least one row.
func execOne(ctx context.Context, q sqlx.ExtContext, query string, args ...any) error {
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return mapWriteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func execCount(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return 0, mapWriteError(err)
	}
	return res.RowsAffected()
}

func get(ctx context.Context, q sqlx.ExtContext, dest any, query string, args ...any) error {
	return mapNotFound(sqlx.GetContext(ctx, q, dest, q.Rebind(query), args...))
}

func sel(ctx context.Context, q sqlx.ExtContext, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q, dest, q.Rebind(query), args...)
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// mapWriteError turns unique violations from either driver into
// store.ErrAlreadyExists.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")) {
			return fmt.Errorf("%w: %v", store.ErrAlreadyExists, err)
		}
	}

	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return fmt.Errorf("%w: %v", store.ErrAlreadyExists, err)
	}

	return err
}

func utc(t time.Time) time.Time { return t.UTC() }

func now() time.Time { return time.Now().UTC() }

func mapNullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		val := ns.String
		return &val
	}
	return nil
}

func mapOptionalString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}

func mapNullTimePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		val := nt.Time.UTC()
		return &val
	}
	return nil
}

func mapOptionalTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func mapNullInt64Ptr(ni sql.NullInt64) *int64 {
	if ni.Valid {
		val := ni.Int64
		return &val
	}
	return nil
}

func mapNullIntPtr(ni sql.NullInt64) *int {
	if ni.Valid {
		val := int(ni.Int64)
		return &val
	}
	return nil
}
