package sqldb

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/studyhub/internal/auth/store"
	"github.com/jmoiron/sqlx"
)

type txStore struct {
	tx *sqlx.Tx
}

func newTx(tx *sqlx.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // outer DB stays open

// Ping is a no-op; the connection is held by the transaction.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Users() store.Users                       { return &usersRepo{q: t.tx} }
func (t *txStore) Emails() store.Emails                     { return &emailsRepo{q: t.tx} }
func (t *txStore) LoginAttempts() store.LoginAttempts       { return &loginAttemptsRepo{q: t.tx} }
func (t *txStore) UnlockTokens() store.UnlockTokens         { return &unlockTokensRepo{q: t.tx} }
func (t *txStore) OAuthConnections() store.OAuthConnections { return &oauthConnectionsRepo{q: t.tx} }

func (t *txStore) ApplyMigrations() error { return nil } // migrations run before any tx
