package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/jmoiron/sqlx"
)

const unlockTokenColumns = `id, user_id, unlock_token, email_token, ip_address, expires_at,
	is_used, email_verified, email_verified_at, created_at`

type unlockTokenRow struct {
	ID              string       `db:"id"`
	UserID          string       `db:"user_id"`
	UnlockToken     string       `db:"unlock_token"`
	EmailToken      string       `db:"email_token"`
	IPAddress       string       `db:"ip_address"`
	ExpiresAt       time.Time    `db:"expires_at"`
	IsUsed          bool         `db:"is_used"`
	EmailVerified   bool         `db:"email_verified"`
	EmailVerifiedAt sql.NullTime `db:"email_verified_at"`
	CreatedAt       time.Time    `db:"created_at"`
}

func mapUnlockToken(row unlockTokenRow) domain.UnlockToken {
	return domain.UnlockToken{
		ID:              row.ID,
		UserID:          row.UserID,
		UnlockToken:     row.UnlockToken,
		EmailToken:      row.EmailToken,
		IPAddress:       row.IPAddress,
		ExpiresAt:       row.ExpiresAt.UTC(),
		IsUsed:          row.IsUsed,
		EmailVerified:   row.EmailVerified,
		EmailVerifiedAt: mapNullTimePtr(row.EmailVerifiedAt),
		CreatedAt:       row.CreatedAt.UTC(),
	}
}

type unlockTokensRepo struct {
	q sqlx.ExtContext
}

func (r *unlockTokensRepo) CreateUnlockToken(ctx context.Context, t domain.UnlockToken) error {
	ts := now()
	if !t.CreatedAt.IsZero() {
		ts = utc(t.CreatedAt)
	}
	_, err := execCount(ctx, r.q, `
		INSERT INTO unlock_tokens (
			id, user_id, unlock_token, email_token, ip_address, expires_at,
			is_used, email_verified, email_verified_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.UnlockToken, t.EmailToken, t.IPAddress, utc(t.ExpiresAt),
		t.IsUsed, t.EmailVerified, mapOptionalTime(t.EmailVerifiedAt), ts,
	)
	return err
}

func (r *unlockTokensRepo) InvalidateActive(ctx context.Context, userID string) error {
	_, err := execCount(ctx, r.q,
		`UPDATE unlock_tokens SET is_used = ? WHERE user_id = ? AND is_used = ?`,
		true, userID, false,
	)
	return err
}

func (r *unlockTokensRepo) getBy(ctx context.Context, column, value string) (domain.UnlockToken, error) {
	var row unlockTokenRow
	err := get(ctx, r.q, &row, `SELECT `+unlockTokenColumns+` FROM unlock_tokens WHERE `+column+` = ?`, value)
	if err != nil {
		return domain.UnlockToken{}, err
	}
	return mapUnlockToken(row), nil
}

func (r *unlockTokensRepo) GetByID(ctx context.Context, id string) (domain.UnlockToken, error) {
	return r.getBy(ctx, "id", id)
}

func (r *unlockTokensRepo) GetByUnlockToken(ctx context.Context, unlockToken string) (domain.UnlockToken, error) {
	return r.getBy(ctx, "unlock_token", unlockToken)
}

func (r *unlockTokensRepo) GetByEmailToken(ctx context.Context, emailToken string) (domain.UnlockToken, error) {
	return r.getBy(ctx, "email_token", emailToken)
}

func (r *unlockTokensRepo) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return execOne(ctx, r.q,
		`UPDATE unlock_tokens SET email_verified = ?, email_verified_at = ? WHERE id = ?`,
		true, utc(at), id,
	)
}

func (r *unlockTokensRepo) MarkUsed(ctx context.Context, id string) error {
	return execOne(ctx, r.q, `UPDATE unlock_tokens SET is_used = ? WHERE id = ?`, true, id)
}

func (r *unlockTokensRepo) HasActive(ctx context.Context, userID string, at time.Time) (bool, error) {
	var n int
	err := get(ctx, r.q, &n,
		`SELECT COUNT(*) FROM unlock_tokens WHERE user_id = ? AND is_used = ? AND expires_at > ?`,
		userID, false, utc(at),
	)
	return n > 0, err
}

func (r *unlockTokensRepo) DeleteExpired(ctx context.Context, at time.Time) (int64, error) {
	return execCount(ctx, r.q,
		`DELETE FROM unlock_tokens WHERE is_used = ? OR expires_at < ?`,
		true, utc(at),
	)
}
