package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/jmoiron/sqlx"
)

const userColumns = `id, username, email, full_name, password_hash, role, status,
	lock_reason, lock_duration_minutes, locked_until,
	two_fa_enabled, two_fa_required, two_fa_secret,
	two_fa_last_step, two_fa_last_challenge,
	has_passkey, email_verified, auth_provider, presence,
	last_login_at, last_login_ip, created_at, updated_at`

type userRow struct {
	ID                  string         `db:"id"`
	Username            string         `db:"username"`
	Email               string         `db:"email"`
	FullName            string         `db:"full_name"`
	PasswordHash        string         `db:"password_hash"`
	Role                string         `db:"role"`
	Status              string         `db:"status"`
	LockReason          sql.NullString `db:"lock_reason"`
	LockDurationMinutes sql.NullInt64  `db:"lock_duration_minutes"`
	LockedUntil         sql.NullTime   `db:"locked_until"`
	TwoFAEnabled        bool           `db:"two_fa_enabled"`
	TwoFARequired       bool           `db:"two_fa_required"`
	TwoFASecret         sql.NullString `db:"two_fa_secret"`
	TwoFALastStep       sql.NullInt64  `db:"two_fa_last_step"`
	TwoFALastChallenge  sql.NullString `db:"two_fa_last_challenge"`
	HasPasskey          bool           `db:"has_passkey"`
	EmailVerified       bool           `db:"email_verified"`
	AuthProvider        string         `db:"auth_provider"`
	Presence            string         `db:"presence"`
	LastLoginAt         sql.NullTime   `db:"last_login_at"`
	LastLoginIP         sql.NullString `db:"last_login_ip"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

func mapUser(row userRow) domain.User {
	return domain.User{
		ID:                  row.ID,
		Username:            row.Username,
		Email:               row.Email,
		FullName:            row.FullName,
		PasswordHash:        row.PasswordHash,
		Role:                row.Role,
		Status:              domain.UserStatus(row.Status),
		LockReason:          mapNullStringPtr(row.LockReason),
		LockDurationMinutes: mapNullIntPtr(row.LockDurationMinutes),
		LockedUntil:         mapNullTimePtr(row.LockedUntil),
		TwoFAEnabled:        row.TwoFAEnabled,
		TwoFARequired:       row.TwoFARequired,
		TwoFASecret:         mapNullStringPtr(row.TwoFASecret),
		TwoFALastStep:       mapNullInt64Ptr(row.TwoFALastStep),
		TwoFALastChallenge:  mapNullStringPtr(row.TwoFALastChallenge),
		HasPasskey:          row.HasPasskey,
		EmailVerified:       row.EmailVerified,
		AuthProvider:        domain.AuthProvider(row.AuthProvider),
		Presence:            domain.Presence(row.Presence),
		LastLoginAt:         mapNullTimePtr(row.LastLoginAt),
		LastLoginIP:         mapNullStringPtr(row.LastLoginIP),
		CreatedAt:           row.CreatedAt.UTC(),
		UpdatedAt:           row.UpdatedAt.UTC(),
	}
}

type usersRepo struct {
	q sqlx.ExtContext
}

func (r *usersRepo) getBy(ctx context.Context, column, value string) (domain.User, error) {
	var row userRow
	if err := get(ctx, r.q, &row, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value); err != nil {
		return domain.User{}, err
	}
	return mapUser(row), nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	ts := now()
	if !u.CreatedAt.IsZero() {
		ts = utc(u.CreatedAt)
	}
	if u.Status == "" {
		u.Status = domain.StatusActive
	}
	if u.Role == "" {
		u.Role = domain.DefaultRole
	}
	if u.AuthProvider == "" {
		u.AuthProvider = domain.AuthProviderLocal
	}
	if u.Presence == "" {
		u.Presence = domain.PresenceOffline
	}

	_, err := execCount(ctx, r.q, `
		INSERT INTO users (
			id, username, email, full_name, password_hash, role, status,
			two_fa_enabled, two_fa_required, two_fa_secret,
			has_passkey, email_verified, auth_provider, presence,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.FullName, u.PasswordHash, u.Role, string(u.Status),
		u.TwoFAEnabled, u.TwoFARequired, mapOptionalString(u.TwoFASecret),
		u.HasPasskey, u.EmailVerified, string(u.AuthProvider), string(u.Presence),
		ts, ts,
	)
	return err
}

func (r *usersRepo) LockUser(
	ctx context.Context,
	userID, reason string,
	durationMinutes int,
	lockedUntil time.Time,
) error {
	return execOne(ctx, r.q, `
		UPDATE users
		SET status = ?, lock_reason = ?, lock_duration_minutes = ?, locked_until = ?,
			two_fa_required = ?, updated_at = ?
		WHERE id = ?`,
		string(domain.StatusLocked), reason, durationMinutes, utc(lockedUntil), true, now(), userID,
	)
}

func (r *usersRepo) UnlockUser(ctx context.Context, userID string) error {
	return execOne(ctx, r.q, `
		UPDATE users
		SET status = ?, lock_reason = NULL, lock_duration_minutes = NULL, locked_until = NULL,
			two_fa_required = ?, updated_at = ?
		WHERE id = ?`,
		string(domain.StatusActive), true, now(), userID,
	)
}

func (r *usersRepo) SetTwoFASecret(ctx context.Context, userID, secret string) error {
	return execOne(ctx, r.q,
		`UPDATE users SET two_fa_secret = ?, two_fa_enabled = ?, updated_at = ? WHERE id = ?`,
		secret, false, now(), userID,
	)
}

func (r *usersRepo) EnableTwoFA(ctx context.Context, userID string) error {
	return execOne(ctx, r.q,
		`UPDATE users SET two_fa_enabled = ?, two_fa_required = ?, updated_at = ? WHERE id = ?`,
		true, false, now(), userID,
	)
}

func (r *usersRepo) DisableTwoFA(ctx context.Context, userID string) error {
	return execOne(ctx, r.q,
		`UPDATE users SET two_fa_enabled = ?, two_fa_secret = NULL, updated_at = ? WHERE id = ?`,
		false, now(), userID,
	)
}

func (r *usersRepo) ConsumeTwoFAChallenge(ctx context.Context, userID, challengeID string, step int64) (bool, error) {
	n, err := execCount(ctx, r.q, `
		UPDATE users
		SET two_fa_last_step = ?, two_fa_last_challenge = ?, updated_at = ?
		WHERE id = ?
			AND (two_fa_last_step IS NULL OR two_fa_last_step < ?)
			AND (two_fa_last_challenge IS NULL OR two_fa_last_challenge <> ?)`,
		step, challengeID, now(), userID, step, challengeID,
	)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *usersRepo) RecordLogin(ctx context.Context, userID, ip string, at time.Time) error {
	return execOne(ctx, r.q, `
		UPDATE users
		SET last_login_at = ?, last_login_ip = ?, presence = ?, updated_at = ?
		WHERE id = ?`,
		utc(at), ip, string(domain.PresenceOnline), now(), userID,
	)
}

func (r *usersRepo) SetPresence(ctx context.Context, userID string, p domain.Presence) error {
	return execOne(ctx, r.q,
		`UPDATE users SET presence = ?, updated_at = ? WHERE id = ?`,
		string(p), now(), userID,
	)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	return execOne(ctx, r.q,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, now(), userID,
	)
}
