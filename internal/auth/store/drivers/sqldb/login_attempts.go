package sqldb

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/jmoiron/sqlx"
)

type loginAttemptRow struct {
	ID            string         `db:"id"`
	IPAddress     string         `db:"ip_address"`
	Email         string         `db:"email"`
	UserID        sql.NullString `db:"user_id"`
	Success       bool           `db:"success"`
	UserAgent     string         `db:"user_agent"`
	FailureReason sql.NullString `db:"failure_reason"`
	AttemptedAt   time.Time      `db:"attempted_at"`
}

func mapLoginAttempt(row loginAttemptRow) domain.LoginAttempt {
	return domain.LoginAttempt{
		ID:            row.ID,
		IPAddress:     row.IPAddress,
		Email:         row.Email,
		UserID:        mapNullStringPtr(row.UserID),
		Success:       row.Success,
		UserAgent:     row.UserAgent,
		FailureReason: mapNullStringPtr(row.FailureReason),
		AttemptedAt:   row.AttemptedAt.UTC(),
	}
}

type loginAttemptsRepo struct {
	q sqlx.ExtContext
}

func (r *loginAttemptsRepo) CreateLoginAttempt(ctx context.Context, a domain.LoginAttempt) error {
	_, err := execCount(ctx, r.q, `
		INSERT INTO login_attempts (
			id, ip_address, email, user_id, success, user_agent, failure_reason, attempted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.IPAddress, a.Email, mapOptionalString(a.UserID), a.Success, a.UserAgent,
		mapOptionalString(a.FailureReason), utc(a.AttemptedAt),
	)
	return err
}

func (r *loginAttemptsRepo) CountFailuresByIPSince(ctx context.Context, ip string, since time.Time, excludeReasons ...string) (int, error) {
	clause, extra := reasonFilter(excludeReasons)
	var n int
	err := get(ctx, r.q, &n,
		`SELECT COUNT(*) FROM login_attempts WHERE ip_address = ? AND success = ? AND attempted_at >= ?`+clause,
		append([]any{ip, false, utc(since)}, extra...)...,
	)
	return n, err
}

func (r *loginAttemptsRepo) ListRecentByEmail(ctx context.Context, email string, limit int, excludeReasons ...string) ([]domain.LoginAttempt, error) {
	clause, extra := reasonFilter(excludeReasons)
	args := append([]any{email}, extra...)
	args = append(args, limit)

	var rows []loginAttemptRow
	err := sel(ctx, r.q, &rows, `
		SELECT id, ip_address, email, user_id, success, user_agent, failure_reason, attempted_at
		FROM login_attempts
		WHERE email = ?`+clause+`
		ORDER BY attempted_at DESC, id DESC
		LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, err
	}

	out := make([]domain.LoginAttempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapLoginAttempt(row))
	}
	return out, nil
}

// reasonFilter drops rows whose failure_reason is one of reasons. Successful
// rows have no reason and always pass.
func reasonFilter(reasons []string) (string, []any) {
	if len(reasons) == 0 {
		return "", nil
	}
	args := make([]any, len(reasons))
	for i, reason := range reasons {
		args[i] = reason
	}
	return ` AND (failure_reason IS NULL OR failure_reason NOT IN (?` + strings.Repeat(", ?", len(reasons)-1) + `))`, args
}

func (r *loginAttemptsRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return execCount(ctx, r.q, `DELETE FROM login_attempts WHERE attempted_at < ?`, utc(cutoff))
}
