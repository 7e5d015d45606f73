package sqldb

import (
	"context"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/jmoiron/sqlx"
)

type emailsRepo struct {
	q sqlx.ExtContext
}

func (r *emailsRepo) AddEmail(ctx context.Context, e domain.UserEmail) error {
	ts := now()
	if !e.CreatedAt.IsZero() {
		ts = utc(e.CreatedAt)
	}
	_, err := execCount(ctx, r.q,
		`INSERT INTO user_emails (id, user_id, email, verified, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Email, e.Verified, ts,
	)
	return err
}

func (r *emailsRepo) FindVerifiedUserID(ctx context.Context, email string) (string, error) {
	var userID string
	err := get(ctx, r.q, &userID,
		`SELECT user_id FROM user_emails WHERE email = ? AND verified = ?`,
		email, true,
	)
	return userID, err
}
