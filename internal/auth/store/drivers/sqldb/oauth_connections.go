package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/domain"
	"github.com/jmoiron/sqlx"
)

const oauthColumns = `id, user_id, provider, provider_user_id, provider_email, provider_name,
	provider_picture, created_at, updated_at, last_used_at`

type oauthConnectionRow struct {
	ID              string       `db:"id"`
	UserID          string       `db:"user_id"`
	Provider        string       `db:"provider"`
	ProviderUserID  string       `db:"provider_user_id"`
	ProviderEmail   string       `db:"provider_email"`
	ProviderName    string       `db:"provider_name"`
	ProviderPicture string       `db:"provider_picture"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
	LastUsedAt      sql.NullTime `db:"last_used_at"`
}

func mapOAuthConnection(row oauthConnectionRow) domain.OAuthConnection {
	return domain.OAuthConnection{
		ID:              row.ID,
		UserID:          row.UserID,
		Provider:        domain.Provider(row.Provider),
		ProviderUserID:  row.ProviderUserID,
		ProviderEmail:   row.ProviderEmail,
		ProviderName:    row.ProviderName,
		ProviderPicture: row.ProviderPicture,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
		LastUsedAt:      mapNullTimePtr(row.LastUsedAt),
	}
}

type oauthConnectionsRepo struct {
	q sqlx.ExtContext
}

func (r *oauthConnectionsRepo) GetByProviderUserID(
	ctx context.Context,
	p domain.Provider,
	providerUserID string,
) (domain.OAuthConnection, error) {
	var row oauthConnectionRow
	err := get(ctx, r.q, &row,
		`SELECT `+oauthColumns+` FROM oauth_connections WHERE provider = ? AND provider_user_id = ?`,
		string(p), providerUserID,
	)
	if err != nil {
		return domain.OAuthConnection{}, err
	}
	return mapOAuthConnection(row), nil
}

func (r *oauthConnectionsRepo) GetByUserProvider(
	ctx context.Context,
	userID string,
	p domain.Provider,
) (domain.OAuthConnection, error) {
	var row oauthConnectionRow
	err := get(ctx, r.q, &row,
		`SELECT `+oauthColumns+` FROM oauth_connections WHERE user_id = ? AND provider = ?`,
		userID, string(p),
	)
	if err != nil {
		return domain.OAuthConnection{}, err
	}
	return mapOAuthConnection(row), nil
}

func (r *oauthConnectionsRepo) ListByUser(ctx context.Context, userID string) ([]domain.OAuthConnection, error) {
	var rows []oauthConnectionRow
	err := sel(ctx, r.q, &rows,
		`SELECT `+oauthColumns+` FROM oauth_connections WHERE user_id = ? ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}

	out := make([]domain.OAuthConnection, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapOAuthConnection(row))
	}
	return out, nil
}

func (r *oauthConnectionsRepo) CreateConnection(ctx context.Context, c domain.OAuthConnection) error {
	ts := now()
	if !c.CreatedAt.IsZero() {
		ts = utc(c.CreatedAt)
	}
	_, err := execCount(ctx, r.q, `
		INSERT INTO oauth_connections (
			id, user_id, provider, provider_user_id, provider_email, provider_name,
			provider_picture, created_at, updated_at, last_used_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, string(c.Provider), c.ProviderUserID, c.ProviderEmail, c.ProviderName,
		c.ProviderPicture, ts, ts, mapOptionalTime(c.LastUsedAt),
	)
	return err
}

func (r *oauthConnectionsRepo) TouchConnection(ctx context.Context, c domain.OAuthConnection, at time.Time) error {
	return execOne(ctx, r.q, `
		UPDATE oauth_connections
		SET provider_email = ?, provider_name = ?, provider_picture = ?, updated_at = ?, last_used_at = ?
		WHERE id = ?`,
		c.ProviderEmail, c.ProviderName, c.ProviderPicture, utc(at), utc(at), c.ID,
	)
}

func (r *oauthConnectionsRepo) DeleteConnection(ctx context.Context, userID string, p domain.Provider) error {
	return execOne(ctx, r.q,
		`DELETE FROM oauth_connections WHERE user_id = ? AND provider = ?`,
		userID, string(p),
	)
}
