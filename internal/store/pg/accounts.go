package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edustack/campusid/internal/store/core"
)

type accountRepo struct{ pool *pgxpool.Pool }

const accountCols = `id, user_id, provider, provider_user_id,
	COALESCE(provider_username,''), COALESCE(access_token_enc,''),
	COALESCE(refresh_token_enc,''), COALESCE(token_expires_at, 'epoch'::timestamptz),
	linked_at, last_used_at, COALESCE(profile_snapshot, '{}'::jsonb)`

func scanAccount(row pgx.Row) (*core.FederatedAccount, error) {
	var a core.FederatedAccount
	err := row.Scan(&a.ID, &a.UserID, &a.Provider, &a.ProviderUserID,
		&a.ProviderUsername, &a.AccessTokenEnc, &a.RefreshTokenEnc,
		&a.TokenExpiresAt, &a.LinkedAt, &a.LastUsedAt, &a.ProfileSnapshot)
	if err != nil {
		return nil, mapNotFound(err)
	}
	// epoch sentinel => sin expiry almacenado
	if a.TokenExpiresAt.Unix() == 0 {
		a.TokenExpiresAt = time.Time{}
	}
	return &a, nil
}

func (r *accountRepo) GetByProvider(ctx context.Context, provider, providerUserID string) (*core.FederatedAccount, error) {
	q := `SELECT ` + accountCols + ` FROM federated_account
	      WHERE provider = $1 AND provider_user_id = $2`
	return scanAccount(r.pool.QueryRow(ctx, q, provider, providerUserID))
}

func (r *accountRepo) GetByID(ctx context.Context, id string) (*core.FederatedAccount, error) {
	q := `SELECT ` + accountCols + ` FROM federated_account WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, q, id))
}

func (r *accountRepo) ListByUser(ctx context.Context, userID string) ([]core.FederatedAccount, error) {
	q := `SELECT ` + accountCols + ` FROM federated_account WHERE user_id = $1 ORDER BY linked_at`
	return r.list(ctx, q, userID)
}

func (r *accountRepo) Insert(ctx context.Context, a *core.FederatedAccount) error {
	// El unique index (provider, provider_user_id) es la guarda contra la
	// carrera de callbacks concurrentes: el perdedor recibe ErrConflict y
	// reintenta como update.
	const q = `INSERT INTO federated_account
	    (id, user_id, provider, provider_user_id, provider_username,
	     access_token_enc, refresh_token_enc, token_expires_at,
	     linked_at, last_used_at, profile_snapshot)
	    VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''),NULLIF($7,''),$8,now(),now(),$9)
	    RETURNING linked_at, last_used_at`
	var expires any
	if !a.TokenExpiresAt.IsZero() {
		expires = a.TokenExpiresAt
	}
	err := r.pool.QueryRow(ctx, q, a.ID, a.UserID, a.Provider, a.ProviderUserID,
		a.ProviderUsername, a.AccessTokenEnc, a.RefreshTokenEnc, expires,
		a.ProfileSnapshot).Scan(&a.LinkedAt, &a.LastUsedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return err
	}
	return nil
}

func (r *accountRepo) Update(ctx context.Context, a *core.FederatedAccount) error {
	const q = `UPDATE federated_account SET
	    provider_username = NULLIF($2,''),
	    profile_snapshot  = $3,
	    last_used_at      = $4
	    WHERE id = $1`
	ct, err := r.pool.Exec(ctx, q, a.ID, a.ProviderUsername, a.ProfileSnapshot, a.LastUsedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *accountRepo) UpdateTokens(ctx context.Context, id, accessEnc, refreshEnc string, expiresAt, lastUsedAt time.Time) error {
	const q = `UPDATE federated_account SET
	    access_token_enc  = NULLIF($2,''),
	    refresh_token_enc = NULLIF($3,''),
	    token_expires_at  = $4,
	    last_used_at      = $5
	    WHERE id = $1`
	var expires any
	if !expiresAt.IsZero() {
		expires = expiresAt
	}
	ct, err := r.pool.Exec(ctx, q, id, accessEnc, refreshEnc, expires, lastUsedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *accountRepo) ClearTokens(ctx context.Context, id string) error {
	const q = `UPDATE federated_account SET
	    access_token_enc = NULL, refresh_token_enc = NULL, token_expires_at = NULL
	    WHERE id = $1`
	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *accountRepo) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM federated_account WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *accountRepo) ListExpired(ctx context.Context, now time.Time) ([]core.FederatedAccount, error) {
	q := `SELECT ` + accountCols + ` FROM federated_account
	      WHERE access_token_enc IS NOT NULL AND token_expires_at IS NOT NULL
	        AND token_expires_at < $1`
	return r.list(ctx, q, now)
}

func (r *accountRepo) ListUnusedSince(ctx context.Context, cutoff time.Time) ([]core.FederatedAccount, error) {
	q := `SELECT ` + accountCols + ` FROM federated_account WHERE last_used_at < $1`
	return r.list(ctx, q, cutoff)
}

func (r *accountRepo) list(ctx context.Context, q string, args ...any) ([]core.FederatedAccount, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.FederatedAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
