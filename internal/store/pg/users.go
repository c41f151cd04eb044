package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edustack/campusid/internal/store/core"
)

type userRepo struct{ pool *pgxpool.Pool }

func (r *userRepo) GetByID(ctx context.Context, id string) (*core.User, error) {
	const q = `SELECT id, login, COALESCE(email,''), COALESCE(display_name,''), created_at
	           FROM app_user WHERE id = $1`
	var u core.User
	err := r.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Login, &u.Email, &u.DisplayName, &u.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*core.User, error) {
	const q = `SELECT id, login, COALESCE(email,''), COALESCE(display_name,''), created_at
	           FROM app_user WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var u core.User
	err := r.pool.QueryRow(ctx, q, email).Scan(&u.ID, &u.Login, &u.Email, &u.DisplayName, &u.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &u, nil
}

func (r *userRepo) LoginExists(ctx context.Context, login string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM app_user WHERE LOWER(login) = LOWER($1))`
	var exists bool
	if err := r.pool.QueryRow(ctx, q, login).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *userRepo) Create(ctx context.Context, u *core.User) error {
	const q = `INSERT INTO app_user (id, login, email, display_name, created_at)
	           VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), now())
	           RETURNING created_at`
	err := r.pool.QueryRow(ctx, q, u.ID, u.Login, u.Email, u.DisplayName).Scan(&u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return err
	}
	return nil
}
