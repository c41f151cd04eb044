package core

import (
	"context"
	"time"
)

// UserRepository expone las operaciones mínimas sobre usuarios locales que
// necesita el login federado. La creación de usuarios "completos" vive en el
// servicio de cuentas; acá sólo el find-or-create del resolver.
type UserRepository interface {
	// GetByID retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail busca case-insensitive. Retorna ErrNotFound si no existe.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// LoginExists chequea disponibilidad de un login candidato.
	LoginExists(ctx context.Context, login string) (bool, error)

	// Create inserta el usuario. Retorna ErrConflict si el login ya existe.
	Create(ctx context.Context, u *User) error
}

// AccountRepository maneja las cuentas federadas.
type AccountRepository interface {
	// GetByProvider busca por (provider, providerUserID). ErrNotFound si no existe.
	GetByProvider(ctx context.Context, provider, providerUserID string) (*FederatedAccount, error)

	// GetByID retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*FederatedAccount, error)

	// ListByUser lista las cuentas de un usuario.
	ListByUser(ctx context.Context, userID string) ([]FederatedAccount, error)

	// Insert crea la cuenta. Retorna ErrConflict si (provider, providerUserID)
	// ya existe: el caller debe releer y continuar como update (carrera de
	// callbacks concurrentes).
	Insert(ctx context.Context, a *FederatedAccount) error

	// Update reescribe username, snapshot y last_used_at.
	Update(ctx context.Context, a *FederatedAccount) error

	// UpdateTokens reemplaza los tokens cifrados y el expiry, y bumpea last_used_at.
	UpdateTokens(ctx context.Context, id, accessEnc, refreshEnc string, expiresAt, lastUsedAt time.Time) error

	// ClearTokens borra los tokens almacenados (post-revoke o sweep).
	ClearTokens(ctx context.Context, id string) error

	// Delete elimina la cuenta.
	Delete(ctx context.Context, id string) error

	// ListExpired lista cuentas con token vencido antes de now.
	ListExpired(ctx context.Context, now time.Time) ([]FederatedAccount, error)

	// ListUnusedSince lista cuentas con last_used_at anterior al cutoff.
	ListUnusedSince(ctx context.Context, cutoff time.Time) ([]FederatedAccount, error)
}

// Store agrupa los repositorios que expone un backend.
type Store interface {
	Users() UserRepository
	Accounts() AccountRepository
	Ping(ctx context.Context) error
	Close()
}
