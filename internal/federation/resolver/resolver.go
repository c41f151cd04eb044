// Package resolver finds or creates the local user for an external identity
// and keeps the federated account row in sync.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edustack/campusid/internal/federation/profile"
	"github.com/edustack/campusid/internal/observability/logger"
	"github.com/edustack/campusid/internal/store/core"
	"github.com/edustack/campusid/internal/util"
)

// defaultLoginBase se usa cuando ni el email ni el display name dan un
// candidato utilizable.
const defaultLoginBase = "learner"

// maxLoginAttempts corta el loop de sufijos ante un repo degenerado.
const maxLoginAttempts = 1000

// ErrLoginSpace indica que no se encontró un login libre.
var ErrLoginSpace = errors.New("resolver: exhausted login candidates")

// Resolution is the outcome of resolving one callback.
type Resolution struct {
	User    *core.User
	Account *core.FederatedAccount

	// IsNewUser: se creó un usuario local nuevo.
	IsNewUser bool
	// AccountLinked: la identidad externa se vinculó por primera vez a este
	// usuario (nuevo o matcheado por email).
	AccountLinked bool
}

// Resolver resuelve identidades externas contra el store local.
type Resolver struct {
	users    core.UserRepository
	accounts core.AccountRepository
	now      func() time.Time
}

func New(users core.UserRepository, accounts core.AccountRepository) *Resolver {
	return &Resolver{users: users, accounts: accounts, now: time.Now}
}

// WithClock reemplaza el reloj (tests).
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve aplica el algoritmo de resolución en orden:
//
//  1. Cuenta existente para (provider, profile.ID) => reusar su dueño.
//  2. Usuario local con el mismo email (case-insensitive) => vincular.
//  3. Crear usuario nuevo con login derivado.
//
// En cualquier rama se upsertea la cuenta federada. Una carrera de inserts
// concurrentes para la misma identidad se resuelve releyendo y continuando
// como update (rama 1).
func (r *Resolver) Resolve(ctx context.Context, provider string, prof profile.Profile) (*Resolution, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("resolver"))

	if prof.ID == "" {
		return nil, fmt.Errorf("resolver: profile without provider user id")
	}
	now := r.now().UTC()

	// Rama 1: identidad ya conocida.
	account, err := r.accounts.GetByProvider(ctx, provider, prof.ID)
	switch {
	case err == nil:
		return r.reuse(ctx, account, prof, now)
	case errors.Is(err, core.ErrNotFound):
		// sigue
	default:
		return nil, err
	}

	// Rama 2: match por email.
	var user *core.User
	linked := false
	isNew := false
	if prof.Email != "" {
		user, err = r.users.GetByEmail(ctx, prof.Email)
		switch {
		case err == nil:
			linked = true
		case errors.Is(err, core.ErrNotFound):
			user = nil
		default:
			return nil, err
		}
	}

	// Rama 3: usuario nuevo.
	if user == nil {
		user, err = r.createUser(ctx, prof, now)
		if err != nil {
			return nil, err
		}
		isNew = true
		linked = true
		log.Info("local user created",
			logger.UserID(user.ID),
			logger.String("login", user.Login),
			logger.Email(util.MaskEmail(user.Email)),
		)
	}

	account = &core.FederatedAccount{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		Provider:         provider,
		ProviderUserID:   prof.ID,
		ProviderUsername: prof.DisplayName,
		LinkedAt:         now,
		LastUsedAt:       now,
		ProfileSnapshot:  prof.Snapshot(),
	}
	if err := r.accounts.Insert(ctx, account); err != nil {
		if errors.Is(err, core.ErrConflict) {
			// Carrera: otro callback insertó primero. Releer y continuar
			// como rama 1.
			log.Warn("concurrent account insert, retrying as update",
				logger.Provider(provider),
			)
			existing, gerr := r.accounts.GetByProvider(ctx, provider, prof.ID)
			if gerr != nil {
				return nil, gerr
			}
			return r.reuse(ctx, existing, prof, now)
		}
		return nil, err
	}

	return &Resolution{User: user, Account: account, IsNewUser: isNew, AccountLinked: linked}, nil
}

// reuse implementa la rama 1: refrescar username/snapshot/last_used_at y
// devolver el dueño actual.
func (r *Resolver) reuse(ctx context.Context, account *core.FederatedAccount, prof profile.Profile, now time.Time) (*Resolution, error) {
	user, err := r.users.GetByID(ctx, account.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolver: account %s owner: %w", account.ID, err)
	}

	account.ProviderUsername = prof.DisplayName
	account.ProfileSnapshot = prof.Snapshot()
	account.LastUsedAt = now
	if err := r.accounts.Update(ctx, account); err != nil {
		return nil, err
	}

	return &Resolution{User: user, Account: account, IsNewUser: false, AccountLinked: false}, nil
}

func (r *Resolver) createUser(ctx context.Context, prof profile.Profile, now time.Time) (*core.User, error) {
	login, err := r.freeLogin(ctx, loginBase(prof))
	if err != nil {
		return nil, err
	}

	u := &core.User{
		ID:          uuid.NewString(),
		Login:       login,
		Email:       strings.ToLower(strings.TrimSpace(prof.Email)),
		DisplayName: prof.FullName(),
		CreatedAt:   now,
	}
	if err := r.users.Create(ctx, u); err != nil {
		if errors.Is(err, core.ErrConflict) {
			// Otro request ganó el login entre el chequeo y el insert.
			login, lerr := r.freeLogin(ctx, loginBase(prof))
			if lerr != nil {
				return nil, lerr
			}
			u.Login = login
			if err := r.users.Create(ctx, u); err != nil {
				return nil, err
			}
			return u, nil
		}
		return nil, err
	}
	return u, nil
}

// freeLogin appends an incrementing suffix until the candidate is free:
// alice, alice1, alice2, ...
func (r *Resolver) freeLogin(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 0; i < maxLoginAttempts; i++ {
		if i > 0 {
			candidate = fmt.Sprintf("%s%d", base, i)
		}
		taken, err := r.users.LoginExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrLoginSpace
}

// loginBase deriva el candidato: local-part del email, display name
// sanitizado, o el default genérico.
func loginBase(prof profile.Profile) string {
	if prof.Email != "" {
		if i := strings.IndexByte(prof.Email, '@'); i > 0 {
			if s := sanitizeLogin(prof.Email[:i]); s != "" {
				return s
			}
		}
	}
	if s := sanitizeLogin(prof.FullName()); s != "" {
		return s
	}
	return defaultLoginBase
}

// sanitizeLogin baja a minúsculas y deja sólo [a-z0-9._-].
func sanitizeLogin(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			// los espacios se descartan
		}
	}
	return b.String()
}
