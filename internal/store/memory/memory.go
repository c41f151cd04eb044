// Package memory implementa los repositorios en memoria.
// Usado en tests y en desarrollo sin Postgres.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/edustack/campusid/internal/store/core"
)

type Store struct {
	mu       sync.RWMutex
	users    map[string]*core.User             // id -> user
	accounts map[string]*core.FederatedAccount // id -> account
}

func New() *Store {
	return &Store{
		users:    map[string]*core.User{},
		accounts: map[string]*core.FederatedAccount{},
	}
}

func (s *Store) Users() core.UserRepository       { return (*userRepo)(s) }
func (s *Store) Accounts() core.AccountRepository { return (*accountRepo)(s) }
func (s *Store) Ping(context.Context) error       { return nil }
func (s *Store) Close()                           {}

// ────────────────────────── users ──────────────────────────

type userRepo Store

func (r *userRepo) GetByID(_ context.Context, id string) (*core.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*core.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) && u.Email != "" {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *userRepo) LoginExists(_ context.Context, login string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Login, login) {
			return true, nil
		}
	}
	return false, nil
}

func (r *userRepo) Create(_ context.Context, u *core.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Login, u.Login) {
			return core.ErrConflict
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

// ──────────────────────── accounts ─────────────────────────

type accountRepo Store

func (r *accountRepo) GetByProvider(_ context.Context, provider, providerUserID string) (*core.FederatedAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.Provider == provider && a.ProviderUserID == providerUserID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *accountRepo) GetByID(_ context.Context, id string) (*core.FederatedAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *accountRepo) ListByUser(_ context.Context, userID string) ([]core.FederatedAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.FederatedAccount
	for _, a := range r.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *accountRepo) Insert(_ context.Context, a *core.FederatedAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Provider == a.Provider && existing.ProviderUserID == a.ProviderUserID {
			return core.ErrConflict
		}
	}
	now := time.Now().UTC()
	if a.LinkedAt.IsZero() {
		a.LinkedAt = now
	}
	if a.LastUsedAt.IsZero() {
		a.LastUsedAt = now
	}
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *accountRepo) Update(_ context.Context, a *core.FederatedAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.accounts[a.ID]
	if !ok {
		return core.ErrNotFound
	}
	existing.ProviderUsername = a.ProviderUsername
	existing.ProfileSnapshot = a.ProfileSnapshot
	existing.LastUsedAt = a.LastUsedAt
	return nil
}

func (r *accountRepo) UpdateTokens(_ context.Context, id, accessEnc, refreshEnc string, expiresAt, lastUsedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return core.ErrNotFound
	}
	a.AccessTokenEnc = accessEnc
	a.RefreshTokenEnc = refreshEnc
	a.TokenExpiresAt = expiresAt
	a.LastUsedAt = lastUsedAt
	return nil
}

func (r *accountRepo) ClearTokens(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return core.ErrNotFound
	}
	a.AccessTokenEnc = ""
	a.RefreshTokenEnc = ""
	a.TokenExpiresAt = time.Time{}
	return nil
}

func (r *accountRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[id]; !ok {
		return core.ErrNotFound
	}
	delete(r.accounts, id)
	return nil
}

func (r *accountRepo) ListExpired(_ context.Context, now time.Time) ([]core.FederatedAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.FederatedAccount
	for _, a := range r.accounts {
		if a.AccessTokenEnc != "" && !a.TokenExpiresAt.IsZero() && a.TokenExpiresAt.Before(now) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *accountRepo) ListUnusedSince(_ context.Context, cutoff time.Time) ([]core.FederatedAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.FederatedAccount
	for _, a := range r.accounts {
		if a.LastUsedAt.Before(cutoff) {
			out = append(out, *a)
		}
	}
	return out, nil
}
