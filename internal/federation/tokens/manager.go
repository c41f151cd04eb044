// Package tokens manages the lifecycle of provider tokens: encrypted
// storage, proactive renewal, revocation and periodic sweeps.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edustack/campusid/internal/audit"
	"github.com/edustack/campusid/internal/federation/oauthclient"
	"github.com/edustack/campusid/internal/federation/providers"
	"github.com/edustack/campusid/internal/observability/logger"
	"github.com/edustack/campusid/internal/observability/metrics"
	"github.com/edustack/campusid/internal/security/secretbox"
	"github.com/edustack/campusid/internal/store/core"
)

// Defaults de política; configurables, no requisitos de protocolo.
const (
	DefaultTokenTTL         = time.Hour
	DefaultRefreshThreshold = 5 * time.Minute
	DefaultBatchConcurrency = 8
)

var (
	// ErrRefreshUnsupported: el provider no emite refresh tokens. Error
	// explícito, nunca una falla silenciosa.
	ErrRefreshUnsupported = errors.New("tokens: provider does not support refresh")
	// ErrNoRefreshToken: la cuenta no tiene refresh token almacenado.
	ErrNoRefreshToken = errors.New("tokens: no refresh token stored")
	// ErrRevokeUnsupported: el provider no tiene revoke endpoint.
	ErrRevokeUnsupported = errors.New("tokens: provider does not support revocation")
	// ErrNoToken: la cuenta no tiene access token almacenado.
	ErrNoToken = errors.New("tokens: no access token stored")
)

// Status de validación de un token almacenado.
type Status string

const (
	StatusValid        Status = "valid"
	StatusExpired      Status = "expired"
	StatusNeedsRefresh Status = "needs_refresh"
	StatusInvalid      Status = "invalid"
)

// Validation is the outcome of inspecting an account's stored token.
type Validation struct {
	Status             Status
	SecondsUntilExpiry int64
	Err                error
}

// CredentialsSource resuelve las credenciales OAuth configuradas por provider.
type CredentialsSource interface {
	Credentials(provider string) (oauthclient.Credentials, bool)
}

// Config del manager; los ceros toman defaults.
type Config struct {
	DefaultTTL       time.Duration
	RefreshThreshold time.Duration
	BatchConcurrency int
}

// Manager es el dueño del ciclo de vida de tokens. Stateless por llamada;
// todo estado vive en el repositorio.
type Manager struct {
	accounts core.AccountRepository
	registry *providers.Registry
	client   *oauthclient.Client
	creds    CredentialsSource
	cipher   *secretbox.Cipher
	sink     audit.Sink

	defaultTTL time.Duration
	threshold  time.Duration
	batchLimit int
	now        func() time.Time
}

func New(accounts core.AccountRepository, registry *providers.Registry, client *oauthclient.Client,
	creds CredentialsSource, cipher *secretbox.Cipher, sink audit.Sink, cfg Config) *Manager {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTokenTTL
	}
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = DefaultRefreshThreshold
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}
	return &Manager{
		accounts:   accounts,
		registry:   registry,
		client:     client,
		creds:      creds,
		cipher:     cipher,
		sink:       sink,
		defaultTTL: cfg.DefaultTTL,
		threshold:  cfg.RefreshThreshold,
		batchLimit: cfg.BatchConcurrency,
		now:        time.Now,
	}
}

// WithClock reemplaza el reloj (tests).
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// StoreTokens cifra y persiste los tokens de la cuenta. Sólo ciphertext
// llega al repositorio; los valores planos nunca se loguean. Si el provider
// omitió expires_in se aplica el TTL default.
func (m *Manager) StoreTokens(ctx context.Context, account *core.FederatedAccount, accessToken, refreshToken string, expiresIn int) error {
	accessEnc, err := m.cipher.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("tokens: encrypt access token: %w", err)
	}
	refreshEnc := ""
	if refreshToken != "" {
		refreshEnc, err = m.cipher.Encrypt(refreshToken)
		if err != nil {
			return fmt.Errorf("tokens: encrypt refresh token: %w", err)
		}
	}

	ttl := m.defaultTTL
	if expiresIn > 0 {
		ttl = time.Duration(expiresIn) * time.Second
	}
	now := m.now().UTC()
	expiresAt := now.Add(ttl)

	if err := m.accounts.UpdateTokens(ctx, account.ID, accessEnc, refreshEnc, expiresAt, now); err != nil {
		return err
	}
	account.AccessTokenEnc = accessEnc
	account.RefreshTokenEnc = refreshEnc
	account.TokenExpiresAt = expiresAt
	account.LastUsedAt = now
	return nil
}

// NeedsRefresh es true cuando el expiry cae dentro del umbral proactivo,
// aunque el token todavía no haya vencido.
func (m *Manager) NeedsRefresh(account *core.FederatedAccount) bool {
	if !account.HasAccessToken() || account.TokenExpiresAt.IsZero() {
		return false
	}
	return account.TokenExpiresAt.Sub(m.now()) <= m.threshold
}

// Validate inspecciona el token almacenado de la cuenta.
func (m *Manager) Validate(account *core.FederatedAccount) Validation {
	if !account.HasAccessToken() {
		return Validation{Status: StatusInvalid, Err: ErrNoToken}
	}
	now := m.now()
	until := account.TokenExpiresAt.Sub(now)
	v := Validation{SecondsUntilExpiry: int64(until.Seconds())}
	switch {
	case account.TokenExpiresAt.IsZero() || until <= 0:
		v.Status = StatusExpired
		v.SecondsUntilExpiry = 0
	case until <= m.threshold:
		v.Status = StatusNeedsRefresh
	default:
		v.Status = StatusValid
	}
	return v
}

// Refresh intenta renovar los tokens de la cuenta. Retorna false con un
// error explícito cuando el provider no soporta refresh o no hay refresh
// token. Ante una falla del provider los tokens almacenados quedan intactos;
// el caller decide si fuerza re-autenticación.
func (m *Manager) Refresh(ctx context.Context, account *core.FederatedAccount) (bool, error) {
	ok, err := m.refresh(ctx, account)
	metrics.TokenRefresh(account.Provider, refreshOutcome(ok, err))
	return ok, err
}

func refreshOutcome(ok bool, err error) string {
	switch {
	case ok:
		return "success"
	case errors.Is(err, ErrRefreshUnsupported), errors.Is(err, ErrNoRefreshToken):
		return "unsupported"
	default:
		return "failure"
	}
}

func (m *Manager) refresh(ctx context.Context, account *core.FederatedAccount) (bool, error) {
	prov, ok := m.registry.Get(account.Provider)
	if !ok {
		return false, fmt.Errorf("tokens: unknown provider %s", account.Provider)
	}
	if !prov.RefreshSupported {
		return false, ErrRefreshUnsupported
	}
	if !account.HasRefreshToken() {
		return false, ErrNoRefreshToken
	}
	creds, ok := m.creds.Credentials(account.Provider)
	if !ok {
		return false, fmt.Errorf("tokens: no credentials for provider %s", account.Provider)
	}

	refreshToken, err := m.cipher.Decrypt(account.RefreshTokenEnc)
	if err != nil {
		return false, fmt.Errorf("tokens: decrypt refresh token: %w", err)
	}

	tr, err := m.client.Refresh(ctx, prov, creds, refreshToken)
	if err != nil {
		return false, fmt.Errorf("tokens: refresh against %s: %w", account.Provider, err)
	}

	// Algunos providers rotan el refresh token; si no vino uno nuevo se
	// conserva el anterior.
	newRefresh := tr.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	if err := m.StoreTokens(ctx, account, tr.AccessToken, newRefresh, tr.ExpiresIn); err != nil {
		return false, err
	}

	logger.From(ctx).Info("tokens refreshed",
		logger.Component("tokens"),
		logger.Provider(account.Provider),
		logger.AccountID(account.ID),
	)
	return true, nil
}

// Revoke invalida el access token contra el provider y limpia los tokens
// almacenados sólo ante éxito confirmado.
func (m *Manager) Revoke(ctx context.Context, account *core.FederatedAccount) (bool, error) {
	prov, ok := m.registry.Get(account.Provider)
	if !ok {
		return false, fmt.Errorf("tokens: unknown provider %s", account.Provider)
	}
	if !prov.RevokeSupported() {
		return false, ErrRevokeUnsupported
	}
	if !account.HasAccessToken() {
		return false, ErrNoToken
	}

	accessToken, err := m.cipher.Decrypt(account.AccessTokenEnc)
	if err != nil {
		return false, fmt.Errorf("tokens: decrypt access token: %w", err)
	}
	if err := m.client.Revoke(ctx, prov, accessToken); err != nil {
		return false, err
	}

	if err := m.accounts.ClearTokens(ctx, account.ID); err != nil {
		return false, err
	}
	account.AccessTokenEnc = ""
	account.RefreshTokenEnc = ""
	account.TokenExpiresAt = time.Time{}

	m.sink.LogAuditEvent(ctx, "tokens_revoked", map[string]any{
		"provider":   account.Provider,
		"account_id": account.ID,
	})
	return true, nil
}

// BatchRefresh dispara un refresh por cuenta en paralelo (fan-out acotado
// por BatchConcurrency) y devuelve la cantidad de éxitos. La falla de una
// cuenta nunca aborta las demás.
func (m *Manager) BatchRefresh(ctx context.Context, accounts []core.FederatedAccount) int {
	results := make([]bool, len(accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.batchLimit)
	for i := range accounts {
		i := i
		g.Go(func() error {
			account := accounts[i]
			ok, err := m.Refresh(gctx, &account)
			if err != nil {
				m.sink.LogFailedOperation(gctx, "batch_refresh", err, map[string]any{
					"provider":   account.Provider,
					"account_id": account.ID,
				})
			}
			results[i] = ok
			return nil // nunca propagar: no abortar el grupo
		})
	}
	_ = g.Wait()

	count := 0
	for _, ok := range results {
		if ok {
			count++
		}
	}
	return count
}

// SweepExpired recorre cuentas con token ya vencido: intenta refresh y, si
// falla, limpia los tokens. Devuelve cuántas quedaron limpiadas.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	expired, err := m.accounts.ListExpired(ctx, m.now().UTC())
	if err != nil {
		return 0, err
	}

	cleared := 0
	for i := range expired {
		account := expired[i]
		ok, err := m.Refresh(ctx, &account)
		if ok {
			continue
		}
		if err != nil {
			m.sink.LogFailedOperation(ctx, "sweep_expired_refresh", err, map[string]any{
				"provider":   account.Provider,
				"account_id": account.ID,
			})
		}
		if cerr := m.accounts.ClearTokens(ctx, account.ID); cerr != nil {
			m.sink.LogFailedOperation(ctx, "sweep_expired_clear", cerr, map[string]any{
				"account_id": account.ID,
			})
			continue
		}
		cleared++
	}

	metrics.SweepAffected("expired", cleared)
	logger.From(ctx).Info("expired token sweep finished",
		logger.Component("tokens"),
		logger.Count(cleared),
	)
	return cleared, nil
}

// SweepUnused borra cuentas sin uso desde el cutoff: revoca (si se puede) y
// elimina la fila. Devuelve cuántas se borraron.
func (m *Manager) SweepUnused(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := m.now().UTC().AddDate(0, 0, -olderThanDays)
	stale, err := m.accounts.ListUnusedSince(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for i := range stale {
		account := stale[i]
		if _, err := m.Revoke(ctx, &account); err != nil &&
			!errors.Is(err, ErrRevokeUnsupported) && !errors.Is(err, ErrNoToken) {
			m.sink.LogFailedOperation(ctx, "sweep_unused_revoke", err, map[string]any{
				"provider":   account.Provider,
				"account_id": account.ID,
			})
		}
		if derr := m.accounts.Delete(ctx, account.ID); derr != nil {
			m.sink.LogFailedOperation(ctx, "sweep_unused_delete", derr, map[string]any{
				"account_id": account.ID,
			})
			continue
		}
		deleted++
	}

	metrics.SweepAffected("unused", deleted)
	m.sink.LogAuditEvent(ctx, "unused_accounts_swept", map[string]any{
		"count":       deleted,
		"cutoff_days": olderThanDays,
	})
	return deleted, nil
}
