// Package flow orchestrates the federated login round trip: building the
// authorization redirect and handling the provider callback. The orchestrator
// owns sequencing and audit only; protocol calls, state handling, profile
// mapping and account resolution live in their own packages.
package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/edustack/campusid/internal/audit"
	"github.com/edustack/campusid/internal/federation/autherr"
	"github.com/edustack/campusid/internal/federation/oauthclient"
	"github.com/edustack/campusid/internal/federation/providers"
	"github.com/edustack/campusid/internal/federation/resolver"
	"github.com/edustack/campusid/internal/federation/state"
	"github.com/edustack/campusid/internal/federation/tokens"
	"github.com/edustack/campusid/internal/observability/logger"
	"github.com/edustack/campusid/internal/observability/metrics"
	"github.com/edustack/campusid/internal/store/core"
	"github.com/edustack/campusid/internal/util"
)

// TokenIssuer mints the local credential handed back after a successful
// login. Implemented by the session JWT minter.
type TokenIssuer interface {
	Issue(user *core.User) (token string, expiresIn int, err error)
}

// AuthStart es el resultado de iniciar un login.
type AuthStart struct {
	AuthorizationURL string
	State            string
	Provider         string
}

// AuthResult es el resultado de un callback exitoso.
type AuthResult struct {
	IDToken   string
	TokenType string
	ExpiresIn int

	User          *core.User
	Account       *core.FederatedAccount
	IsNewUser     bool
	AccountLinked bool
	Provider      string
}

// CallbackParams son los query params crudos del callback del provider.
type CallbackParams struct {
	Code      string
	State     string
	Error     string
	ErrorDesc string
}

// Deps son las dependencias del orquestador.
type Deps struct {
	Registry *providers.Registry
	Creds    tokens.CredentialsSource
	States   *state.Validator
	Client   *oauthclient.Client
	Resolver *resolver.Resolver
	Tokens   *tokens.Manager
	Issuer   TokenIssuer
	Sink     audit.Sink
}

// Service implementa el flujo de login federado.
type Service struct {
	deps Deps
}

func New(deps Deps) *Service {
	return &Service{deps: deps}
}

// BuildAuthorizationURL arma la redirect URL del provider con un state
// recién generado y registrado contra la sesión.
func (s *Service) BuildAuthorizationURL(ctx context.Context, providerName string, sess state.Session) (*AuthStart, error) {
	prov, creds, err := s.enabledProvider(providerName)
	if err != nil {
		return nil, err
	}

	stateValue, err := s.deps.States.Generate(sess)
	if err != nil {
		return nil, fmt.Errorf("flow: generate state: %w", err)
	}

	authURL, err := s.deps.Client.AuthorizationURL(prov, creds, stateValue)
	if err != nil {
		return nil, err
	}

	logger.From(ctx).Info("authorization url issued",
		logger.Component("flow"),
		logger.Provider(prov.Name),
		logger.SessionID(sess.ID()),
	)
	return &AuthStart{AuthorizationURL: authURL, State: stateValue, Provider: prov.Name}, nil
}

// HandleCallback procesa el retorno del provider. Las precondiciones se
// rechazan con avidez y en orden fijo: provider desconocido o deshabilitado,
// error nativo del provider, code/state faltante, state inválido. Recién
// después se gasta red en el exchange.
func (s *Service) HandleCallback(ctx context.Context, providerName string, sess state.Session, params CallbackParams) (*AuthResult, error) {
	prov, creds, err := s.enabledProvider(providerName)
	if err != nil {
		return nil, s.fail(ctx, providerName, err)
	}

	if params.Error != "" {
		err := &autherr.ProviderError{Provider: prov.Name, Code: params.Error, Description: params.ErrorDesc}
		return nil, s.fail(ctx, prov.Name, err)
	}
	if params.Code == "" {
		return nil, s.fail(ctx, prov.Name, autherr.Protocol(prov.Name, "invalid_request", "missing authorization code"))
	}
	if params.State == "" {
		return nil, s.fail(ctx, prov.Name, autherr.Protocol(prov.Name, "invalid_request", "missing state parameter"))
	}

	if !s.deps.States.Validate(sess, params.State) {
		// fail clasifica el mensaje como sospechoso y lo rutea al canal de
		// violaciones de seguridad; acá sólo se cuenta el rechazo.
		metrics.StateRejected()
		return nil, s.fail(ctx, prov.Name, autherr.Protocol(prov.Name, "invalid_request", "state validation failed"))
	}

	tr, err := s.deps.Client.ExchangeCode(ctx, prov, creds, params.Code)
	if err != nil {
		logger.From(ctx).Debug("code exchange failed",
			logger.Component("flow"),
			logger.Provider(prov.Name),
			logger.String("code", util.MaskToken(params.Code)),
		)
		return nil, s.fail(ctx, prov.Name, err)
	}

	raw, err := s.deps.Client.FetchProfile(ctx, prov, tr.AccessToken)
	if err != nil {
		return nil, s.fail(ctx, prov.Name, err)
	}
	prof := prov.MapProfile(raw)
	if prof.ID == "" {
		err := autherr.Protocol(prov.Name, "server_error", "provider profile without user id")
		return nil, s.fail(ctx, prov.Name, err)
	}

	res, err := s.deps.Resolver.Resolve(ctx, prov.Name, prof)
	if err != nil {
		return nil, s.fail(ctx, prov.Name, err)
	}

	if err := s.deps.Tokens.StoreTokens(ctx, res.Account, tr.AccessToken, tr.RefreshToken, tr.ExpiresIn); err != nil {
		return nil, s.fail(ctx, prov.Name, err)
	}

	idToken, expiresIn, err := s.deps.Issuer.Issue(res.User)
	if err != nil {
		return nil, s.fail(ctx, prov.Name, fmt.Errorf("flow: issue id token: %w", err))
	}

	metrics.Login(prov.Name, "success")
	s.deps.Sink.LogAuditEvent(ctx, "federated_login", map[string]any{
		"provider":       prov.Name,
		"user_id":        res.User.ID,
		"account_id":     res.Account.ID,
		"is_new_user":    res.IsNewUser,
		"account_linked": res.AccountLinked,
	})
	logger.From(ctx).Info("federated login completed",
		logger.Component("flow"),
		logger.Provider(prov.Name),
		logger.UserID(res.User.ID),
		logger.Bool("is_new_user", res.IsNewUser),
	)

	return &AuthResult{
		IDToken:       idToken,
		TokenType:     "Bearer",
		ExpiresIn:     expiresIn,
		User:          res.User,
		Account:       res.Account,
		IsNewUser:     res.IsNewUser,
		AccountLinked: res.AccountLinked,
		Provider:      prov.Name,
	}, nil
}

// enabledProvider busca el provider en la tabla y verifica que esté
// habilitado por configuración.
func (s *Service) enabledProvider(name string) (providers.Provider, oauthclient.Credentials, error) {
	prov, ok := s.deps.Registry.Get(name)
	if !ok {
		return providers.Provider{}, oauthclient.Credentials{}, autherr.Disabled(name)
	}
	creds, ok := s.deps.Creds.Credentials(prov.Name)
	if !ok {
		return providers.Provider{}, oauthclient.Credentials{}, autherr.Disabled(prov.Name)
	}
	return prov, creds, nil
}

// fail clasifica, contabiliza y audita una falla antes de devolverla.
func (s *Service) fail(ctx context.Context, provider string, err error) error {
	d := autherr.Classify(err)
	metrics.Login(provider, "failure")
	metrics.LoginFailure(provider, d.Code)

	fields := map[string]any{
		"provider": provider,
		"code":     d.Code,
		"ts":       time.Now().UTC().Format(time.RFC3339Nano),
	}
	if d.Suspicious {
		s.deps.Sink.LogSecurityViolation(ctx, "suspicious_auth_failure", fields)
	} else {
		s.deps.Sink.LogFailedOperation(ctx, "federated_login", err, fields)
	}
	return err
}
