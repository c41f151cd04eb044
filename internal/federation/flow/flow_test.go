package flow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edustack/campusid/internal/audit"
	"github.com/edustack/campusid/internal/federation/autherr"
	"github.com/edustack/campusid/internal/federation/oauthclient"
	"github.com/edustack/campusid/internal/federation/providers"
	"github.com/edustack/campusid/internal/federation/resolver"
	"github.com/edustack/campusid/internal/federation/state"
	statemem "github.com/edustack/campusid/internal/federation/state/memory"
	"github.com/edustack/campusid/internal/federation/tokens"
	"github.com/edustack/campusid/internal/security/secretbox"
	"github.com/edustack/campusid/internal/session"
	"github.com/edustack/campusid/internal/store/memory"
)

type fakeSession struct {
	id    string
	attrs map[string]string
}

func (s *fakeSession) ID() string { return s.id }
func (s *fakeSession) Attr(k string) (string, bool) {
	v, ok := s.attrs[k]
	return v, ok
}
func (s *fakeSession) SetAttr(k, v string) { s.attrs[k] = v }
func (s *fakeSession) DelAttr(k string)    { delete(s.attrs, k) }

// recordingSink captura los eventos de auditoría por canal.
type recordingSink struct {
	mu         sync.Mutex
	audits     []string
	violations []string
	failures   []string
}

func (s *recordingSink) LogAuditEvent(_ context.Context, event string, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, event)
}

func (s *recordingSink) LogSecurityViolation(_ context.Context, event string, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = append(s.violations, event)
}

func (s *recordingSink) LogFailedOperation(_ context.Context, op string, _ error, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, op)
}

type staticCreds struct{ redirect string }

func (c staticCreds) Credentials(provider string) (oauthclient.Credentials, bool) {
	if provider == "disabledprov" {
		return oauthclient.Credentials{}, false
	}
	return oauthclient.Credentials{
		ClientID:     "client-1",
		ClientSecret: "hush",
		RedirectURL:  c.redirect,
	}, true
}

// fakeProvider emula el IDP completo: token endpoint y profile endpoint.
func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant", "error_description": "bad code"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "prov-access",
			"refresh_token": "prov-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer prov-access", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":        "remote-77",
			"email":      "dana@campus.edu",
			"given_name": "Dana",
			"name":       "Dana Vega",
		})
	})
	return httptest.NewServer(mux)
}

func buildFlow(t *testing.T, srvURL string) (*Service, *memory.Store, *state.Validator) {
	t.Helper()
	return buildFlowWithSink(t, srvURL, audit.NewLogSink())
}

func buildFlowWithSink(t *testing.T, srvURL string, sink audit.Sink) (*Service, *memory.Store, *state.Validator) {
	t.Helper()

	google := providers.Google()
	prov := providers.Provider{
		Name:             "testprov",
		AuthorizeURL:     srvURL + "/auth",
		TokenURL:         srvURL + "/token",
		ProfileURL:       srvURL + "/me",
		RefreshSupported: true,
		DefaultScopes:    []string{"openid", "email"},
		MapProfile:       google.MapProfile,
	}
	reg := providers.NewRegistry(prov, providers.Provider{
		Name:       "disabledprov",
		MapProfile: google.MapProfile,
	})

	st := memory.New()
	states := state.New(statemem.New(time.Minute), time.Minute)
	client := oauthclient.New(nil)
	creds := staticCreds{redirect: "http://localhost/callback/testprov"}

	key := make([]byte, 32)
	cipher, err := secretbox.New(key, secretbox.AlgoAESGCM)
	require.NoError(t, err)

	mgr := tokens.New(st.Accounts(), reg, client, creds, cipher, sink, tokens.Config{})
	issuer, err := session.NewIssuer("campusid", "0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)

	svc := New(Deps{
		Registry: reg,
		Creds:    creds,
		States:   states,
		Client:   client,
		Resolver: resolver.New(st.Users(), st.Accounts()),
		Tokens:   mgr,
		Issuer:   issuer,
		Sink:     sink,
	})
	return svc, st, states
}

func TestLoginRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := fakeProvider(t)
	defer srv.Close()
	svc, st, _ := buildFlow(t, srv.URL)

	sess := &fakeSession{id: "browser-1", attrs: map[string]string{}}

	start, err := svc.BuildAuthorizationURL(ctx, "testprov", sess)
	require.NoError(t, err)
	require.Contains(t, start.AuthorizationURL, "client_id=client-1")
	require.Contains(t, start.AuthorizationURL, "state="+start.State)
	require.Contains(t, start.AuthorizationURL, "response_type=code")

	result, err := svc.HandleCallback(ctx, "testprov", sess, CallbackParams{
		Code:  "good-code",
		State: start.State,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.IDToken)
	require.Equal(t, "Bearer", result.TokenType)
	require.True(t, result.IsNewUser)
	require.True(t, result.AccountLinked)

	// Una cuenta federada persistida, con tokens cifrados
	acc, err := st.Accounts().GetByProvider(ctx, "testprov", "remote-77")
	require.NoError(t, err)
	require.True(t, acc.HasAccessToken())
	require.True(t, acc.HasRefreshToken())
	require.NotEqual(t, "prov-access", acc.AccessTokenEnc)

	user, err := st.Users().GetByID(ctx, acc.UserID)
	require.NoError(t, err)
	require.Equal(t, "dana", user.Login)
	require.Equal(t, "dana@campus.edu", user.Email)
}

func TestHandleCallback_SecondLoginReusesUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := fakeProvider(t)
	defer srv.Close()
	svc, _, _ := buildFlow(t, srv.URL)

	sess := &fakeSession{id: "browser-1", attrs: map[string]string{}}
	start, err := svc.BuildAuthorizationURL(ctx, "testprov", sess)
	require.NoError(t, err)
	first, err := svc.HandleCallback(ctx, "testprov", sess, CallbackParams{Code: "good-code", State: start.State})
	require.NoError(t, err)

	start2, err := svc.BuildAuthorizationURL(ctx, "testprov", sess)
	require.NoError(t, err)
	second, err := svc.HandleCallback(ctx, "testprov", sess, CallbackParams{Code: "good-code", State: start2.State})
	require.NoError(t, err)

	require.False(t, second.IsNewUser)
	require.False(t, second.AccountLinked)
	require.Equal(t, first.User.ID, second.User.ID)
}

func TestHandleCallback_EagerPreconditions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := fakeProvider(t)
	defer srv.Close()
	svc, _, _ := buildFlow(t, srv.URL)

	newSess := func() state.Session {
		return &fakeSession{id: "b", attrs: map[string]string{}}
	}

	t.Run("unknown provider", func(t *testing.T) {
		_, err := svc.HandleCallback(ctx, "myspace", newSess(), CallbackParams{Code: "x", State: "y"})
		require.Error(t, err)
		d := autherr.Classify(err)
		require.Equal(t, "provider_disabled", d.Code)
		require.Equal(t, http.StatusServiceUnavailable, d.HTTPStatus)
	})

	t.Run("disabled provider", func(t *testing.T) {
		_, err := svc.HandleCallback(ctx, "disabledprov", newSess(), CallbackParams{Code: "x", State: "y"})
		require.Error(t, err)
		require.Equal(t, "provider_disabled", autherr.Classify(err).Code)
	})

	t.Run("provider error param wins over missing code", func(t *testing.T) {
		_, err := svc.HandleCallback(ctx, "testprov", newSess(), CallbackParams{Error: "access_denied", ErrorDesc: "user said no"})
		require.Error(t, err)
		pe, ok := autherr.AsProviderError(err)
		require.True(t, ok)
		require.Equal(t, "access_denied", pe.Code)
	})

	t.Run("missing code", func(t *testing.T) {
		_, err := svc.HandleCallback(ctx, "testprov", newSess(), CallbackParams{State: "y"})
		require.Error(t, err)
		require.Equal(t, "invalid_request", autherr.Classify(err).Code)
	})

	t.Run("missing state", func(t *testing.T) {
		_, err := svc.HandleCallback(ctx, "testprov", newSess(), CallbackParams{Code: "x"})
		require.Error(t, err)
		require.Equal(t, "invalid_request", autherr.Classify(err).Code)
	})

	t.Run("forged state", func(t *testing.T) {
		sess := newSess()
		_, err := svc.BuildAuthorizationURL(ctx, "testprov", sess)
		require.NoError(t, err)
		_, err = svc.HandleCallback(ctx, "testprov", sess, CallbackParams{Code: "good-code", State: "forged"})
		require.Error(t, err)
		d := autherr.Classify(err)
		require.Equal(t, "invalid_request", d.Code)
		require.True(t, d.Suspicious)
	})

	t.Run("forged state audits one security violation", func(t *testing.T) {
		sink := &recordingSink{}
		svc, _, _ := buildFlowWithSink(t, srv.URL, sink)
		sess := newSess()
		_, err := svc.BuildAuthorizationURL(ctx, "testprov", sess)
		require.NoError(t, err)
		_, err = svc.HandleCallback(ctx, "testprov", sess, CallbackParams{Code: "good-code", State: "forged"})
		require.Error(t, err)

		// Un solo evento, por el canal de seguridad; nada duplicado en el
		// canal de operaciones fallidas.
		require.Equal(t, []string{"suspicious_auth_failure"}, sink.violations)
		require.Empty(t, sink.failures)
		require.Empty(t, sink.audits)
	})

	t.Run("exchange failure surfaces provider error", func(t *testing.T) {
		sess := newSess()
		start, err := svc.BuildAuthorizationURL(ctx, "testprov", sess)
		require.NoError(t, err)
		_, err = svc.HandleCallback(ctx, "testprov", sess, CallbackParams{Code: "bad-code", State: start.State})
		require.Error(t, err)
		pe, ok := autherr.AsProviderError(err)
		require.True(t, ok)
		require.Equal(t, "invalid_grant", pe.Code)
	})
}
