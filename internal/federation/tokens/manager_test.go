package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edustack/campusid/internal/audit"
	"github.com/edustack/campusid/internal/federation/oauthclient"
	"github.com/edustack/campusid/internal/federation/providers"
	"github.com/edustack/campusid/internal/security/secretbox"
	"github.com/edustack/campusid/internal/store/core"
	"github.com/edustack/campusid/internal/store/memory"
)

type staticCreds struct{}

func (staticCreds) Credentials(provider string) (oauthclient.Credentials, bool) {
	return oauthclient.Credentials{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/callback/" + provider,
	}, true
}

func testCipher(t *testing.T) *secretbox.Cipher {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	c, err := secretbox.New(key, secretbox.AlgoAESGCM)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// newTestManager arma un manager contra el store en memoria y un registry
// cuyo provider "testprov" apunta al server HTTP dado.
func newTestManager(t *testing.T, tokenURL string, now func() time.Time) (*Manager, *memory.Store) {
	t.Helper()

	prov := providers.Provider{
		Name:             "testprov",
		AuthorizeURL:     "http://provider.test/auth",
		TokenURL:         tokenURL,
		ProfileURL:       "http://provider.test/me",
		RevokeURL:        "http://provider.test/revoke",
		RefreshSupported: true,
	}
	reg := providers.NewRegistry(prov, providers.GitHub())

	st := memory.New()
	m := New(st.Accounts(), reg, oauthclient.New(nil), staticCreds{}, testCipher(t), audit.NewLogSink(), Config{
		RefreshThreshold: 5 * time.Minute,
	})
	if now != nil {
		m.WithClock(now)
	}
	return m, st
}

func seedAccount(t *testing.T, st *memory.Store, provider string) *core.FederatedAccount {
	t.Helper()
	a := &core.FederatedAccount{
		ID:             "acc-" + provider,
		UserID:         "u1",
		Provider:       provider,
		ProviderUserID: "p1",
		LinkedAt:       time.Now().UTC(),
		LastUsedAt:     time.Now().UTC(),
	}
	if err := st.Accounts().Insert(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	return a
}

func TestStoreTokens_EncryptsAtRest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, st := newTestManager(t, "http://unused.test/token", nil)
	a := seedAccount(t, st, "testprov")

	if err := m.StoreTokens(ctx, a, "plain-access", "plain-refresh", 3600); err != nil {
		t.Fatalf("StoreTokens err: %v", err)
	}

	got, err := st.Accounts().GetByID(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessTokenEnc == "plain-access" || got.RefreshTokenEnc == "plain-refresh" {
		t.Fatal("tokens stored in plaintext")
	}
	if !secretbox.LooksEncrypted(got.AccessTokenEnc) {
		t.Fatalf("access token not in cipher format: %q", got.AccessTokenEnc)
	}
	if got.TokenExpiresAt.IsZero() {
		t.Fatal("expiry not set")
	}
}

func TestStoreTokens_DefaultTTLWhenMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m, st := newTestManager(t, "http://unused.test/token", func() time.Time { return now })
	a := seedAccount(t, st, "testprov")

	// expires_in ausente => TTL default (1h)
	if err := m.StoreTokens(ctx, a, "tok", "", 0); err != nil {
		t.Fatal(err)
	}
	if want := now.Add(DefaultTokenTTL); !a.TokenExpiresAt.Equal(want) {
		t.Fatalf("expiry = %v, want %v", a.TokenExpiresAt, want)
	}
}

func TestNeedsRefresh_ThresholdBoundary(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m, _ := newTestManager(t, "http://unused.test/token", func() time.Time { return now })

	a := &core.FederatedAccount{AccessTokenEnc: "x|y"}

	// Un segundo adentro del umbral => refresh
	a.TokenExpiresAt = now.Add(5*time.Minute - time.Second)
	if !m.NeedsRefresh(a) {
		t.Fatal("inside threshold must need refresh")
	}
	// Un segundo afuera => todavía no
	a.TokenExpiresAt = now.Add(5*time.Minute + time.Second)
	if m.NeedsRefresh(a) {
		t.Fatal("outside threshold must not need refresh")
	}
	// Sin token no hay nada que refrescar
	if m.NeedsRefresh(&core.FederatedAccount{TokenExpiresAt: now.Add(time.Minute)}) {
		t.Fatal("account without token must not need refresh")
	}
}

func TestValidate_Statuses(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m, _ := newTestManager(t, "http://unused.test/token", func() time.Time { return now })

	a := &core.FederatedAccount{AccessTokenEnc: "x|y", TokenExpiresAt: now.Add(time.Hour)}
	if v := m.Validate(a); v.Status != StatusValid || v.SecondsUntilExpiry != 3600 {
		t.Fatalf("valid: %+v", v)
	}

	a.TokenExpiresAt = now.Add(2 * time.Minute)
	if v := m.Validate(a); v.Status != StatusNeedsRefresh {
		t.Fatalf("needs_refresh: %+v", v)
	}

	a.TokenExpiresAt = now.Add(-time.Minute)
	if v := m.Validate(a); v.Status != StatusExpired || v.SecondsUntilExpiry != 0 {
		t.Fatalf("expired: %+v", v)
	}

	if v := m.Validate(&core.FederatedAccount{}); v.Status != StatusInvalid {
		t.Fatalf("invalid: %+v", v)
	}
}

func TestRefresh_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("refresh_token") != "old-refresh" {
			t.Errorf("refresh_token = %q", r.PostForm.Get("refresh_token"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "new-access",
			"expires_in":   1800,
			"token_type":   "Bearer",
		})
	}))
	defer srv.Close()

	m, st := newTestManager(t, srv.URL, nil)
	a := seedAccount(t, st, "testprov")
	if err := m.StoreTokens(ctx, a, "old-access", "old-refresh", 60); err != nil {
		t.Fatal(err)
	}

	ok, err := m.Refresh(ctx, a)
	if err != nil || !ok {
		t.Fatalf("Refresh = %v, %v", ok, err)
	}

	got, err := st.Accounts().GetByID(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.HasRefreshToken() {
		// el provider no rotó el refresh token: se conserva el anterior
		t.Fatal("refresh token lost after rotation-less refresh")
	}
}

func TestRefresh_UnsupportedProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, st := newTestManager(t, "http://unused.test/token", nil)

	a := seedAccount(t, st, "github")
	if err := m.StoreTokens(ctx, a, "tok", "", 60); err != nil {
		t.Fatal(err)
	}

	ok, err := m.Refresh(ctx, a)
	if ok {
		t.Fatal("github refresh must not succeed")
	}
	if !errors.Is(err, ErrRefreshUnsupported) {
		t.Fatalf("err = %v, want ErrRefreshUnsupported", err)
	}
}

func TestRefresh_FailureLeavesTokensIntact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
	}))
	defer srv.Close()

	m, st := newTestManager(t, srv.URL, nil)
	a := seedAccount(t, st, "testprov")
	if err := m.StoreTokens(ctx, a, "acc", "ref", 60); err != nil {
		t.Fatal(err)
	}
	before, _ := st.Accounts().GetByID(ctx, a.ID)

	ok, err := m.Refresh(ctx, a)
	if ok || err == nil {
		t.Fatalf("Refresh = %v, %v; want failure", ok, err)
	}

	after, _ := st.Accounts().GetByID(ctx, a.ID)
	if after.AccessTokenEnc != before.AccessTokenEnc || after.RefreshTokenEnc != before.RefreshTokenEnc {
		t.Fatal("stored tokens must stay intact on refresh failure")
	}
}

func TestBatchRefresh_CountsSuccesses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "fresh", "expires_in": 600})
	}))
	defer srv.Close()

	m, st := newTestManager(t, srv.URL, nil)

	good := seedAccount(t, st, "testprov")
	if err := m.StoreTokens(ctx, good, "a", "r", 60); err != nil {
		t.Fatal(err)
	}
	// github no soporta refresh: cuenta como falla sin abortar el batch
	bad := seedAccount(t, st, "github")
	if err := m.StoreTokens(ctx, bad, "a", "", 60); err != nil {
		t.Fatal(err)
	}

	n := m.BatchRefresh(ctx, []core.FederatedAccount{*good, *bad})
	if n != 1 {
		t.Fatalf("BatchRefresh = %d, want 1", n)
	}
}

func TestSweepExpired_ClearsOnRefreshFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
	}))
	defer srv.Close()

	now := time.Now().UTC()
	m, st := newTestManager(t, srv.URL, func() time.Time { return now })

	a := seedAccount(t, st, "testprov")
	if err := m.StoreTokens(ctx, a, "acc", "ref", 60); err != nil {
		t.Fatal(err)
	}

	// avanzar el reloj más allá del expiry
	now = now.Add(2 * time.Minute)

	cleared, err := m.SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cleared != 1 {
		t.Fatalf("cleared = %d, want 1", cleared)
	}

	got, _ := st.Accounts().GetByID(ctx, a.ID)
	if got.HasAccessToken() || got.HasRefreshToken() {
		t.Fatal("tokens must be cleared after failed refresh")
	}
}

func TestSweepUnused_DeletesStaleAccounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now().UTC()
	m, st := newTestManager(t, "http://unused.test/token", func() time.Time { return now })

	stale := &core.FederatedAccount{
		ID: "stale", UserID: "u1", Provider: "github", ProviderUserID: "p9",
		LinkedAt: now.AddDate(0, 0, -200), LastUsedAt: now.AddDate(0, 0, -120),
	}
	fresh := &core.FederatedAccount{
		ID: "fresh", UserID: "u2", Provider: "github", ProviderUserID: "p10",
		LinkedAt: now, LastUsedAt: now,
	}
	if err := st.Accounts().Insert(ctx, stale); err != nil {
		t.Fatal(err)
	}
	if err := st.Accounts().Insert(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	deleted, err := m.SweepUnused(ctx, 90)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if _, err := st.Accounts().GetByID(ctx, "stale"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("stale account should be gone, err = %v", err)
	}
	if _, err := st.Accounts().GetByID(ctx, "fresh"); err != nil {
		t.Fatal("fresh account must survive the sweep")
	}
}
