package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edustack/campusid/internal/config"
	"github.com/edustack/campusid/internal/http/helpers"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Session.SigningKey = "0123456789abcdef0123456789abcdef"
	cfg.Security.MasterKey = base64.StdEncoding.EncodeToString(make([]byte, 32))
	cfg.Providers["google"] = config.ProviderConfig{
		Enabled:  true,
		ClientID: "cid",
	}
	return cfg
}

func TestBuild_ServesSurface(t *testing.T) {
	c, err := Build(context.Background(), testConfig())
	require.NoError(t, err)
	defer c.Close()

	srv := httptest.NewServer(c.Handler)
	defer srv.Close()

	// healthz contra el store en memoria
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// providers lista la tabla con el flag de config
	resp, err = http.Get(srv.URL + "/providers")
	require.NoError(t, err)
	defer resp.Body.Close()
	var pl struct {
		Providers []struct {
			Name    string `json:"name"`
			Enabled bool   `json:"enabled"`
		} `json:"providers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pl))
	require.Len(t, pl.Providers, 3)
	byName := map[string]bool{}
	for _, p := range pl.Providers {
		byName[p.Name] = p.Enabled
	}
	require.True(t, byName["google"])
	require.False(t, byName["github"])
}

func TestAuthorize_UnknownProviderEnvelope(t *testing.T) {
	c, err := Build(context.Background(), testConfig())
	require.NoError(t, err)
	defer c.Close()

	srv := httptest.NewServer(c.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/authorize/myspace")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var env helpers.ErrorEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.Equal(t, "provider_disabled", env.Error)
	require.Equal(t, http.StatusServiceUnavailable, env.ErrorCode)
	require.Equal(t, "/authorize/myspace", env.Path)
	require.NotEmpty(t, env.Timestamp)
}

func TestAuthorize_EnabledProviderIssuesState(t *testing.T) {
	c, err := Build(context.Background(), testConfig())
	require.NoError(t, err)
	defer c.Close()

	srv := httptest.NewServer(c.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/authorize/google")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		AuthorizationURL string `json:"authorization_url"`
		State            string `json:"state"`
		Provider         string `json:"provider"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "google", body.Provider)
	require.NotEmpty(t, body.State)
	require.Contains(t, body.AuthorizationURL, "accounts.google.com")
	require.Contains(t, body.AuthorizationURL, "state=")

	// la sesión de navegador quedó establecida
	var found bool
	for _, ck := range resp.Cookies() {
		if ck.Name == "cid_session" && ck.Value != "" {
			found = true
		}
	}
	require.True(t, found, "session cookie missing")
}
