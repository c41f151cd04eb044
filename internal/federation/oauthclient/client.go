// Package oauthclient implements the wire-level OAuth 2.0 calls against a
// provider registry entry: authorize URL building, code exchange, token
// refresh, revocation and raw profile fetch.
//
// Calls are synchronous, bounded by the caller's context and the client
// timeout. No retries at this layer: a failed exchange is reported upward
// immediately.
package oauthclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edustack/campusid/internal/federation/autherr"
	"github.com/edustack/campusid/internal/federation/providers"
)

const defaultTimeout = 10 * time.Second

// Credentials son las credenciales OAuth configuradas para un provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// TokenResponse is the provider's token endpoint response (exchange or refresh).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`

	Error     string `json:"error,omitempty"`
	ErrorDesc string `json:"error_description,omitempty"`
}

// Client hace las llamadas HTTP contra los endpoints del provider.
type Client struct {
	http *http.Client
}

// New crea un Client. httpClient nil usa uno con timeout de 10s.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{http: httpClient}
}

// AuthorizationURL builds the provider's authorize URL with client id,
// redirect URI, scope, response_type=code, state, and any extra parameters
// from the registry entry.
func (c *Client) AuthorizationURL(p providers.Provider, creds Credentials, state string) (string, error) {
	u, err := url.Parse(p.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("oauthclient: authorize url: %w", err)
	}
	scopes := creds.Scopes
	if len(scopes) == 0 {
		scopes = p.DefaultScopes
	}

	q := u.Query()
	q.Set("client_id", creds.ClientID)
	q.Set("redirect_uri", creds.RedirectURL)
	q.Set("scope", strings.Join(scopes, " "))
	q.Set("response_type", "code")
	q.Set("state", state)
	for k, v := range p.ExtraAuthParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeCode canjea un authorization code por tokens
// (POST form-encoded, grant_type=authorization_code).
func (c *Client) ExchangeCode(ctx context.Context, p providers.Provider, creds Credentials, code string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", creds.RedirectURL)

	return c.postToken(ctx, p, form)
}

// Refresh canjea un refresh token por tokens nuevos
// (POST form-encoded, grant_type=refresh_token).
func (c *Client) Refresh(ctx context.Context, p providers.Provider, creds Credentials, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	form.Set("refresh_token", refreshToken)

	return c.postToken(ctx, p, form)
}

// Revoke invalida el access token contra el revoke endpoint del provider.
func (c *Client) Revoke(ctx context.Context, p providers.Provider, accessToken string) error {
	if !p.RevokeSupported() {
		return fmt.Errorf("oauthclient: %s does not support revocation", p.Name)
	}

	form := url.Values{}
	form.Set("token", accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// Algunos providers (Facebook) exigen el token como Bearer en el revoke.
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("oauthclient: revoke failed: status %d", resp.StatusCode)
	}
	return nil
}

// FetchProfile obtiene el perfil crudo con el access token.
func (c *Client) FetchProfile(ctx context.Context, p providers.Provider, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ProfileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauthclient: profile fetch failed: status %d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("oauthclient: decode profile: %w", err)
	}
	return raw, nil
}

func (c *Client) postToken(ctx context.Context, p providers.Provider, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("oauthclient: decode token response: %w", err)
	}

	if tr.Error != "" {
		return nil, &autherr.ProviderError{Provider: p.Name, Code: tr.Error, Description: tr.ErrorDesc}
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("oauthclient: no access_token in response")
	}
	return &tr, nil
}
