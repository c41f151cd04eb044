// Package providers holds the static table of supported identity providers.
// Everything provider-specific — endpoints, capabilities, raw-profile field
// mapping — is data in this table. Adding a provider is a new table entry,
// not a new branch.
package providers

import (
	"sort"
	"strings"

	"github.com/edustack/campusid/internal/federation/profile"
)

// FieldMapper translates a provider's raw profile payload into the
// canonical shape. Pure function, one per table entry.
type FieldMapper func(raw map[string]any) profile.Profile

// Provider is one entry of the registry table.
type Provider struct {
	Name         string
	AuthorizeURL string
	TokenURL     string
	ProfileURL   string

	// RevokeURL vacío => el provider no soporta revocación.
	RevokeURL string

	// RefreshSupported false => refresh() es un error explícito, no un no-op.
	RefreshSupported bool

	DefaultScopes []string

	// ExtraAuthParams se agregan tal cual a la authorize URL.
	ExtraAuthParams map[string]string

	MapProfile FieldMapper
}

// RevokeSupported deriva la capacidad de la tabla, no de un switch.
func (p Provider) RevokeSupported() bool { return p.RevokeURL != "" }

// Registry permite lookup por nombre. No ejecuta lógica de auth.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry registers the given providers by name (names must be unique).
func NewRegistry(list ...Provider) *Registry {
	m := make(map[string]Provider, len(list))
	for _, p := range list {
		m[strings.ToLower(p.Name)] = p
	}
	return &Registry{providers: m}
}

// Get returns the provider entry by name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Names lista los providers registrados, ordenados.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Default returns the shipped provider table: google, facebook and github.
// GitHub is the one entry without refresh or revoke support — expressed as
// data (RefreshSupported=false, empty RevokeURL).
func Default() *Registry {
	return NewRegistry(Google(), Facebook(), GitHub())
}

// Google OIDC endpoints. access_type=offline + prompt=consent piden refresh
// token en el primer consentimiento.
func Google() Provider {
	return Provider{
		Name:             "google",
		AuthorizeURL:     "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:         "https://oauth2.googleapis.com/token",
		ProfileURL:       "https://openidconnect.googleapis.com/v1/userinfo",
		RevokeURL:        "https://oauth2.googleapis.com/revoke",
		RefreshSupported: true,
		DefaultScopes:    []string{"openid", "email", "profile"},
		ExtraAuthParams: map[string]string{
			"access_type": "offline",
			"prompt":      "consent",
		},
		MapProfile: mapGoogleProfile,
	}
}

// Facebook Graph API endpoints.
func Facebook() Provider {
	return Provider{
		Name:             "facebook",
		AuthorizeURL:     "https://www.facebook.com/v19.0/dialog/oauth",
		TokenURL:         "https://graph.facebook.com/v19.0/oauth/access_token",
		ProfileURL:       "https://graph.facebook.com/v19.0/me?fields=id,email,first_name,last_name,name,picture",
		RevokeURL:        "https://graph.facebook.com/v19.0/me/permissions",
		RefreshSupported: true,
		DefaultScopes:    []string{"email", "public_profile"},
		MapProfile:       mapFacebookProfile,
	}
}

// GitHub OAuth endpoints. Sin refresh tokens ni endpoint de revoke.
func GitHub() Provider {
	return Provider{
		Name:             "github",
		AuthorizeURL:     "https://github.com/login/oauth/authorize",
		TokenURL:         "https://github.com/login/oauth/access_token",
		ProfileURL:       "https://api.github.com/user",
		RefreshSupported: false,
		DefaultScopes:    []string{"user:email", "read:user"},
		ExtraAuthParams: map[string]string{
			"allow_signup": "true",
		},
		MapProfile: mapGitHubProfile,
	}
}
