package flow

import (
	"strings"

	"github.com/edustack/campusid/internal/config"
	"github.com/edustack/campusid/internal/federation/oauthclient"
)

// ConfigCredentials resuelve credenciales OAuth desde la configuración.
// Implementa tokens.CredentialsSource.
type ConfigCredentials struct {
	cfg *config.Config
}

func NewConfigCredentials(cfg *config.Config) *ConfigCredentials {
	return &ConfigCredentials{cfg: cfg}
}

// Credentials devuelve las credenciales del provider, o false si no está
// habilitado. Un redirect_url vacío se deriva de la base URL pública.
func (c *ConfigCredentials) Credentials(provider string) (oauthclient.Credentials, bool) {
	pc := c.cfg.Provider(provider)
	if !pc.Enabled {
		return oauthclient.Credentials{}, false
	}
	redirect := pc.RedirectURL
	if redirect == "" {
		redirect = strings.TrimRight(c.cfg.Server.BaseURL, "/") + "/callback/" + strings.ToLower(provider)
	}
	return oauthclient.Credentials{
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		RedirectURL:  redirect,
		Scopes:       pc.Scopes,
	}, true
}
