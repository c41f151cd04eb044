// Package dto define los shapes de request/response de la API pública.
package dto

// AuthorizeResponse es la respuesta de GET /authorize/{provider}.
type AuthorizeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
	Provider         string `json:"provider"`
}

// CallbackResponse es la respuesta exitosa de GET /callback/{provider}.
type CallbackResponse struct {
	IDToken   string `json:"id_token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`

	IsNewUser     bool `json:"is_new_user"`
	AccountLinked bool `json:"account_linked"`
}

// ProviderInfo describe un provider habilitado.
type ProviderInfo struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// ProvidersResponse es la respuesta de GET /providers.
type ProvidersResponse struct {
	Providers []ProviderInfo `json:"providers"`
}

// HealthResponse es la respuesta de GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage,omitempty"`
}
