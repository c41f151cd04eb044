package core

import "time"

// User es el usuario local de la plataforma educativa. Este servicio sólo
// lo crea/consulta a través de UserRepository; el resto de su ciclo de vida
// (perfil, cursos, etc.) es responsabilidad de otros servicios.
type User struct {
	ID          string
	Login       string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// FederatedAccount vincula un usuario local con la identidad de un provider
// externo. (Provider, ProviderUserID) es único; la cuenta pertenece siempre a
// exactamente un usuario y se borra al desvincular o en un sweep.
type FederatedAccount struct {
	ID               string
	UserID           string
	Provider         string
	ProviderUserID   string
	ProviderUsername string

	// Tokens cifrados en reposo (secretbox). Nunca se loguean.
	AccessTokenEnc  string
	RefreshTokenEnc string
	TokenExpiresAt  time.Time

	LinkedAt   time.Time
	LastUsedAt time.Time

	// ProfileSnapshot es el perfil canónico serializado, sólo diagnóstico.
	ProfileSnapshot []byte
}

// HasAccessToken indica si hay un access token almacenado.
func (a *FederatedAccount) HasAccessToken() bool { return a != nil && a.AccessTokenEnc != "" }

// HasRefreshToken indica si hay un refresh token almacenado.
func (a *FederatedAccount) HasRefreshToken() bool { return a != nil && a.RefreshTokenEnc != "" }
