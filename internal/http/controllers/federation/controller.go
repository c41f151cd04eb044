// Package federation exposes the login flow over HTTP: authorization start,
// provider callback and the enabled-provider listing.
package federation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edustack/campusid/internal/config"
	"github.com/edustack/campusid/internal/federation/flow"
	"github.com/edustack/campusid/internal/federation/providers"
	"github.com/edustack/campusid/internal/federation/state"
	"github.com/edustack/campusid/internal/http/dto"
	"github.com/edustack/campusid/internal/http/helpers"
	"github.com/edustack/campusid/internal/session"
)

// Deps son las dependencias del controller.
type Deps struct {
	Flow     *flow.Service
	Sessions *session.Manager
	Registry *providers.Registry
	Config   *config.Config
}

// Controller maneja los endpoints del flujo federado.
type Controller struct {
	deps Deps
}

func New(deps Deps) *Controller {
	return &Controller{deps: deps}
}

// Authorize arranca el flujo: crea (o recupera) la sesión de navegador,
// genera el state y devuelve la redirect URL del provider.
//
//	GET /authorize/{provider}
func (c *Controller) Authorize(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	sess, err := c.deps.Sessions.Ensure(w, r)
	if err != nil {
		helpers.WriteError(w, r, http.StatusInternalServerError, "server_error", "could not establish session")
		return
	}

	start, err := c.deps.Flow.BuildAuthorizationURL(r.Context(), provider, sess)
	if err != nil {
		helpers.WriteAuthError(w, r, provider, err)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.AuthorizeResponse{
		AuthorizationURL: start.AuthorizationURL,
		State:            start.State,
		Provider:         start.Provider,
	})
}

// Callback procesa el retorno del provider. La sesión puede no estar (el
// navegador pudo perder la cookie); el flujo tiene un camino de validación
// de state que no depende de ella.
//
//	GET /callback/{provider}?code&state&error?&error_description?
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	q := r.URL.Query()

	// Interface nil explícito: un *Session nil adentro de la interface no es
	// lo mismo que una interface nil.
	var flowSess state.Session
	if sess := c.deps.Sessions.Lookup(r); sess != nil {
		flowSess = sess
	}

	result, err := c.deps.Flow.HandleCallback(r.Context(), provider, flowSess, flow.CallbackParams{
		Code:      q.Get("code"),
		State:     q.Get("state"),
		Error:     q.Get("error"),
		ErrorDesc: q.Get("error_description"),
	})
	if err != nil {
		helpers.WriteAuthError(w, r, provider, err)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.CallbackResponse{
		IDToken:       result.IDToken,
		TokenType:     result.TokenType,
		ExpiresIn:     result.ExpiresIn,
		IsNewUser:     result.IsNewUser,
		AccountLinked: result.AccountLinked,
	})
}

// Providers lista los providers de la tabla con su flag de habilitación.
//
//	GET /providers
func (c *Controller) Providers(w http.ResponseWriter, r *http.Request) {
	names := c.deps.Registry.Names()
	out := make([]dto.ProviderInfo, 0, len(names))
	for _, name := range names {
		out = append(out, dto.ProviderInfo{
			Name:    name,
			Enabled: c.deps.Config.Provider(name).Enabled,
		})
	}
	helpers.WriteJSON(w, http.StatusOK, dto.ProvidersResponse{Providers: out})
}
