// Package router arma el árbol de rutas del servicio sobre chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	federationctrl "github.com/edustack/campusid/internal/http/controllers/federation"
	healthctrl "github.com/edustack/campusid/internal/http/controllers/health"
	mw "github.com/edustack/campusid/internal/http/middlewares"
	"github.com/edustack/campusid/internal/observability/metrics"
)

// Deps contiene los controllers ya construidos.
type Deps struct {
	Federation *federationctrl.Controller
	Health     *healthctrl.Controller
}

// New construye el router. Los endpoints del flujo de auth van con
// Cache-Control: no-store; /metrics y /healthz quedan fuera de ese grupo.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return mw.Chain(next,
			mw.WithRequestID(),
			mw.WithRecover(),
			mw.WithLogging(),
			mw.WithSecurityHeaders(),
		)
	})

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return mw.WithNoStore()(next)
		})
		r.Get("/authorize/{provider}", deps.Federation.Authorize)
		r.Get("/callback/{provider}", deps.Federation.Callback)
	})

	r.Get("/providers", deps.Federation.Providers)
	r.Get("/healthz", deps.Health.Healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}
