// Package health expone el health check del servicio.
package health

import (
	"net/http"

	"github.com/edustack/campusid/internal/http/dto"
	"github.com/edustack/campusid/internal/http/helpers"
	"github.com/edustack/campusid/internal/store/core"
)

// Controller responde /healthz contra el store.
type Controller struct {
	store core.Store
}

func New(store core.Store) *Controller {
	return &Controller{store: store}
}

// Healthz devuelve 200 si el storage responde, 503 si no.
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := c.store.Ping(r.Context()); err != nil {
		helpers.WriteJSON(w, http.StatusServiceUnavailable, dto.HealthResponse{
			Status:  "degraded",
			Storage: err.Error(),
		})
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.HealthResponse{Status: "ok", Storage: "ok"})
}
