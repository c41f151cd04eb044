// Package metrics expone los contadores Prometheus del servicio. Registro
// global vía promauto; el handler se monta en /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "campusid"

var (
	logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "federation",
		Name:      "logins_total",
		Help:      "Callbacks de login completados, por provider y resultado.",
	}, []string{"provider", "result"})

	loginFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "federation",
		Name:      "login_failures_total",
		Help:      "Fallas de login clasificadas, por provider y código.",
	}, []string{"provider", "code"})

	stateRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "federation",
		Name:      "state_rejections_total",
		Help:      "State tokens rechazados (vencidos, reusados o desconocidos).",
	})

	tokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tokens",
		Name:      "refresh_total",
		Help:      "Intentos de refresh de tokens, por provider y resultado.",
	}, []string{"provider", "result"})

	sweepAffected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tokens",
		Name:      "sweep_affected_total",
		Help:      "Cuentas afectadas por los sweeps periódicos, por tipo.",
	}, []string{"sweep"})
)

// Login registra el resultado de un callback ("success" | "failure").
func Login(provider, result string) {
	logins.WithLabelValues(provider, result).Inc()
}

// LoginFailure registra una falla ya clasificada.
func LoginFailure(provider, code string) {
	if provider == "" {
		provider = "unknown"
	}
	loginFailures.WithLabelValues(provider, code).Inc()
}

// StateRejected registra un state inválido.
func StateRejected() { stateRejections.Inc() }

// TokenRefresh registra un intento de refresh
// ("success" | "unsupported" | "failure").
func TokenRefresh(provider, result string) {
	tokenRefreshes.WithLabelValues(provider, result).Inc()
}

// SweepAffected acumula cuentas afectadas por un sweep ("expired" | "unused").
func SweepAffected(sweep string, n int) {
	if n > 0 {
		sweepAffected.WithLabelValues(sweep).Add(float64(n))
	}
}

// Handler devuelve el handler del endpoint /metrics.
func Handler() http.Handler { return promhttp.Handler() }
