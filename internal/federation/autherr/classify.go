package autherr

import (
	"net/http"
	"strings"
)

// Detail is the stable classification of a failure.
type Detail struct {
	Code        string
	Description string
	HTTPStatus  int
	Provider    string

	// Suspicious marca la falla para el canal de security violations
	// (posible CSRF o abuso del flujo de código).
	Suspicious bool
}

// statusByCode: vocabulario de códigos de protocolo OAuth2.
var statusByCode = map[string]int{
	"access_denied":             http.StatusForbidden,
	"invalid_request":           http.StatusBadRequest,
	"invalid_grant":             http.StatusBadRequest,
	"unsupported_response_type": http.StatusBadRequest,
	"invalid_scope":             http.StatusBadRequest,
	"invalid_client":            http.StatusUnauthorized,
	"server_error":              http.StatusBadGateway,
	"temporarily_unavailable":   http.StatusServiceUnavailable,
}

// suspiciousCodes dispara el canal de actividad sospechosa.
var suspiciousCodes = map[string]struct{}{
	"invalid_client":  {},
	"invalid_grant":   {},
	"invalid_request": {},
}

// Classify maps any authentication failure to its Detail. Decision order:
// provider-native error verbatim (401), then typed kind, then substring
// matching over the message as a last resort.
func Classify(err error) Detail {
	if err == nil {
		return Detail{Code: "server_error", Description: "unknown failure", HTTPStatus: http.StatusInternalServerError}
	}

	// (1) Error nativo del provider: se propaga tal cual con 401.
	if pe, ok := AsProviderError(err); ok {
		return finish(Detail{
			Code:        pe.Code,
			Description: pe.Description,
			HTTPStatus:  http.StatusUnauthorized,
			Provider:    pe.Provider,
		}, err)
	}

	// (2) Variante tipada.
	if ae, ok := AsError(err); ok {
		d := Detail{Provider: ae.Provider, Description: ae.Message}
		switch ae.Kind {
		case KindLinkingConflict:
			d.Code = "account_linking_conflict"
			d.HTTPStatus = http.StatusConflict
		case KindProviderDisabled:
			d.Code = "provider_disabled"
			d.HTTPStatus = http.StatusServiceUnavailable
		case KindTokenExpired:
			d.Code = "token_expired"
			d.HTTPStatus = http.StatusUnauthorized
		default:
			d.Code = ae.Code
			if status, ok := statusByCode[ae.Code]; ok {
				d.HTTPStatus = status
			} else {
				if d.Code == "" {
					d.Code = "authentication_failed"
				}
				d.HTTPStatus = http.StatusUnauthorized
			}
		}
		return finish(d, err)
	}

	// (3) Último recurso: substring match sobre el mensaje.
	msg := strings.ToLower(err.Error())
	d := Detail{Description: err.Error()}
	switch {
	case strings.Contains(msg, "account_linking_conflict"), strings.Contains(msg, "already linked"):
		d.Code = "account_linking_conflict"
		d.HTTPStatus = http.StatusConflict
	case strings.Contains(msg, "provider_disabled"):
		d.Code = "provider_disabled"
		d.HTTPStatus = http.StatusServiceUnavailable
	case strings.Contains(msg, "token_expired"):
		d.Code = "token_expired"
		d.HTTPStatus = http.StatusUnauthorized
	default:
		d.Code = "authentication_failed"
		d.HTTPStatus = http.StatusUnauthorized
		// Orden fijo: los códigos más específicos primero para que un
		// mensaje con varios matches clasifique determinístico.
		for _, code := range []string{
			"unsupported_response_type", "temporarily_unavailable",
			"invalid_client", "invalid_grant", "invalid_request",
			"invalid_scope", "access_denied", "server_error",
		} {
			if strings.Contains(msg, code) {
				d.Code = code
				d.HTTPStatus = statusByCode[code]
				break
			}
		}
	}
	return finish(d, err)
}

// finish aplica el flag de actividad sospechosa sobre el detalle ya armado.
func finish(d Detail, err error) Detail {
	if _, ok := suspiciousCodes[d.Code]; ok {
		d.Suspicious = true
		return d
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "csrf") || strings.Contains(msg, "state") {
		d.Suspicious = true
	}
	return d
}
