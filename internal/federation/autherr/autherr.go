// Package autherr defines the authentication failure taxonomy and the
// classifier that maps any failure to a stable (code, description, status)
// triple for the HTTP surface and the audit channels.
package autherr

import (
	"errors"
	"fmt"
)

// Kind etiqueta la variante de una falla de autenticación.
type Kind int

const (
	KindUnknown Kind = iota
	// KindProtocol: code/state faltante o inválido, respuesta malformada.
	KindProtocol
	// KindLinkingConflict: la identidad externa ya está vinculada a otro usuario.
	KindLinkingConflict
	// KindProviderDisabled: provider desconocido o deshabilitado por config.
	KindProviderDisabled
	// KindTokenExpired: token vencido sin refresh posible.
	KindTokenExpired
)

// Error is the tagged-variant authentication failure. No subclass hierarchy:
// the classifier is a pure match over Kind and Code.
type Error struct {
	Kind     Kind
	Provider string
	// Code es el código de protocolo OAuth cuando se conoce (invalid_grant...).
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth failure [%s]: %s", e.Code, e.Message)
	}
	return "auth failure: " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// WithCause adjunta la causa subyacente.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// Protocol crea una falla de protocolo con código OAuth opcional.
func Protocol(provider, code, message string) *Error {
	return &Error{Kind: KindProtocol, Provider: provider, Code: code, Message: message}
}

// LinkingConflict crea una falla de vinculación de cuentas.
func LinkingConflict(provider, message string) *Error {
	return &Error{Kind: KindLinkingConflict, Provider: provider, Message: message}
}

// Disabled crea una falla de provider deshabilitado/desconocido.
func Disabled(provider string) *Error {
	return &Error{Kind: KindProviderDisabled, Provider: provider, Message: "provider_disabled: " + provider}
}

// TokenExpired crea una falla de token vencido.
func TokenExpired(provider, message string) *Error {
	return &Error{Kind: KindTokenExpired, Provider: provider, Message: message}
}

// ProviderError es el error nativo reportado por el IDP (query param `error`
// del callback o cuerpo de error del token endpoint). Se propaga verbatim.
type ProviderError struct {
	Provider    string
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

// AsError extrae un *Error de una cadena de errores.
func AsError(err error) (*Error, bool) {
	var ae *Error
	ok := errors.As(err, &ae)
	return ae, ok
}

// AsProviderError extrae un *ProviderError de una cadena de errores.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	ok := errors.As(err, &pe)
	return pe, ok
}
