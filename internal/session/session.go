// Package session mantiene la sesión de navegador usada durante el flujo de
// login (portadora del state pendiente) y emite el id_token local al
// completarlo.
//
// Las sesiones son efímeras y viven en memoria con TTL; no son la sesión de
// aplicación post-login, sólo el puente entre /authorize y /callback.
package session

import (
	"net/http"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	tokens "github.com/edustack/campusid/internal/security/token"
)

const sessionIDBytes = 24

// Session es una sesión de navegador con atributos arbitrarios.
// Implementa la superficie que necesita el validador de state.
type Session struct {
	id string

	mu    sync.RWMutex
	attrs map[string]string
}

func (s *Session) ID() string { return s.id }

func (s *Session) Attr(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.attrs[key]
	return v, ok
}

func (s *Session) SetAttr(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
}

func (s *Session) DelAttr(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attrs, key)
}

// Manager crea y recupera sesiones a partir de la cookie.
type Manager struct {
	cookieName string
	ttl        time.Duration
	secure     bool

	cache *gocache.Cache
}

// NewManager crea el manager. secure marca la cookie como Secure (deducirlo
// de la base URL pública queda en el wiring).
func NewManager(cookieName string, ttl time.Duration, secure bool) *Manager {
	return &Manager{
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		cache:      gocache.New(ttl, 2*ttl),
	}
}

// Ensure devuelve la sesión de la request, creando una nueva (y seteando la
// cookie) si no hay una vigente.
func (m *Manager) Ensure(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" {
		if v, ok := m.cache.Get(tokens.SHA256Base64URL(c.Value)); ok {
			return v.(*Session), nil
		}
	}

	id, err := tokens.GenerateOpaqueToken(sessionIDBytes)
	if err != nil {
		return nil, err
	}
	sess := &Session{id: id, attrs: make(map[string]string)}
	// El cache se indexa por hash: el valor de la cookie nunca queda
	// almacenado tal cual.
	m.cache.Set(tokens.SHA256Base64URL(id), sess, m.ttl)

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

// Lookup devuelve la sesión referida por la cookie, o nil si no existe. El
// callback puede llegar sin cookie; el validador de state tiene un camino de
// fallback para ese caso.
func (m *Manager) Lookup(r *http.Request) *Session {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	if v, ok := m.cache.Get(tokens.SHA256Base64URL(strings.TrimSpace(c.Value))); ok {
		return v.(*Session)
	}
	return nil
}
