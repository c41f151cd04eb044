// Package memory respalda el state store con go-cache, sin janitor propio:
// la limpieza corre amortizada en cada validación (PurgeExpired).
package memory

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/edustack/campusid/internal/federation/state"
)

type Store struct {
	mu sync.Mutex // garantiza Consume atómico (go-cache no tiene GetDel)
	c  *gocache.Cache
}

func New(defaultTTL time.Duration) *Store {
	// cleanupInterval <= 0 => sin goroutine de limpieza de fondo.
	return &Store{c: gocache.New(defaultTTL, 0)}
}

func (s *Store) Put(value string, e state.Entry, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Set(value, e, ttl)
}

func (s *Store) Consume(value string) (state.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.c.Get(value)
	if !ok {
		return state.Entry{}, false
	}
	s.c.Delete(value)
	e, ok := v.(state.Entry)
	return e, ok
}

func (s *Store) PurgeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.DeleteExpired()
}

// Len expone la cantidad de states pendientes (tests/metrics).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.ItemCount()
}
