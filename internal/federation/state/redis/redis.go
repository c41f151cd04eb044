// Package redis respalda el state store con Redis. Para despliegues con
// múltiples réplicas detrás de un balanceador: el callback puede caer en
// otra instancia que la que generó el state.
package redis

import (
	"context"
	"encoding/json"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/edustack/campusid/internal/federation/state"
)

type Store struct {
	c      *rdb.Client
	prefix string
}

func New(addr string, db int, prefix string) *Store {
	return &Store{
		c:      rdb.NewClient(&rdb.Options{Addr: addr, DB: db}),
		prefix: prefix,
	}
}

func (s *Store) Put(value string, e state.Entry, ttl time.Duration) {
	b, _ := json.Marshal(e)
	_ = s.c.Set(context.Background(), s.prefix+value, b, ttl).Err()
}

// Consume usa GETDEL: atómico, un state nunca se entrega dos veces aunque
// dos callbacks lleguen en paralelo.
func (s *Store) Consume(value string) (state.Entry, bool) {
	b, err := s.c.GetDel(context.Background(), s.prefix+value).Bytes()
	if err != nil {
		return state.Entry{}, false
	}
	var e state.Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return state.Entry{}, false
	}
	return e, true
}

// PurgeExpired es un no-op: Redis expira las keys por TTL nativo.
func (s *Store) PurgeExpired() {}

// Ping verifica la conexión.
func (s *Store) Ping(ctx context.Context) error { return s.c.Ping(ctx).Err() }

// Close cierra el cliente.
func (s *Store) Close() error { return s.c.Close() }
