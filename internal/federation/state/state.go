// Package state generates and validates single-use CSRF state tokens for
// the authorization flow.
//
// A state lives in two places at once: as an attribute of the originating
// browser session and as an entry in a standalone expiring store. Validation
// tries the session-bound path first and falls back to the store, so the
// flow survives a callback that lands without the original session cookie.
// The store is the single source of truth for consumption: both paths must
// take its entry, so a state never validates twice and never validates past
// its window.
//
// The store is deliberately ephemeral: lost on restart, acceptable given the
// short validity window.
package state

import (
	"errors"
	"time"

	tokens "github.com/edustack/campusid/internal/security/token"
)

const (
	// attrValue / attrCreatedAt son los atributos de sesión donde se
	// guarda el state pendiente.
	attrValue     = "federated_state"
	attrCreatedAt = "federated_state_ts"

	// stateBytes => 256 bits de entropía.
	stateBytes = 32
)

// DefaultTTL is the validity window applied when none is configured.
const DefaultTTL = 5 * time.Minute

// ErrNoSession indica que Generate fue llamado sin sesión.
var ErrNoSession = errors.New("state: session required")

// Session is the minimal surface of the browser session the validator needs.
type Session interface {
	ID() string
	Attr(key string) (string, bool)
	SetAttr(key, value string)
	DelAttr(key string)
}

// Entry is what the standalone store keeps per pending state.
type Entry struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the standalone expiring store. Implementations must be safe for
// concurrent use; Consume must be atomic (a value is returned at most once).
type Store interface {
	Put(value string, e Entry, ttl time.Duration)
	Consume(value string) (Entry, bool)
	// PurgeExpired removes dead entries. Called opportunistically on every
	// validation; backends with native TTL may no-op.
	PurgeExpired()
}

// Validator genera y valida state tokens.
type Validator struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// New crea un Validator. ttl <= 0 usa DefaultTTL.
func New(store Store, ttl time.Duration) *Validator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Validator{store: store, ttl: ttl, now: time.Now}
}

// WithClock reemplaza el reloj (tests).
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// TTL expone la ventana de validez configurada.
func (v *Validator) TTL() time.Duration { return v.ttl }

// Generate produce un token criptográficamente aleatorio y lo registra en
// la sesión y en el store standalone.
func (v *Validator) Generate(sess Session) (string, error) {
	if sess == nil {
		return "", ErrNoSession
	}
	value, err := tokens.GenerateOpaqueToken(stateBytes)
	if err != nil {
		return "", err
	}

	now := v.now().UTC()
	sess.SetAttr(attrValue, value)
	sess.SetAttr(attrCreatedAt, now.Format(time.RFC3339Nano))
	v.store.Put(value, Entry{SessionID: sess.ID(), CreatedAt: now}, v.ttl)

	return value, nil
}

// Validate consume el state recibido. Orden: limpieza amortizada del store,
// chequeo atado a la sesión, fallback al store standalone. Cualquier otro
// resultado es inválido.
func (v *Validator) Validate(sess Session, received string) bool {
	v.store.PurgeExpired()

	if received == "" {
		return false
	}
	now := v.now()

	if sess != nil {
		if stored, ok := sess.Attr(attrValue); ok {
			createdRaw, _ := sess.Attr(attrCreatedAt)
			created, err := time.Parse(time.RFC3339Nano, createdRaw)
			fresh := err == nil && now.Sub(created) <= v.ttl
			if fresh && stored == received {
				sess.DelAttr(attrValue)
				sess.DelAttr(attrCreatedAt)
				// El store manda: si la entrada ya fue consumida por el otro
				// camino, este intento también es un replay.
				_, ok := v.store.Consume(received)
				return ok
			}
			if !fresh {
				sess.DelAttr(attrValue)
				sess.DelAttr(attrCreatedAt)
			}
		}
	}

	entry, ok := v.store.Consume(received)
	if !ok {
		return false
	}
	if now.Sub(entry.CreatedAt) > v.ttl {
		return false
	}
	return true
}
