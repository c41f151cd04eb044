package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/edustack/campusid/internal/store/core"
)

// ErrSigningKey indica una signing key ausente o demasiado corta.
var ErrSigningKey = errors.New("session: signing key must be at least 32 bytes")

// Claims del id_token local.
type Claims struct {
	Login string `json:"login,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Issuer firma el id_token local (HS256) emitido al completar un login.
type Issuer struct {
	issuer string
	key    []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(issuer, signingKey string, ttl time.Duration) (*Issuer, error) {
	if len(signingKey) < 32 {
		return nil, ErrSigningKey
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{issuer: issuer, key: []byte(signingKey), ttl: ttl, now: time.Now}, nil
}

// WithClock reemplaza el reloj (tests).
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue firma un token para el usuario y devuelve su vigencia en segundos.
func (i *Issuer) Issue(user *core.User) (string, int, error) {
	now := i.now().UTC()
	claims := Claims{
		Login: user.Login,
		Email: user.Email,
		Name:  user.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", 0, fmt.Errorf("session: sign id token: %w", err)
	}
	return signed, int(i.ttl.Seconds()), nil
}

// Parse valida un id_token emitido por este issuer y devuelve sus claims.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("session: unexpected signing method %v", t.Header["alg"])
		}
		return i.key, nil
	}, jwt.WithIssuer(i.issuer), jwt.WithTimeFunc(func() time.Time { return i.now() }))
	if err != nil {
		return nil, err
	}
	return &claims, nil
}
