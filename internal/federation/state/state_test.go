package state_test

import (
	"testing"
	"time"

	"github.com/edustack/campusid/internal/federation/state"
	statemem "github.com/edustack/campusid/internal/federation/state/memory"
)

type fakeSession struct {
	id    string
	attrs map[string]string
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id, attrs: map[string]string{}}
}

func (s *fakeSession) ID() string { return s.id }
func (s *fakeSession) Attr(k string) (string, bool) {
	v, ok := s.attrs[k]
	return v, ok
}
func (s *fakeSession) SetAttr(k, v string) { s.attrs[k] = v }
func (s *fakeSession) DelAttr(k string)    { delete(s.attrs, k) }

func TestGenerateValidate_SingleUse(t *testing.T) {
	t.Parallel()

	v := state.New(statemem.New(time.Minute), time.Minute)
	sess := newFakeSession("s1")

	value, err := v.Generate(sess)
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if value == "" {
		t.Fatal("empty state value")
	}

	if !v.Validate(sess, value) {
		t.Fatal("first validation should pass")
	}
	// single-use: el mismo valor nunca valida dos veces
	if v.Validate(sess, value) {
		t.Fatal("second validation should fail")
	}
}

func TestValidate_FallbackWithoutSession(t *testing.T) {
	t.Parallel()

	v := state.New(statemem.New(time.Minute), time.Minute)
	sess := newFakeSession("s1")

	value, err := v.Generate(sess)
	if err != nil {
		t.Fatal(err)
	}

	// El callback llegó sin cookie: debe validar por el store standalone.
	if !v.Validate(nil, value) {
		t.Fatal("fallback validation should pass")
	}
	if v.Validate(nil, value) {
		t.Fatal("fallback validation must be single-use too")
	}
}

func TestValidate_StoreConsumptionBlocksSessionPath(t *testing.T) {
	t.Parallel()

	v := state.New(statemem.New(time.Minute), time.Minute)
	origin := newFakeSession("origin")

	value, err := v.Generate(origin)
	if err != nil {
		t.Fatal(err)
	}

	// Primer uso por el camino del store (callback sin cookie).
	if !v.Validate(nil, value) {
		t.Fatal("store path validation should pass")
	}
	// La sesión de origen todavía tiene el atributo, pero el valor ya fue
	// consumido: un replay por el camino de sesión debe fallar.
	if v.Validate(origin, value) {
		t.Fatal("session path must reject a value already consumed via the store")
	}
}

func TestValidate_ExpiredWindow(t *testing.T) {
	t.Parallel()

	now := time.Now()
	v := state.New(statemem.New(time.Hour), time.Minute).WithClock(func() time.Time { return now })
	sess := newFakeSession("s1")

	value, err := v.Generate(sess)
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(time.Minute + time.Second)
	if v.Validate(sess, value) {
		t.Fatal("expired state should not validate via session path")
	}
	if v.Validate(nil, value) {
		t.Fatal("expired state should not validate via store path")
	}
}

func TestValidate_UnknownOrEmpty(t *testing.T) {
	t.Parallel()

	v := state.New(statemem.New(time.Minute), time.Minute)
	sess := newFakeSession("s1")

	if v.Validate(sess, "") {
		t.Fatal("empty state should not validate")
	}
	if v.Validate(sess, "nunca-generado") {
		t.Fatal("unknown state should not validate")
	}
}

func TestValidate_CrossSessionUsesStore(t *testing.T) {
	t.Parallel()

	v := state.New(statemem.New(time.Minute), time.Minute)
	origin := newFakeSession("origin")
	other := newFakeSession("other")

	value, err := v.Generate(origin)
	if err != nil {
		t.Fatal(err)
	}

	// Otra sesión no tiene el atributo, pero el store standalone sí.
	if !v.Validate(other, value) {
		t.Fatal("store fallback should validate from a different session")
	}
	if v.Validate(other, value) {
		t.Fatal("consumed state must not validate again")
	}
	if v.Validate(origin, value) {
		t.Fatal("origin session must not revalidate a consumed state")
	}
}
