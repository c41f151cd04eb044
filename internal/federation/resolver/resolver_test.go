package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/edustack/campusid/internal/federation/profile"
	"github.com/edustack/campusid/internal/store/core"
	"github.com/edustack/campusid/internal/store/memory"
)

func newTestResolver() (*Resolver, *memory.Store) {
	st := memory.New()
	r := New(st.Users(), st.Accounts()).WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	})
	return r, st
}

func TestResolve_NewUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _ := newTestResolver()

	res, err := r.Resolve(ctx, "google", profile.Profile{
		ID:          "g-1",
		Email:       "Alice@Campus.edu",
		FirstName:   "Alice",
		LastName:    "Rivera",
		DisplayName: "Alice Rivera",
	})
	if err != nil {
		t.Fatalf("Resolve err: %v", err)
	}
	if !res.IsNewUser || !res.AccountLinked {
		t.Fatalf("flags = new:%v linked:%v", res.IsNewUser, res.AccountLinked)
	}
	if res.User.Login != "alice" {
		t.Fatalf("login = %q", res.User.Login)
	}
	if res.User.Email != "alice@campus.edu" {
		t.Fatalf("email not normalized: %q", res.User.Email)
	}
	if res.Account.Provider != "google" || res.Account.ProviderUserID != "g-1" {
		t.Fatalf("account = %+v", res.Account)
	}
}

func TestResolve_SecondCallbackReusesAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _ := newTestResolver()

	prof := profile.Profile{ID: "g-1", Email: "alice@campus.edu", DisplayName: "Alice"}
	first, err := r.Resolve(ctx, "google", prof)
	if err != nil {
		t.Fatal(err)
	}

	prof.DisplayName = "Alice R."
	second, err := r.Resolve(ctx, "google", prof)
	if err != nil {
		t.Fatal(err)
	}

	if second.IsNewUser || second.AccountLinked {
		t.Fatalf("flags = new:%v linked:%v", second.IsNewUser, second.AccountLinked)
	}
	if second.User.ID != first.User.ID {
		t.Fatal("same identity must resolve to same user")
	}
	if second.Account.ID != first.Account.ID {
		t.Fatal("same identity must reuse the account row")
	}
	if second.Account.ProviderUsername != "Alice R." {
		t.Fatalf("username not refreshed: %q", second.Account.ProviderUsername)
	}
}

func TestResolve_LinksByEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _ := newTestResolver()

	// Primero entra por google
	gres, err := r.Resolve(ctx, "google", profile.Profile{ID: "g-1", Email: "alice@campus.edu"})
	if err != nil {
		t.Fatal(err)
	}

	// Después por github con el mismo email: misma cuenta local, vínculo nuevo
	ghres, err := r.Resolve(ctx, "github", profile.Profile{ID: "gh-9", Email: "ALICE@campus.edu"})
	if err != nil {
		t.Fatal(err)
	}

	if ghres.IsNewUser {
		t.Fatal("email match must not create a new user")
	}
	if !ghres.AccountLinked {
		t.Fatal("email match must link the new account")
	}
	if ghres.User.ID != gres.User.ID {
		t.Fatal("both identities must share the local user")
	}
	if ghres.Account.ID == gres.Account.ID {
		t.Fatal("each provider identity gets its own account row")
	}
}

func TestResolve_LoginSuffixCollision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, st := newTestResolver()

	// Ocupar alice, alice1, alice2
	for i, login := range []string{"alice", "alice1", "alice2"} {
		u := &core.User{
			ID:        login,
			Login:     login,
			Email:     login + "@otro.edu",
			CreatedAt: time.Now().UTC(),
		}
		if err := st.Users().Create(ctx, u); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	res, err := r.Resolve(ctx, "google", profile.Profile{ID: "g-2", Email: "alice@campus.edu"})
	if err != nil {
		t.Fatal(err)
	}
	if res.User.Login != "alice3" {
		t.Fatalf("login = %q, want alice3", res.User.Login)
	}
}

func TestResolve_LoginBaseFallbacks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _ := newTestResolver()

	// Sin email: se deriva del nombre
	res, err := r.Resolve(ctx, "github", profile.Profile{ID: "gh-1", DisplayName: "Bob Ruiz"})
	if err != nil {
		t.Fatal(err)
	}
	if res.User.Login != "bobruiz" {
		t.Fatalf("login = %q", res.User.Login)
	}

	// Sin email ni nombre usable: default genérico
	res, err = r.Resolve(ctx, "github", profile.Profile{ID: "gh-2", DisplayName: "木村"})
	if err != nil {
		t.Fatal(err)
	}
	if res.User.Login != "learner" {
		t.Fatalf("login = %q", res.User.Login)
	}
}

func TestResolve_RequiresProviderUserID(t *testing.T) {
	t.Parallel()
	r, _ := newTestResolver()

	if _, err := r.Resolve(context.Background(), "google", profile.Profile{Email: "x@y.edu"}); err == nil {
		t.Fatal("expected error for profile without id")
	}
}
