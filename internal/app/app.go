// Package app arma el grafo de dependencias del servicio a partir de la
// configuración. Los comandos (serve, sweeps) comparten este wiring.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/edustack/campusid/internal/audit"
	"github.com/edustack/campusid/internal/config"
	"github.com/edustack/campusid/internal/federation/flow"
	"github.com/edustack/campusid/internal/federation/oauthclient"
	"github.com/edustack/campusid/internal/federation/providers"
	"github.com/edustack/campusid/internal/federation/resolver"
	"github.com/edustack/campusid/internal/federation/state"
	statemem "github.com/edustack/campusid/internal/federation/state/memory"
	stateredis "github.com/edustack/campusid/internal/federation/state/redis"
	"github.com/edustack/campusid/internal/federation/tokens"
	federationctrl "github.com/edustack/campusid/internal/http/controllers/federation"
	healthctrl "github.com/edustack/campusid/internal/http/controllers/health"
	"github.com/edustack/campusid/internal/http/router"
	"github.com/edustack/campusid/internal/security/secretbox"
	"github.com/edustack/campusid/internal/session"
	"github.com/edustack/campusid/internal/store/core"
	"github.com/edustack/campusid/internal/store/memory"
	"github.com/edustack/campusid/internal/store/pg"
)

// Container agrupa las piezas vivas del servicio.
type Container struct {
	Config   *config.Config
	Store    core.Store
	Registry *providers.Registry
	Tokens   *tokens.Manager
	Flow     *flow.Service
	Sessions *session.Manager
	Handler  http.Handler

	closers []func()
}

// Build construye el contenedor completo. Sin DSN configurada cae al store
// en memoria (dev y tests de integración).
func Build(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	// ─── Cipher de secretos ───
	var cipher *secretbox.Cipher
	var err error
	if cfg.Security.MasterKey != "" {
		cipher, err = secretbox.NewFromEncodedKey(cfg.Security.MasterKey, cfg.Security.CipherAlgo)
	} else {
		cipher, err = secretbox.NewFromEnv(cfg.Security.CipherAlgo)
	}
	if err != nil {
		return nil, fmt.Errorf("app: cipher: %w", err)
	}

	// Los secretos del YAML pueden venir cifrados con la master key
	// (salida del subcomando enc).
	if err := decryptSecrets(cfg, cipher); err != nil {
		return nil, err
	}

	// ─── Storage ───
	if cfg.Storage.DSN != "" {
		pgStore, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{
			MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("app: postgres: %w", err)
		}
		c.Store = pgStore
		c.closers = append(c.closers, pgStore.Close)
	} else {
		c.Store = memory.New()
	}

	// ─── State store ───
	var stateStore state.Store
	switch cfg.StateStore.Kind {
	case "redis":
		rs := stateredis.New(cfg.StateStore.Redis.Addr, cfg.StateStore.Redis.DB, cfg.StateStore.Redis.Prefix)
		if err := rs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("app: redis state store: %w", err)
		}
		stateStore = rs
		c.closers = append(c.closers, func() { _ = rs.Close() })
	default:
		stateStore = statemem.New(cfg.StateStore.TTL)
	}
	states := state.New(stateStore, cfg.StateStore.TTL)

	// ─── Federation ───
	c.Registry = providers.Default()
	client := oauthclient.New(nil)
	creds := flow.NewConfigCredentials(cfg)
	sink := audit.NewLogSink()

	res := resolver.New(c.Store.Users(), c.Store.Accounts())
	c.Tokens = tokens.New(c.Store.Accounts(), c.Registry, client, creds, cipher, sink, tokens.Config{
		DefaultTTL:       cfg.Tokens.DefaultTTL,
		RefreshThreshold: cfg.Tokens.RefreshThreshold,
		BatchConcurrency: cfg.Tokens.BatchConcurrency,
	})

	issuer, err := session.NewIssuer(cfg.Session.Issuer, cfg.Session.SigningKey, cfg.Session.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("app: session issuer: %w", err)
	}
	c.Sessions = session.NewManager(cfg.Session.CookieName, cfg.Session.TTL,
		strings.HasPrefix(cfg.Server.BaseURL, "https://"))

	c.Flow = flow.New(flow.Deps{
		Registry: c.Registry,
		Creds:    creds,
		States:   states,
		Client:   client,
		Resolver: res,
		Tokens:   c.Tokens,
		Issuer:   issuer,
		Sink:     sink,
	})

	// ─── HTTP ───
	c.Handler = router.New(router.Deps{
		Federation: federationctrl.New(federationctrl.Deps{
			Flow:     c.Flow,
			Sessions: c.Sessions,
			Registry: c.Registry,
			Config:   cfg,
		}),
		Health: healthctrl.New(c.Store),
	})

	return c, nil
}

// decryptSecrets abre in-place los valores de config cifrados con secretbox.
func decryptSecrets(cfg *config.Config, cipher *secretbox.Cipher) error {
	open := func(label, v string) (string, error) {
		if v == "" || !secretbox.LooksEncrypted(v) {
			return v, nil
		}
		pt, err := cipher.Decrypt(v)
		if err != nil {
			return "", fmt.Errorf("app: decrypt %s: %w", label, err)
		}
		return pt, nil
	}

	var err error
	if cfg.Storage.DSN, err = open("storage.dsn", cfg.Storage.DSN); err != nil {
		return err
	}
	if cfg.Session.SigningKey, err = open("session.signing_key", cfg.Session.SigningKey); err != nil {
		return err
	}
	for name, pc := range cfg.Providers {
		if pc.ClientSecret, err = open("providers."+name+".client_secret", pc.ClientSecret); err != nil {
			return err
		}
		cfg.Providers[name] = pc
	}
	return nil
}

// Close libera los recursos del contenedor en orden inverso.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}
