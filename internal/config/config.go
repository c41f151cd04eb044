package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del servicio.
type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
		// debug | info | warn | error
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
		// BaseURL pública del servicio; usada para armar redirect URIs.
		BaseURL string `yaml:"base_url"`
	} `yaml:"server"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	// StateStore respalda los state tokens CSRF. Explícitamente efímero:
	// se pierde en un restart, aceptable por la ventana corta de validez.
	StateStore struct {
		Kind  string        `yaml:"kind"` // memory | redis
		TTL   time.Duration `yaml:"ttl"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"state_store"`

	Session struct {
		CookieName string        `yaml:"cookie_name"`
		TTL        time.Duration `yaml:"ttl"`
		// JWT para el id_token local emitido al completar el login.
		Issuer     string        `yaml:"issuer"`
		SigningKey string        `yaml:"signing_key"` // HMAC; puede venir cifrado con secretbox
		TokenTTL   time.Duration `yaml:"token_ttl"`
	} `yaml:"session"`

	Tokens struct {
		// DefaultTTL se aplica cuando el provider omite expires_in.
		DefaultTTL time.Duration `yaml:"default_ttl"`
		// RefreshThreshold: ventana proactiva antes del expiry real.
		RefreshThreshold time.Duration `yaml:"refresh_threshold"`
		// BatchConcurrency limita el fan-out de BatchRefresh.
		BatchConcurrency int `yaml:"batch_concurrency"`
		// SweepUnusedDays: cutoff para sweepUnused.
		SweepUnusedDays int `yaml:"sweep_unused_days"`
	} `yaml:"tokens"`

	Security struct {
		// Algoritmo del cipher de secretos: aes-gcm | xchacha20
		CipherAlgo string `yaml:"cipher_algo"`
		// MasterKey (base64, 32 bytes). Si está vacía se usa CAMPUSID_MASTER_KEY.
		MasterKey string `yaml:"master_key"`
	} `yaml:"security"`

	// ───────── Identity Providers ─────────
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig es la configuración por provider. Los endpoints viven en el
// registry (tabla estática); acá sólo credenciales y flags operativos.
type ProviderConfig struct {
	Enabled      bool     `yaml:"enabled"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"` // puede venir cifrado con secretbox
	RedirectURL  string   `yaml:"redirect_url"`  // si vacío => <server.base_url>/callback/<provider>
	Scopes       []string `yaml:"scopes"`
}

// Load lee el YAML, aplica defaults, overrides por env y valida.
// Si existe un .env en el working dir, se carga primero (godotenv).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default retorna una configuración con sólo defaults (útil en tests).
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func (c *Config) applyDefaults() {
	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:8080"
	}
	if c.StateStore.Kind == "" {
		c.StateStore.Kind = "memory"
	}
	if c.StateStore.TTL == 0 {
		c.StateStore.TTL = 5 * time.Minute
	}
	if c.StateStore.Redis.Prefix == "" {
		c.StateStore.Redis.Prefix = "campusid:state:"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "cid_session"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 12 * time.Hour
	}
	if c.Session.Issuer == "" {
		c.Session.Issuer = "campusid"
	}
	if c.Session.TokenTTL == 0 {
		c.Session.TokenTTL = time.Hour
	}
	if c.Tokens.DefaultTTL == 0 {
		c.Tokens.DefaultTTL = time.Hour
	}
	if c.Tokens.RefreshThreshold == 0 {
		c.Tokens.RefreshThreshold = 5 * time.Minute
	}
	if c.Tokens.BatchConcurrency == 0 {
		c.Tokens.BatchConcurrency = 8
	}
	if c.Tokens.SweepUnusedDays == 0 {
		c.Tokens.SweepUnusedDays = 90
	}
	if c.Security.CipherAlgo == "" {
		c.Security.CipherAlgo = "aes-gcm"
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
}

// applyEnvOverrides pisa valores puntuales con variables de entorno.
// Convención: CAMPUSID_<SECCION>_<CAMPO>.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CAMPUSID_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CAMPUSID_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("CAMPUSID_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("CAMPUSID_STATE_STORE"); v != "" {
		c.StateStore.Kind = v
	}
	if v := os.Getenv("CAMPUSID_REDIS_ADDR"); v != "" {
		c.StateStore.Redis.Addr = v
	}
	if v := os.Getenv("CAMPUSID_SESSION_SIGNING_KEY"); v != "" {
		c.Session.SigningKey = v
	}
	if v, ok := getEnvInt("CAMPUSID_SWEEP_UNUSED_DAYS"); ok {
		c.Tokens.SweepUnusedDays = v
	}
}

// Validate chequea invariantes mínimos para arrancar.
func (c *Config) Validate() error {
	switch c.StateStore.Kind {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: state_store.kind inválido %q (memory|redis)", c.StateStore.Kind)
	}
	if c.StateStore.Kind == "redis" && c.StateStore.Redis.Addr == "" {
		return fmt.Errorf("config: state_store redis requiere addr")
	}
	switch c.Security.CipherAlgo {
	case "aes-gcm", "xchacha20":
	default:
		return fmt.Errorf("config: security.cipher_algo inválido %q (aes-gcm|xchacha20)", c.Security.CipherAlgo)
	}
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		return fmt.Errorf("config: server.base_url debe ser http(s)")
	}
	for name, p := range c.Providers {
		if p.Enabled && p.ClientID == "" {
			return fmt.Errorf("config: provider %s habilitado sin client_id", name)
		}
	}
	return nil
}

// Provider retorna la config de un provider ("" Enabled=false si no existe).
func (c *Config) Provider(name string) ProviderConfig {
	return c.Providers[strings.ToLower(strings.TrimSpace(name))]
}

func getEnvInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
