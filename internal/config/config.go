// Package config loads process settings from FLOW_* environment variables
// and the optional YAML file named by FLOW_CONFIG.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
)

// Backend selects the remote document store.
type Backend string

const (
	BackendMemory    Backend = "memory"
	BackendPostgres  Backend = "postgres"
	BackendFirestore Backend = "firestore"
)

// Config is the process configuration.
type Config struct {
	HTTPAddr string `env:"FLOW_HTTP_ADDR" envDefault:":8080"`
	// Timezone has no default: bucketing and the heatmap depend on it.
	Timezone string  `env:"FLOW_TIMEZONE,required"`
	Backend  Backend `env:"FLOW_BACKEND" envDefault:"memory"`

	DatabaseURL      string        `env:"FLOW_DATABASE_URL"`
	PollInterval     time.Duration `env:"FLOW_POLL_INTERVAL" envDefault:"2s"`
	FirestoreProject string        `env:"FLOW_FIRESTORE_PROJECT"`
	FirestoreCreds   string        `env:"FLOW_FIRESTORE_CREDENTIALS"`
	SnapshotFile     string        `env:"FLOW_SNAPSHOT_FILE"`
	CachePath        string        `env:"FLOW_CACHE_PATH" envDefault:"var/flow-cache.db"`
	ConfigFile       string        `env:"FLOW_CONFIG"`

	AuthEnabled bool          `env:"FLOW_AUTH_ENABLED" envDefault:"true"`
	JWTSecret   string        `env:"FLOW_JWT_SECRET"`
	JWTIssuer   string        `env:"FLOW_JWT_ISSUER"`
	JWTLeeway   time.Duration `env:"FLOW_JWT_LEEWAY" envDefault:"30s"`

	WebhookURL       string        `env:"FLOW_ALERT_WEBHOOK_URL"`
	AlertMinSeverity string        `env:"FLOW_ALERT_MIN_SEVERITY" envDefault:"high"`
	AlertCooldown    time.Duration `env:"FLOW_ALERT_COOLDOWN" envDefault:"10m"`
	AlertEscalation  time.Duration `env:"FLOW_ALERT_ESCALATION" envDefault:"0s"`
	AlertTemplate    string        `env:"FLOW_ALERT_TEMPLATE"`
	DashboardURL     string        `env:"FLOW_DASHBOARD_URL"`

	Location *time.Location `env:"-"`
	File     File           `env:"-"`
}

// Load parses the environment, resolves the timezone and reads the YAML file.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return finish(cfg)
}

// LoadFromMap is Load against an explicit environment.
func LoadFromMap(environment map[string]string) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: environment})
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return finish(cfg)
}

func finish(cfg Config) (Config, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone))
	if err != nil {
		return Config{}, fmt.Errorf("config: FLOW_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	file, err := LoadFile(cfg.ConfigFile)
	if err != nil {
		return Config{}, err
	}
	cfg.File = file

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks backend-specific settings.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: FLOW_DATABASE_URL required for postgres backend")
		}
	case BackendFirestore:
		if c.FirestoreProject == "" {
			return errors.New("config: FLOW_FIRESTORE_PROJECT required for firestore backend")
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.AuthEnabled && c.JWTSecret == "" {
		return errors.New("config: FLOW_JWT_SECRET required when auth is enabled")
	}
	return nil
}
