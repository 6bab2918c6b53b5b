package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Listen is the HTTP bind address.
type Listen struct {
	BindIP string `yaml:"bind_ip" env:"PODCOORD_BIND_IP" env-default:"0.0.0.0"`
	Port   int    `yaml:"port" env:"PODCOORD_PORT" env-default:"8080"`
}

// Addr returns host:port for http.Server.
func (l Listen) Addr() string {
	return fmt.Sprintf("%s:%d", l.BindIP, l.Port)
}

// Storage selects the persistence backend.
type Storage struct {
	Driver    string `yaml:"driver" env:"PODCOORD_STORAGE_DRIVER" env-default:"memory"`
	SQLiteDSN string `yaml:"sqlite_dsn" env:"PODCOORD_SQLITE_DSN" env-default:"podcoord.db"`
}

// Auth configures bearer token verification.
type Auth struct {
	JWTSecret string `yaml:"jwt_secret" env:"PODCOORD_JWT_SECRET"`
}

// Engine points at the external hunt and ranking engine.
type Engine struct {
	BaseURL      string        `yaml:"base_url" env:"PODCOORD_ENGINE_URL" env-default:"http://localhost:9090"`
	Timeout      time.Duration `yaml:"timeout" env:"PODCOORD_ENGINE_TIMEOUT" env-default:"10s"`
	PollAttempts int           `yaml:"poll_attempts" env:"PODCOORD_ENGINE_POLL_ATTEMPTS" env-default:"0"`
	PollInterval time.Duration `yaml:"poll_interval" env:"PODCOORD_ENGINE_POLL_INTERVAL" env-default:"1s"`
}

// SMTP configures outgoing mail. An empty Addr switches notifications to the log.
type SMTP struct {
	Addr     string `yaml:"addr" env:"PODCOORD_SMTP_ADDR"`
	User     string `yaml:"user" env:"PODCOORD_SMTP_USER"`
	Password string `yaml:"password" env:"PODCOORD_SMTP_PASSWORD"`
	From     string `yaml:"from" env:"PODCOORD_SMTP_FROM" env-default:"noreply@podcoord.local"`
	Hello    string `yaml:"hello" env:"PODCOORD_SMTP_HELLO"`
	TLS      bool   `yaml:"tls" env:"PODCOORD_SMTP_TLS" env-default:"false"`
}

// Enabled reports whether mail should be sent.
func (s SMTP) Enabled() bool {
	return strings.TrimSpace(s.Addr) != ""
}

// RateLimit throttles the public link endpoints per client address.
type RateLimit struct {
	PerSecond float64 `yaml:"per_second" env:"PODCOORD_RATE_LIMIT_RPS" env-default:"5"`
	Burst     int     `yaml:"burst" env:"PODCOORD_RATE_LIMIT_BURST" env-default:"10"`
}

// Links tunes scheduling links.
type Links struct {
	ShareLinkTTL time.Duration `yaml:"share_link_ttl" env:"PODCOORD_SHARE_LINK_TTL" env-default:"168h"`
	SlotCacheTTL time.Duration `yaml:"slot_cache_ttl" env:"PODCOORD_SLOT_CACHE_TTL" env-default:"5m"`
}

// Config captures configuration values for the podcoord service.
type Config struct {
	Env           string    `yaml:"env" env:"PODCOORD_ENV" env-default:"local"`
	Listen        Listen    `yaml:"listen"`
	PublicBaseURL string    `yaml:"public_base_url" env:"PODCOORD_PUBLIC_BASE_URL" env-default:"http://localhost:8080"`
	Storage       Storage   `yaml:"storage"`
	Auth          Auth      `yaml:"auth"`
	Engine        Engine    `yaml:"engine"`
	SMTP          SMTP      `yaml:"smtp"`
	RateLimit     RateLimit `yaml:"rate_limit"`
	Links         Links     `yaml:"links"`
}

// Load reads the optional YAML file at path, then applies PODCOORD_* environment
// overrides and defaults. Missing or invalid values are reported by key.
func Load(path string) (Config, error) {
	var cfg Config
	var err error
	if strings.TrimSpace(path) == "" {
		err = cleanenv.ReadEnv(&cfg)
	} else {
		err = cleanenv.ReadConfig(path, &cfg)
	}
	if err != nil {
		desc, _ := cleanenv.GetDescription(&cfg, nil)
		return Config{}, fmt.Errorf("config: %w; %s", err, desc)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return cfg, nil
}

func (c Config) validate() error {
	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		missing = append(missing, "PODCOORD_JWT_SECRET")
	}

	switch c.Env {
	case "local", "dev", "prod":
	default:
		invalid = append(invalid, "PODCOORD_ENV")
	}
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		invalid = append(invalid, "PODCOORD_PORT")
	}
	if u, err := url.Parse(c.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		invalid = append(invalid, "PODCOORD_PUBLIC_BASE_URL")
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Storage.SQLiteDSN) == "" {
			missing = append(missing, "PODCOORD_SQLITE_DSN")
		}
	default:
		invalid = append(invalid, "PODCOORD_STORAGE_DRIVER")
	}
	if c.Engine.Timeout <= 0 {
		invalid = append(invalid, "PODCOORD_ENGINE_TIMEOUT")
	}
	if c.Engine.PollAttempts < 0 {
		invalid = append(invalid, "PODCOORD_ENGINE_POLL_ATTEMPTS")
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		invalid = append(invalid, "PODCOORD_RATE_LIMIT_RPS")
	}
	if c.Links.ShareLinkTTL <= 0 {
		invalid = append(invalid, "PODCOORD_SHARE_LINK_TTL")
	}

	if len(missing) > 0 {
		return fmt.Errorf("required configuration is missing: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return fmt.Errorf("configuration values are invalid: %s", strings.Join(invalid, ", "))
	}
	return nil
}
