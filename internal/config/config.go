// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Language        string        `yaml:"language"` // i18n catalog, e.g. "en"
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AIConfig struct {
	Transport       string        `yaml:"transport"` // http | sdk | noop
	BaseURL         string        `yaml:"base_url"`
	RequestTimeout  time.Duration `yaml:"request_timeout"` // 0 = no timeout
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent AI calls
}

type ChatConfig struct {
	Model              string        `yaml:"model"` // gpt-3.5-turbo | gpt-4
	Temperature        float64       `yaml:"temperature"`
	ClearDraftOnSubmit *bool         `yaml:"clear_draft_on_submit"`
	PersistKey         string        `yaml:"persist_key"` // first_message | conversation_id
	SessionIdleTTL     time.Duration `yaml:"session_idle_ttl"`
	ReapInterval       time.Duration `yaml:"reap_interval"`
}

type WorkerConfig struct {
	Workers int `yaml:"workers"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // 0 = keys never expire
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type StorageConfig struct {
	Driver   string         `yaml:"driver"` // memory | redis | postgres | sqlite
	Redis    RedisConfig    `yaml:"redis"`
	Postgres DatabaseConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

type SecurityConfig struct {
	EncryptionKey string        `yaml:"encryption_key"` // optional; 16/24/32 bytes enables at-rest encryption
	SessionSecret string        `yaml:"session_secret"`
	SecureCookie  bool          `yaml:"secure_cookie"`
	CookieTTL     time.Duration `yaml:"cookie_ttl"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	AI       AIConfig       `yaml:"ai"`
	Chat     ChatConfig     `yaml:"chat"`
	Worker   WorkerConfig   `yaml:"worker"`
	Storage  StorageConfig  `yaml:"storage"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

const devSessionSecret = "dev-session-secret-change-me"

// LoadConfig reads .env (if present), then the YAML file at path, then applies
// environment overrides and defaults. A missing file is fine in dev mode.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && dev:
		// run on defaults
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.Runtime.Dev = dev
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.AI.BaseURL, "OPENAI_BASE_URL")
	set(&cfg.Security.SessionSecret, "SESSION_SECRET")
	set(&cfg.Security.EncryptionKey, "ENCRYPTION_KEY")
	set(&cfg.Storage.Redis.URL, "REDIS_URL")
	set(&cfg.Storage.Postgres.URL, "DATABASE_URL")
	set(&cfg.Storage.SQLite.Path, "SQLITE_PATH")
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.Language == "" {
		cfg.Server.Language = "en"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.AI.Transport == "" {
		cfg.AI.Transport = "http"
		if cfg.Runtime.Dev {
			cfg.AI.Transport = "noop"
		}
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.Chat.Model == "" {
		cfg.Chat.Model = "gpt-3.5-turbo"
	}
	if cfg.Chat.Temperature == 0 {
		cfg.Chat.Temperature = 0.7
	}
	if cfg.Chat.ClearDraftOnSubmit == nil {
		v := true
		cfg.Chat.ClearDraftOnSubmit = &v
	}
	if cfg.Chat.PersistKey == "" {
		cfg.Chat.PersistKey = "first_message"
	}
	if cfg.Chat.SessionIdleTTL <= 0 {
		cfg.Chat.SessionIdleTTL = time.Hour
	}
	if cfg.Chat.ReapInterval <= 0 {
		cfg.Chat.ReapInterval = time.Minute
	}
	if cfg.Worker.Workers <= 0 {
		cfg.Worker.Workers = 8
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "./data/chat.db"
	}
	if cfg.Security.CookieTTL <= 0 {
		cfg.Security.CookieTTL = 30 * 24 * time.Hour
	}
	if cfg.Security.SessionSecret == "" && cfg.Runtime.Dev {
		cfg.Security.SessionSecret = devSessionSecret
	}
}

// Validate checks the combinations LoadConfig cannot default.
func (c *Config) Validate() error {
	switch strings.ToLower(c.AI.Transport) {
	case "http", "sdk", "noop":
	default:
		return fmt.Errorf("ai.transport must be http, sdk or noop; got %q", c.AI.Transport)
	}
	switch c.Chat.PersistKey {
	case "first_message", "conversation_id":
	default:
		return fmt.Errorf("chat.persist_key must be first_message or conversation_id; got %q", c.Chat.PersistKey)
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		return fmt.Errorf("chat.temperature out of range: %v", c.Chat.Temperature)
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "memory":
	case "redis":
		if c.Storage.Redis.URL == "" {
			return errors.New("storage.redis.url is required for the redis driver")
		}
	case "postgres":
		if c.Storage.Postgres.URL == "" {
			return errors.New("storage.postgres.url is required for the postgres driver")
		}
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if n := len(c.Security.EncryptionKey); n != 0 && n != 16 && n != 24 && n != 32 {
		return fmt.Errorf("security.encryption_key must be 16, 24, or 32 bytes; got %d", n)
	}
	if c.Security.SessionSecret == "" {
		return errors.New("security.session_secret is required")
	}
	return nil
}
