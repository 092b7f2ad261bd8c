// Package config loads the application configuration from the environment
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Local store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	App    AppConfig
	Server ServerConfig
	Remote RemoteConfig
	Local  LocalConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Chat   ChatConfig
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string
	Environment string // development, production
	LogLevel    string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// RemoteConfig holds the hosted backend settings. An empty DatabaseURL
// selects local mode for the whole application.
type RemoteConfig struct {
	DatabaseURL string
	JWTSecret   string
	SessionTTL  time.Duration
	AutoMigrate bool
	SiteURL     string
}

// LocalConfig holds the local mock backend settings.
type LocalConfig struct {
	Store   string // memory, file or redis
	Dir     string
	Latency time.Duration
}

// RedisConfig holds Redis connection settings for the redis local store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// AuthConfig holds session settings.
type AuthConfig struct {
	Timeout time.Duration
}

// ChatConfig holds the AI assistant settings. Without an API key the canned
// assistant is used.
type ChatConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// RemoteEnabled reports whether remote credentials are configured.
func (c *Config) RemoteEnabled() bool {
	return c.Remote.DatabaseURL != ""
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit .env path. A missing file is not an
// error.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := bind(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "cielo-abierto")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("SERVER_ALLOWED_ORIGINS", "*")

	v.SetDefault("REMOTE_DATABASE_URL", "")
	v.SetDefault("REMOTE_JWT_SECRET", "")
	v.SetDefault("REMOTE_SESSION_TTL", "1h")
	v.SetDefault("REMOTE_AUTO_MIGRATE", true)
	v.SetDefault("REMOTE_SITE_URL", "http://localhost:5173")

	v.SetDefault("LOCAL_STORE", StoreFile)
	v.SetDefault("LOCAL_STORE_DIR", "data")
	v.SetDefault("MOCK_LATENCY", "800ms")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "cielo:")

	v.SetDefault("AUTH_TIMEOUT", "10s")

	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("GEMINI_BASE_URL", "")
}

func bind(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENV")
	cfg.App.LogLevel = v.GetString("LOG_LEVEL")

	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.ShutdownTimeout = v.GetDuration("SERVER_SHUTDOWN_TIMEOUT")
	for _, o := range strings.Split(v.GetString("SERVER_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, o)
		}
	}

	cfg.Remote.DatabaseURL = strings.TrimSpace(v.GetString("REMOTE_DATABASE_URL"))
	cfg.Remote.JWTSecret = v.GetString("REMOTE_JWT_SECRET")
	cfg.Remote.SessionTTL = v.GetDuration("REMOTE_SESSION_TTL")
	cfg.Remote.AutoMigrate = v.GetBool("REMOTE_AUTO_MIGRATE")
	cfg.Remote.SiteURL = v.GetString("REMOTE_SITE_URL")

	cfg.Local.Store = strings.ToLower(v.GetString("LOCAL_STORE"))
	cfg.Local.Dir = v.GetString("LOCAL_STORE_DIR")
	cfg.Local.Latency = v.GetDuration("MOCK_LATENCY")

	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.Prefix = v.GetString("REDIS_PREFIX")

	cfg.Auth.Timeout = v.GetDuration("AUTH_TIMEOUT")

	cfg.Chat.APIKey = v.GetString("GEMINI_API_KEY")
	cfg.Chat.Model = v.GetString("GEMINI_MODEL")
	cfg.Chat.BaseURL = v.GetString("GEMINI_BASE_URL")

	return cfg
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Local.Store {
	case StoreMemory, StoreFile, StoreRedis:
	default:
		return fmt.Errorf("invalid LOCAL_STORE %q: want memory, file or redis", c.Local.Store)
	}
	if c.Local.Store == StoreFile && c.Local.Dir == "" {
		return errors.New("LOCAL_STORE_DIR is required for the file store")
	}
	if c.Local.Latency < 0 {
		return fmt.Errorf("invalid MOCK_LATENCY: %s", c.Local.Latency)
	}
	if c.Auth.Timeout <= 0 {
		return fmt.Errorf("invalid AUTH_TIMEOUT: %s", c.Auth.Timeout)
	}
	if c.RemoteEnabled() {
		if c.Remote.JWTSecret == "" {
			return errors.New("REMOTE_JWT_SECRET is required when REMOTE_DATABASE_URL is set")
		}
		if c.App.Environment == "production" && len(c.Remote.JWTSecret) < 32 {
			return errors.New("REMOTE_JWT_SECRET must be at least 32 characters in production")
		}
	}
	return nil
}
