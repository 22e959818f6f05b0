// Package config loads service configuration from the environment.
//
// Every option has a typed default; malformed integers and durations fall
// back to their defaults silently. The only fatal condition is a missing
// API_KEY.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
}

// ServerConfig controls the listen socket and request pipeline.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
	EnableKeepAlive bool
	KeepAliveURL    string
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig controls the embedded store and its connection pool.
type DatabaseConfig struct {
	Path            string
	MigrationDir    string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AuthConfig carries the shared API secret.
type AuthConfig struct {
	APIKey string
}

// defaultOrigins are used when ALLOWED_ORIGINS is unset: local development
// plus the deployed front end.
var defaultOrigins = []string{
	"http://localhost:3000",
	"https://issue-board-front.netlify.app",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_PATH", "./issues.db")
	v.SetDefault("MIGRATION_DIR", "./migrations")
	v.SetDefault("API_KEY", "")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("ENABLE_KEEP_ALIVE", "false")
	v.SetDefault("RENDER", "")
	v.SetDefault("RENDER_EXTERNAL_URL", "")
	v.SetDefault("APP_URL", "")
	return v
}

// Load builds the configuration from environment variables. It fails only
// when API_KEY is empty.
func Load() (*Config, error) {
	v := newViper()

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("HOST"),
			Port:            v.GetString("PORT"),
			ReadTimeout:     durationEnv(v, "SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    durationEnv(v, "SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: durationEnv(v, "SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RequestTimeout:  durationEnv(v, "SERVER_REQUEST_TIMEOUT", 60*time.Second),
			AllowedOrigins:  allowedOrigins(v),
			EnableKeepAlive: v.GetString("ENABLE_KEEP_ALIVE") == "true" || v.GetString("RENDER") != "",
			KeepAliveURL:    keepAliveURL(v),
		},
		Database: loadDatabase(v),
		Auth: AuthConfig{
			APIKey: v.GetString("API_KEY"),
		},
	}

	if cfg.Auth.APIKey == "" {
		return nil, fmt.Errorf("API_KEY environment variable is required")
	}
	return cfg, nil
}

// LoadDatabase loads only the store configuration. The seed utility uses this
// so it can run without the API secret.
func LoadDatabase() DatabaseConfig {
	return loadDatabase(newViper())
}

func loadDatabase(v *viper.Viper) DatabaseConfig {
	return DatabaseConfig{
		Path:            v.GetString("DATABASE_PATH"),
		MigrationDir:    v.GetString("MIGRATION_DIR"),
		MaxOpenConns:    intEnv(v, "DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    intEnv(v, "DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: durationEnv(v, "DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// durationEnv parses a duration literal, falling back to def on absence or
// parse failure. viper's own GetDuration returns zero on bad input, which
// would silently disable timeouts.
func durationEnv(v *viper.Viper, key string, def time.Duration) time.Duration {
	raw := v.GetString(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func intEnv(v *viper.Viper, key string, def int) int {
	raw := v.GetString(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func allowedOrigins(v *viper.Viper) []string {
	raw := v.GetString("ALLOWED_ORIGINS")
	if raw == "" {
		return defaultOrigins
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if o := strings.TrimSpace(p); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return defaultOrigins
	}
	return origins
}

func keepAliveURL(v *viper.Viper) string {
	if url := v.GetString("RENDER_EXTERNAL_URL"); url != "" {
		return url
	}
	return v.GetString("APP_URL")
}
