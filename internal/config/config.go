package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix                = "RATHER"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabaseDriver    = DriverSQLite
	defaultDatabasePath      = "rather.db"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultCookieName        = "rather_session"
	defaultSessionIssuer     = "rather-admin"
	defaultSessionTTLMinutes = 720
	defaultAdminUsername     = "admin"
	defaultDisplayFactor     = 1
	defaultAllowedOrigins    = "*"
	defaultRedisChannel      = "rather-votes"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress string

	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	LogLevel  string
	LogFormat string

	SessionSigningSecret string
	SessionCookieName    string
	SessionIssuer        string
	SessionTTL           time.Duration

	AdminUsername     string
	AdminPasswordHash string

	TallyDisplayFactor int

	AllowedOrigins []string

	TracingEnabled  bool
	TracingEndpoint string

	RedisAddress string
	RedisChannel string
}

// LoadDotEnv reads KEY=VALUE pairs from the given files into the process
// environment. Missing files are ignored and existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("session.signing_secret", "")
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.ttl_minutes", defaultSessionTTLMinutes)
	configViper.SetDefault("admin.username", defaultAdminUsername)
	configViper.SetDefault("admin.password_hash", "")
	configViper.SetDefault("tally.display_factor", defaultDisplayFactor)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("tracing.enabled", false)
	configViper.SetDefault("tracing.endpoint", "")
	configViper.SetDefault("realtime.redis_address", "")
	configViper.SetDefault("realtime.redis_channel", defaultRedisChannel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		DatabaseDriver:       strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:         configViper.GetString("database.path"),
		DatabaseDSN:          configViper.GetString("database.dsn"),
		LogLevel:             configViper.GetString("log.level"),
		LogFormat:            strings.ToLower(strings.TrimSpace(configViper.GetString("log.format"))),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		SessionIssuer:        configViper.GetString("session.issuer"),
		SessionTTL:           time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,
		AdminUsername:        configViper.GetString("admin.username"),
		AdminPasswordHash:    configViper.GetString("admin.password_hash"),
		TallyDisplayFactor:   configViper.GetInt("tally.display_factor"),
		AllowedOrigins:       splitList(configViper.GetString("cors.allowed_origins")),
		TracingEnabled:       configViper.GetBool("tracing.enabled"),
		TracingEndpoint:      configViper.GetString("tracing.endpoint"),
		RedisAddress:         strings.TrimSpace(configViper.GetString("realtime.redis_address")),
		RedisChannel:         configViper.GetString("realtime.redis_channel"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadDatabase parses only the settings needed to open the database, for
// commands that never serve HTTP.
func LoadDatabase(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:   configViper.GetString("database.path"),
		DatabaseDSN:    configViper.GetString("database.dsn"),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      strings.ToLower(strings.TrimSpace(configViper.GetString("log.format"))),
	}
	if err := cfg.validateDatabase(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	if c.TallyDisplayFactor < 1 {
		return fmt.Errorf("tally.display_factor must be at least 1")
	}
	if c.RedisAddress != "" && strings.TrimSpace(c.RedisChannel) == "" {
		return fmt.Errorf("realtime.redis_channel is required when realtime.redis_address is set")
	}
	return c.validateDatabase()
}

func (c AppConfig) validateDatabase() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log.format %q is not supported", c.LogFormat)
	}
	return nil
}

func splitList(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
