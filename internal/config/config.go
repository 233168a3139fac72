package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Calls     CallsConfig
	Signaling SignalingConfig
}

type AppConfig struct {
	Env  string `env:"APP_ENV"`
	Port int    `env:"APP_PORT" envDefault:"8080"`
	// LogLevel overrides the env-derived level (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME"`

	// SSLMode is kept explicit for production posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string `env:"DB_SSLMODE"`

	// Pool sizing; zero means the utils.OpenPostgres default.
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME"`
}

type RedisConfig struct {
	Host string `env:"REDIS_HOST"`
	Port int    `env:"REDIS_PORT" envDefault:"6379"`
}

type AuthConfig struct {
	JWTSecret      string        `env:"JWT_SECRET"`
	JWTIssuer      string        `env:"JWT_ISSUER"`
	JWTAudience    string        `env:"JWT_AUDIENCE"`
	AccessTokenTTL time.Duration `env:"JWT_ACCESS_TTL"`
}

type CallsConfig struct {
	// MissedCallTimeout is how long a private call may ring before it is marked missed.
	MissedCallTimeout time.Duration `env:"CALL_MISSED_TIMEOUT" envDefault:"15s"`
}

type SignalingConfig struct {
	WriteTimeout    time.Duration `env:"SIGNALING_WRITE_TIMEOUT" envDefault:"10s"`
	AllowedOrigins  []string      `env:"SIGNALING_ALLOWED_ORIGINS" envSeparator:","`
	MaxConnsPerUser int           `env:"SIGNALING_MAX_CONNS_PER_USER" envDefault:"4"`
}

func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("environment variables are invalid: %w", err)
	}
	c.App.Env = strings.TrimSpace(c.App.Env)
	c.App.LogLevel = strings.ToLower(strings.TrimSpace(c.App.LogLevel))
	c.DB.Host = strings.TrimSpace(c.DB.Host)
	c.DB.User = strings.TrimSpace(c.DB.User)
	c.DB.Name = strings.TrimSpace(c.DB.Name)
	c.DB.SSLMode = strings.TrimSpace(c.DB.SSLMode)
	c.Redis.Host = strings.TrimSpace(c.Redis.Host)

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the configuration and fills env-dependent defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	switch c.App.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.App.LogLevel))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.DB.MaxOpenConns < 0 || c.DB.MaxIdleConns < 0 {
		errs = append(errs, errors.New("DB_MAX_OPEN_CONNS and DB_MAX_IDLE_CONNS must not be negative"))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	if c.Calls.MissedCallTimeout <= 0 {
		c.Calls.MissedCallTimeout = 15 * time.Second
	}
	if c.Signaling.WriteTimeout <= 0 {
		c.Signaling.WriteTimeout = 10 * time.Second
	}
	if c.Signaling.MaxConnsPerUser <= 0 {
		errs = append(errs, fmt.Errorf("SIGNALING_MAX_CONNS_PER_USER must be > 0, got %d", c.Signaling.MaxConnsPerUser))
	}
	if c.IsProduction() && len(c.Signaling.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("SIGNALING_ALLOWED_ORIGINS is required in production"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
