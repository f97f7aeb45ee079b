package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// DevJWTSecret is used when MAILGATE_JWT_SECRET is unset. Serve logs a
// warning when it is in effect.
const DevJWTSecret = "dev-secret-change-me"

type Config struct {
	HTTPAddr  string `env:"MAILGATE_HTTP_ADDR" envDefault:":8080"`
	LogLevel  string `env:"MAILGATE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"MAILGATE_LOG_FORMAT" envDefault:"json"`

	// Empty DBDSN keeps messages in memory; empty RedisURL keeps sessions in
	// memory.
	DBDSN    string `env:"MAILGATE_DB_DSN"`
	RedisURL string `env:"MAILGATE_REDIS_URL"`

	UsersPath  string `env:"MAILGATE_USERS_PATH"`
	PolicyPath string `env:"MAILGATE_POLICY_PATH"`

	JWTSecret   string        `env:"MAILGATE_JWT_SECRET"`
	JWTExpiry   time.Duration `env:"MAILGATE_JWT_EXPIRY" envDefault:"1h"`
	JWTIssuer   string        `env:"MAILGATE_JWT_ISSUER" envDefault:"mailgate"`
	JWTAudience string        `env:"MAILGATE_JWT_AUDIENCE" envDefault:"mailgate-api"`
	BcryptCost  int           `env:"MAILGATE_BCRYPT_COST" envDefault:"10"`
	SessionMode string        `env:"MAILGATE_SESSION_MODE" envDefault:"single"`

	PublicPaths []string `env:"MAILGATE_PUBLIC_PATHS" envSeparator:"," envDefault:"/api/v1/auth/token,/healthz,/metrics"`
	CORSOrigins []string `env:"MAILGATE_CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	SMTP SMTPConfig `envPrefix:"MAILGATE_SMTP_"`
}

type SMTPConfig struct {
	Addr     string `env:"ADDR"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = DevJWTSecret
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.JWTExpiry <= 0 {
		errs = append(errs, fmt.Errorf("MAILGATE_JWT_EXPIRY must be positive, got %s", c.JWTExpiry))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("MAILGATE_BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost))
	}
	switch c.SessionMode {
	case "single", "multi":
	default:
		errs = append(errs, fmt.Errorf("MAILGATE_SESSION_MODE must be single or multi, got %q", c.SessionMode))
	}
	return errors.Join(errs...)
}

func (c Config) UsesDevSecret() bool { return c.JWTSecret == DevJWTSecret }
