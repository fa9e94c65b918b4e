package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const minSecretLength = 32

type Config struct {
	Env   string `env:"APP_ENV" env-default:"development"`
	Store string `env:"STORE_DRIVER" env-default:"mongo" env-description:"mongo or memory"`

	HTTP  HTTP
	Mongo Mongo
	Auth  Auth
	Mail  Mail
	Log   Log
	CORS  CORS
}

type HTTP struct {
	Port            string        `env:"PORT" env-default:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
}

type Mongo struct {
	URI      string        `env:"CONNECTION_URI" env-default:"mongodb://localhost:27017"`
	Database string        `env:"MONGO_DB" env-default:"moviedb"`
	Timeout  time.Duration `env:"MONGO_TIMEOUT" env-default:"5s"`
}

type Auth struct {
	JWTSecret  string        `env:"JWT_SECRET" env-required:"true"`
	JWTIssuer  string        `env:"JWT_ISSUER" env-default:"moviecatalog"`
	SessionTTL time.Duration `env:"SESSION_TOKEN_TTL" env-default:"168h"`
	ResetTTL   time.Duration `env:"RESET_TOKEN_TTL" env-default:"10m"`
	BcryptCost int           `env:"BCRYPT_COST" env-default:"10"`
}

type Mail struct {
	Driver         string        `env:"MAIL_DRIVER" env-default:"log" env-description:"sendgrid, smtp or log"`
	ClientURL      string        `env:"CLIENT_URL" env-default:"http://localhost:1234"`
	FromAddress    string        `env:"MAIL_FROM" env-default:"noreply@moviecatalog.local"`
	FromName       string        `env:"MAIL_FROM_NAME" env-default:"Movie Catalog"`
	SendGridAPIKey string        `env:"SENDGRID_API_KEY"`
	SMTPServer     string        `env:"SMTP_SERVER"`
	SMTPUser       string        `env:"SMTP_USER"`
	SMTPPassword   string        `env:"SMTP_PASSWORD"`
	Timeout        time.Duration `env:"MAIL_TIMEOUT" env-default:"15s"`
}

type Log struct {
	Level         string `env:"LOG_LEVEL" env-default:"info"`
	Format        string `env:"LOG_FORMAT" env-default:"json"`
	AccessLogFile string `env:"ACCESS_LOG_FILE"`
}

type CORS struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" env-default:"http://localhost:8080,http://localhost:1234,http://localhost:4200" env-separator:","`
}

// Load reads an optional .env file, then the environment. The returned bool
// reports whether a .env file was found.
func Load(envFiles ...string) (*Config, bool, error) {
	foundDotenv := godotenv.Load(envFiles...) == nil

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, foundDotenv, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, foundDotenv, err
	}
	return &cfg, foundDotenv, nil
}

// Validate checks values cleanenv can't express with tags.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Auth.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength))
	}
	if c.Auth.BcryptCost < 10 || c.Auth.BcryptCost > 14 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 10 and 14, got %d", c.Auth.BcryptCost))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TOKEN_TTL must be positive"))
	}
	if c.Auth.ResetTTL <= 0 {
		errs = append(errs, errors.New("RESET_TOKEN_TTL must be positive"))
	}
	switch c.Store {
	case "mongo", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be mongo or memory, got %q", c.Store))
	}
	switch c.Mail.Driver {
	case "log":
	case "sendgrid":
		if c.Mail.SendGridAPIKey == "" {
			errs = append(errs, errors.New("SENDGRID_API_KEY is required for the sendgrid mail driver"))
		}
	case "smtp":
		if c.Mail.SMTPServer == "" || c.Mail.SMTPUser == "" || c.Mail.SMTPPassword == "" {
			errs = append(errs, errors.New("SMTP_SERVER, SMTP_USER and SMTP_PASSWORD are required for the smtp mail driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("MAIL_DRIVER must be sendgrid, smtp or log, got %q", c.Mail.Driver))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the app runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}
