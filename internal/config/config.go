package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is shared by every binary; each one validates the sections it uses.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Server      struct {
		Port            string `env:"PORT" envDefault:"3000"`
		ReadTimeout     int    `env:"READ_TIMEOUT" envDefault:"10"`
		WriteTimeout    int    `env:"WRITE_TIMEOUT" envDefault:"15"`
		IdleTimeout     int    `env:"IDLE_TIMEOUT" envDefault:"60"`
		ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT" envDefault:"10"`
	} `envPrefix:"SERVER_"`
	Gate struct {
		Secret            string        `env:"SECRET"`
		Issuer            string        `env:"ISSUER"`
		Leeway            time.Duration `env:"LEEWAY" envDefault:"30s"`
		CookieName        string        `env:"COOKIE_NAME" envDefault:"token"`
		ProtectedPrefixes []string      `env:"PROTECTED_PREFIXES" envDefault:"/admin,/api/admin" envSeparator:","`
		AdminIPWhitelist  string        `env:"ADMIN_IP_WHITELIST" envDefault:"*"`
		SignInPath        string        `env:"SIGN_IN_PATH" envDefault:"/login"`
		ForbiddenPath     string        `env:"FORBIDDEN_PATH" envDefault:"/forbidden"`
		RatePerSecond     float64       `env:"RATE_PER_SECOND" envDefault:"0"`
		RateBurst         int           `env:"RATE_BURST" envDefault:"20"`
		EventBuffer       int           `env:"EVENT_BUFFER" envDefault:"1024"`
	} `envPrefix:"GATE_"`
	Upstream struct {
		URL string `env:"URL" envDefault:"http://localhost:3001"`
	} `envPrefix:"UPSTREAM_"`
	Database struct {
		DSN            string `env:"DSN"`
		ConnectTimeout int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		QueryTimeout   int    `env:"QUERY_TIMEOUT" envDefault:"5"`
		MaxOpenConns   int    `env:"MAX_OPEN_CONNS" envDefault:"10"`
		MaxIdleConns   int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
		MaxIdleTime    int    `env:"MAX_IDLE_TIME" envDefault:"60"`
	} `envPrefix:"DATABASE_"`
	RabbitMQ struct {
		DSN            string `env:"DSN"`
		AlertQueue     string `env:"ALERT_QUEUE" envDefault:"security_alert_queue"`
		PublishTimeout int    `env:"PUBLISH_TIMEOUT" envDefault:"10"`
	} `envPrefix:"RABBITMQ_"`
	Email struct {
		AlertRecipients []string `env:"ALERT_RECIPIENTS" envSeparator:","`
		SMTP            struct {
			Username    string `env:"USERNAME"`
			Password    string `env:"PASSWORD"`
			Host        string `env:"HOST"`
			Port        int    `env:"PORT" envDefault:"465"`
			DialTimeout int    `env:"DIAL_TIMEOUT" envDefault:"10"`
		} `envPrefix:"SMTP_"`
	} `envPrefix:"EMAIL_"`
	API struct {
		BaseURL string        `env:"BASE_URL" envDefault:"http://localhost:8080/api"`
		Timeout time.Duration `env:"TIMEOUT" envDefault:"15s"`
	} `envPrefix:"API_"`
	Session struct {
		Backend     string `env:"BACKEND" envDefault:"file"`
		File        string `env:"FILE"`
		DefaultRole string `env:"DEFAULT_ROLE"`
		RedisPrefix string `env:"REDIS_PREFIX" envDefault:"emil:session"`
	} `envPrefix:"SESSION_"`
	Redis struct {
		Host           string `env:"HOST" envDefault:"localhost"`
		Port           int    `env:"PORT" envDefault:"6379"`
		Password       string `env:"PASSWORD"`
		DB             int    `env:"DB" envDefault:"0"`
		ConnectTimeout int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
	} `envPrefix:"REDIS_"`
}

var (
	ErrMissingSecret     = errors.New("GATE_SECRET is required")
	ErrMissingSMTP       = errors.New("EMAIL_SMTP_HOST and EMAIL_SMTP_USERNAME are required")
	ErrMissingRecipients = errors.New("EMAIL_ALERT_RECIPIENTS is required")
	ErrMissingRabbitMQ   = errors.New("RABBITMQ_DSN is required")
	ErrSessionBackend    = errors.New("SESSION_BACKEND must be one of file, redis, memory")
)

// LoadConfig reads .env files (when present) and then the environment.
// Variables already set in the environment win over .env entries.
func LoadConfig(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		aggErr := env.AggregateError{}
		if ok := errors.As(err, &aggErr); ok {
			// only the first error, so the log line stays readable
			return nil, aggErr.Errors[0]
		}
		return nil, err
	}

	return cfg, nil
}

func (c *Config) ValidateGateway() error {
	if c.Gate.Secret == "" {
		return ErrMissingSecret
	}
	return nil
}

func (c *Config) ValidateAlerter() error {
	if c.RabbitMQ.DSN == "" {
		return ErrMissingRabbitMQ
	}
	if c.Email.SMTP.Host == "" || c.Email.SMTP.Username == "" {
		return ErrMissingSMTP
	}
	if len(c.Email.AlertRecipients) == 0 {
		return ErrMissingRecipients
	}
	return nil
}

func (c *Config) ValidateClient() error {
	switch c.Session.Backend {
	case "file", "redis", "memory":
		return nil
	default:
		return ErrSessionBackend
	}
}
