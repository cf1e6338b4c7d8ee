package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// SMTP transport
	// ----------------------------
	SMTPHost     string `envconfig:"SMTP_HOST" required:"true"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" required:"true"`

	// ----------------------------
	// List manager
	// ----------------------------
	// SympaCommandEmail is the mailbox the list manager parses commands from.
	SympaCommandEmail string `envconfig:"SYMPA_COMMAND_EMAIL" required:"true"`
	// SenderEmail is the service account moderation commands originate from.
	SenderEmail string `envconfig:"SENDER_EMAIL" required:"true"`

	// ----------------------------
	// Processing
	// ----------------------------
	RateLimit     int           `envconfig:"RATE_LIMIT" default:"5"`
	SyncBatchSize int           `envconfig:"SYNC_BATCH_SIZE" default:"50"`
	// SweepInterval enables the built-in moderation sweep ticker when
	// non-zero; leave at 0 when an external scheduler drives the sweep.
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"0"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Database
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
}

func Load() (*Config, error) {
	// A .env file is optional; real deployments set the environment.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	// envconfig's required tag only fires when a variable is unset; one
	// exported as an empty string slips through. A missing credential
	// must fail the whole run up front, not every dispatch later.
	for key, value := range map[string]string{
		"SMTP_HOST":           cfg.SMTPHost,
		"SMTP_PASSWORD":       cfg.SMTPPassword,
		"SYMPA_COMMAND_EMAIL": cfg.SympaCommandEmail,
		"SENDER_EMAIL":        cfg.SenderEmail,
		"DATABASE_URL":        cfg.DatabaseURL,
	} {
		if value == "" {
			return nil, fmt.Errorf("required configuration %s is empty", key)
		}
	}

	return &cfg, nil
}
