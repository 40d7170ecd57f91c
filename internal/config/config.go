// Package config defines the global configuration structure for the calwatch
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"

	"calwatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the calwatch service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"calwatch"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	AWS      AWSConfig
	Reminder ReminderConfig
}

// ServerConfig holds HTTP server configuration for the interactive API.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// RequestTimeout is the soft deadline applied to request contexts.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// SMTPConfig holds the outbound mail transport configuration.
type SMTPConfig struct {
	Host     string       `envconfig:"SMTP_HOST" validate:"required"`
	Port     int          `envconfig:"SMTP_PORT" default:"587"`
	Username string       `envconfig:"SMTP_USERNAME"`
	Password SecretString `envconfig:"SMTP_PASSWORD"`
	FromAddr string       `envconfig:"SMTP_FROM_ADDR" validate:"required,email"`
	FromName string       `envconfig:"SMTP_FROM_NAME" default:"Calendar Reminders"`
	// SendTimeout bounds one SMTP dial-and-send so a hung transport call
	// cannot stall a reminder pass indefinitely.
	SendTimeout time.Duration `envconfig:"SMTP_SEND_TIMEOUT" default:"30s"`
}

// AWSConfig holds AWS resource identifiers for the real-time bus and
// telemetry backends.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// BusQueueURL is the SQS queue the real-time delivery collaborator
	// consumes reminder payloads from.
	BusQueueURL string `envconfig:"SQS_REMINDER_BUS" validate:"required,url"`

	// MetricsNamespace is the CloudWatch namespace for pass and API metrics.
	// Empty disables metric emission (local development).
	MetricsNamespace string `envconfig:"CLOUDWATCH_NAMESPACE"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ReminderConfig tunes the reminder engine itself.
type ReminderConfig struct {
	// PassInterval is both the cron cadence of the reminder pass and the
	// lookahead horizon handed to the candidate pre-filter. Must be positive;
	// a zero or negative interval aborts the pass without touching the
	// cursor.
	PassInterval time.Duration `envconfig:"REMINDER_PASS_INTERVAL" default:"30m"`

	// NotifLookahead is the forward window of the interactive
	// "what's due for me" path.
	NotifLookahead time.Duration `envconfig:"REMINDER_NOTIF_LOOKAHEAD" default:"24h"`

	// BootstrapGrace widens the default candidate horizon past the earliest
	// future trigger so the very next alarm is never missed when no explicit
	// horizon is given.
	BootstrapGrace time.Duration `envconfig:"REMINDER_BOOTSTRAP_GRACE" default:"5m"`

	// MaxOccurrences caps recurrence expansion per event as a safety net
	// against pathological rules.
	MaxOccurrences int `envconfig:"REMINDER_MAX_OCCURRENCES" default:"5000"`
}
