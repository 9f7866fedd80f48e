package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ehr/interchange/internal/platform/hl7v2"
	"github.com/ehr/interchange/internal/platform/x12"
)

// Sequence backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// minSigningKeyLen is the shortest HS256 key accepted outside development.
const minSigningKeyLen = 32

type Config struct {
	Port            string `mapstructure:"PORT"`
	Env             string `mapstructure:"ENV"`
	SequenceBackend string `mapstructure:"SEQUENCE_BACKEND"`
	DatabaseURL     string `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL        string `mapstructure:"REDIS_URL"`

	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`

	X12SenderID   string `mapstructure:"X12_SENDER_ID"`
	X12ReceiverID string `mapstructure:"X12_RECEIVER_ID"`
	X12Usage      string `mapstructure:"X12_USAGE"`

	HL7SendingApp        string `mapstructure:"HL7_SENDING_APP"`
	HL7SendingFacility   string `mapstructure:"HL7_SENDING_FACILITY"`
	HL7ReceivingApp      string `mapstructure:"HL7_RECEIVING_APP"`
	HL7ReceivingFacility string `mapstructure:"HL7_RECEIVING_FACILITY"`

	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	TLSEnabled     bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile    string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile     string        `mapstructure:"TLS_KEY_FILE"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
}

var keys = []string{
	"PORT", "ENV", "SEQUENCE_BACKEND", "DATABASE_URL", "DB_MAX_CONNS",
	"DB_MIN_CONNS", "REDIS_URL", "AUTH_SIGNING_KEY", "AUTH_ISSUER",
	"AUTH_AUDIENCE", "X12_SENDER_ID", "X12_RECEIVER_ID", "X12_USAGE",
	"HL7_SENDING_APP", "HL7_SENDING_FACILITY", "HL7_RECEIVING_APP",
	"HL7_RECEIVING_FACILITY", "BODY_LIMIT", "REQUEST_TIMEOUT",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "TLS_ENABLED", "TLS_CERT_FILE",
	"TLS_KEY_FILE", "CORS_ORIGINS",
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("SEQUENCE_BACKEND", BackendMemory)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("X12_SENDER_ID", "SENDER")
	v.SetDefault("X12_RECEIVER_ID", "RECEIVER")
	v.SetDefault("X12_USAGE", "P")
	v.SetDefault("HL7_SENDING_APP", "HEALTHCARE")
	v.SetDefault("HL7_SENDING_FACILITY", "FACILITY")
	v.SetDefault("HL7_RECEIVING_APP", "LAB")
	v.SetDefault("HL7_RECEIVING_FACILITY", "SYSTEM")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Parse CORS_ORIGINS as comma-separated if it came in as a single string
	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	cfg.SequenceBackend = strings.ToLower(strings.TrimSpace(cfg.SequenceBackend))
	cfg.X12Usage = strings.ToUpper(strings.TrimSpace(cfg.X12Usage))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.SequenceBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SEQUENCE_BACKEND is %q", BackendPostgres)
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SEQUENCE_BACKEND is %q", BackendRedis)
		}
	default:
		return fmt.Errorf("SEQUENCE_BACKEND must be \"memory\", \"postgres\", or \"redis\", got %q", c.SequenceBackend)
	}

	if c.X12Usage != "P" && c.X12Usage != "T" {
		return fmt.Errorf("X12_USAGE must be \"P\" or \"T\", got %q", c.X12Usage)
	}
	if len(c.X12SenderID) > 15 || len(c.X12ReceiverID) > 15 {
		return fmt.Errorf("X12_SENDER_ID and X12_RECEIVER_ID must be at most 15 characters")
	}

	if !c.IsDev() && len(c.AuthSigningKey) < minSigningKeyLen {
		return fmt.Errorf("AUTH_SIGNING_KEY of at least %d bytes is required outside development (ENV=%q)", minSigningKeyLen, c.Env)
	}

	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}

// X12Envelope returns the interchange routing for outbound 837 and 835
// files. Control numbers are filled in per submission.
func (c *Config) X12Envelope() x12.Envelope {
	return x12.Envelope{
		SenderID:   c.X12SenderID,
		ReceiverID: c.X12ReceiverID,
		Usage:      c.X12Usage,
	}
}

// HL7Header returns the MSH routing for outbound HL7 messages.
func (c *Config) HL7Header() hl7v2.Header {
	return hl7v2.Header{
		SendingApp:        c.HL7SendingApp,
		SendingFacility:   c.HL7SendingFacility,
		ReceivingApp:      c.HL7ReceivingApp,
		ReceivingFacility: c.HL7ReceivingFacility,
	}
}
