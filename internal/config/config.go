package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hospital/hms/internal/availability"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	Store           string        `mapstructure:"STORE"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	CacheTTL        time.Duration `mapstructure:"CACHE_TTL"`
	CacheSize       int           `mapstructure:"CACHE_SIZE"`
	AMQPURL         string        `mapstructure:"AMQP_URL"`
	AMQPExchange    string        `mapstructure:"AMQP_EXCHANGE"`
	ClinicTimezone  string        `mapstructure:"CLINIC_TIMEZONE"`
	SlotGranularity int           `mapstructure:"SLOT_GRANULARITY_MINUTES"`
	ScanWindowStart string        `mapstructure:"SCAN_WINDOW_START"`
	ScanWindowEnd   string        `mapstructure:"SCAN_WINDOW_END"`
	PatientNotice   time.Duration `mapstructure:"PATIENT_NOTICE"`
	StaffNotice     time.Duration `mapstructure:"STAFF_NOTICE"`
	AuthSigningKey  string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer      string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience    string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
	MaxBodySize     string        `mapstructure:"MAX_BODY_SIZE"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL", "STORE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "CACHE_TTL", "CACHE_SIZE",
	"AMQP_URL", "AMQP_EXCHANGE",
	"CLINIC_TIMEZONE", "SLOT_GRANULARITY_MINUTES", "SCAN_WINDOW_START", "SCAN_WINDOW_END",
	"PATIENT_NOTICE", "STAFF_NOTICE",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"MAX_BODY_SIZE", "REQUEST_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE", StorePostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("CACHE_SIZE", 0)
	v.SetDefault("AMQP_EXCHANGE", "hms.events")
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("SLOT_GRANULARITY_MINUTES", availability.DefaultGranularity)
	v.SetDefault("SCAN_WINDOW_START", "06:00")
	v.SetDefault("SCAN_WINDOW_END", "22:00")
	v.SetDefault("PATIENT_NOTICE", "2h")
	v.SetDefault("STAFF_NOTICE", "30m")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("MAX_BODY_SIZE", "64K")
	v.SetDefault("REQUEST_TIMEOUT", "15s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// The env form is a comma separated list; trim whatever the decoder produced.
	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))

	if cfg.Store != StoreMemory && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesMemoryStore reports whether records are kept in process memory.
func (c *Config) UsesMemoryStore() bool {
	return c.Store == StoreMemory
}

// Location loads the clinic time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Window parses the daily range ListSlots scans.
func (c *Config) Window() (availability.Window, error) {
	start, err := availability.ParseTimeOfDay(c.ScanWindowStart)
	if err != nil {
		return availability.Window{}, fmt.Errorf("SCAN_WINDOW_START: %w", err)
	}
	end, err := availability.ParseEndTimeOfDay(c.ScanWindowEnd)
	if err != nil {
		return availability.Window{}, fmt.Errorf("SCAN_WINDOW_END: %w", err)
	}
	if start >= end {
		return availability.Window{}, fmt.Errorf("scan window %s-%s: %w", start, end, availability.ErrInvalidTimeRange)
	}
	return availability.Window{Start: start, End: end}, nil
}

// Policy returns the modification notice per role.
func (c *Config) Policy() availability.Policy {
	return availability.Policy{PatientNotice: c.PatientNotice, StaffNotice: c.StaffNotice}
}

// Validate checks that the configuration is safe to run. Outside development
// AUTH_SIGNING_KEY must be set so that real JWT authentication is enforced.
func (c *Config) Validate() error {
	if c.Store != StorePostgres && c.Store != StoreMemory {
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.Store == StorePostgres && c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Window(); err != nil {
		return err
	}
	if c.SlotGranularity <= 0 || c.SlotGranularity > availability.MinutesPerDay {
		return fmt.Errorf("SLOT_GRANULARITY_MINUTES must be between 1 and %d, got %d", availability.MinutesPerDay, c.SlotGranularity)
	}
	if c.PatientNotice < 0 || c.StaffNotice < 0 {
		return fmt.Errorf("PATIENT_NOTICE and STAFF_NOTICE must not be negative")
	}
	if c.CacheTTL < 0 || c.CacheSize < 0 {
		return fmt.Errorf("CACHE_TTL and CACHE_SIZE must not be negative")
	}
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_SIGNING_KEY must be set when ENV=%q. "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if c.AMQPURL != "" && c.AMQPExchange == "" {
		return fmt.Errorf("AMQP_EXCHANGE is required when AMQP_URL is set")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative")
	}
	return nil
}
