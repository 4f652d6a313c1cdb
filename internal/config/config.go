// Package config provides configuration loading and management for the application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Default location is Amsterdam; the advisor's weekday rules follow CET.
const (
	DefaultLatitude  = 52.3676
	DefaultLongitude = 4.9041
	DefaultZenith    = 90.833 // official zenith for sunrise/sunset
	DefaultTimezone  = "Europe/Amsterdam"
)

// Location is the fixed geographic coordinate and civil timezone used by the
// solar calculator and the Friday sequencer.
type Location struct {
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	Zenith    float64 `yaml:"zenith" json:"zenith"`
	Timezone  string  `yaml:"timezone" json:"timezone"`

	tz *time.Location
}

// TZ returns the resolved timezone, falling back to UTC when it was never
// resolved or cannot be loaded.
func (l Location) TZ() *time.Location {
	if l.tz != nil {
		return l.tz
	}
	if loc, err := time.LoadLocation(l.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

// Resolve loads the configured timezone and caches it on the returned copy.
func (l Location) Resolve() (Location, error) {
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return l, fmt.Errorf("unknown timezone %q: %w", l.Timezone, err)
	}
	l.tz = loc
	return l, nil
}

// DefaultLocation returns the Amsterdam location with its timezone resolved.
func DefaultLocation() Location {
	l := Location{
		Latitude:  DefaultLatitude,
		Longitude: DefaultLongitude,
		Zenith:    DefaultZenith,
		Timezone:  DefaultTimezone,
	}
	if resolved, err := l.Resolve(); err == nil {
		return resolved
	}
	return l
}

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string

	// Location drives sunrise/sunset and the Friday/weekday mode
	Location Location

	// Minimum absolute distance for the Friday close-to-money roll
	CTMMinAbsDiff decimal.Decimal

	// OpenTelemetry endpoint for observability
	OtelEndpoint string

	// Request handling
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	// Decision export webhook; empty URL disables export
	WebhookURL     string
	WebhookAPIKey  string
	ExportInterval time.Duration
	ExportBatch    int
	SignExports    bool
	SigningKey     string // hex secp256k1 key; generated at start-up when empty
}

// fileOverlay is the subset of settings that may come from CONFIG_FILE.
type fileOverlay struct {
	Location      *Location `yaml:"location"`
	CTMMinAbsDiff *string   `yaml:"ctm_min_abs_diff"`
}

// Load creates a new Config from .env files, environment variables and an
// optional YAML file named by CONFIG_FILE. Environment variables win over
// the file.
func Load() Config {
	_ = godotenv.Load(".env", ".env.local")

	cfg := Config{
		Port:           GetEnvOrDefault("PORT", "8080"),
		Location:       DefaultLocation(),
		CTMMinAbsDiff:  decimal.RequireFromString("0.25"),
		OtelEndpoint:   GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		RequestTimeout: GetEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),
		RateLimitRPS:   GetEnvAsFloat("RATE_LIMIT_RPS", 10.0),
		RateLimitBurst: GetEnvAsInt("RATE_LIMIT_BURST", 20),
		WebhookURL:     GetEnvOrDefault("WEBHOOK_URL", ""),
		WebhookAPIKey:  GetEnvOrDefault("WEBHOOK_API_KEY", ""),
		ExportInterval: GetEnvAsDuration("EXPORT_INTERVAL", time.Minute),
		ExportBatch:    GetEnvAsInt("EXPORT_BATCH_SIZE", 50),
		SignExports:    GetEnvAsBool("SIGN_EXPORTS", false),
		SigningKey:     GetEnvOrDefault("SIGNING_KEY", ""),
	}

	if path, ok := GetEnv("CONFIG_FILE"); ok && path != "" {
		if err := cfg.applyFile(path); err != nil {
			logrus.Warnf("Ignoring config file %s: %v", path, err)
		}
	}

	cfg.Location.Latitude = GetEnvAsFloat("LSO_LATITUDE", cfg.Location.Latitude)
	cfg.Location.Longitude = GetEnvAsFloat("LSO_LONGITUDE", cfg.Location.Longitude)
	cfg.Location.Zenith = GetEnvAsFloat("LSO_ZENITH", cfg.Location.Zenith)
	cfg.Location.Timezone = GetEnvOrDefault("LSO_TIMEZONE", cfg.Location.Timezone)
	cfg.CTMMinAbsDiff = GetEnvAsDecimal("CTM_MIN_ABS_DIFF", cfg.CTMMinAbsDiff)

	if resolved, err := cfg.Location.Resolve(); err == nil {
		cfg.Location = resolved
	}

	return cfg
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if overlay.Location != nil {
		loc := *overlay.Location
		if loc.Zenith == 0 {
			loc.Zenith = DefaultZenith
		}
		if loc.Timezone == "" {
			loc.Timezone = DefaultTimezone
		}
		c.Location = loc
	}
	if overlay.CTMMinAbsDiff != nil {
		d, err := decimal.NewFromString(*overlay.CTMMinAbsDiff)
		if err != nil {
			return fmt.Errorf("ctm_min_abs_diff: %w", err)
		}
		c.CTMMinAbsDiff = d
	}
	return nil
}

// Validate rejects settings the solar and decision code cannot work with.
func (c Config) Validate() error {
	if c.Location.Latitude < -90 || c.Location.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %f", c.Location.Latitude)
	}
	if c.Location.Longitude < -180 || c.Location.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %f", c.Location.Longitude)
	}
	if c.Location.Zenith <= 0 || c.Location.Zenith >= 180 {
		return fmt.Errorf("zenith out of range: %f", c.Location.Zenith)
	}
	if _, err := time.LoadLocation(c.Location.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", c.Location.Timezone, err)
	}
	if c.WebhookURL != "" && c.ExportBatch < 1 {
		return fmt.Errorf("export batch size must be positive: %d", c.ExportBatch)
	}
	if c.CTMMinAbsDiff.IsNegative() {
		return fmt.Errorf("negative CTM minimum difference: %s", c.CTMMinAbsDiff)
	}
	return nil
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a boolean with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvAsDecimal retrieves an environment variable as a decimal with a default value
func GetEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value, exists := GetEnv(key); exists {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
