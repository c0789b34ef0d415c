// Package config loads runtime settings from an optional YAML file and the
// environment. Environment variables win over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPathEnv names the variable holding the YAML file path.
const ConfigPathEnv = "TSS_CONFIG"

// Realtime backends.
const (
	RealtimeMemory   = "memory"
	RealtimePostgres = "postgres"
	RealtimeRedis    = "redis"
	RealtimeMQTT     = "mqtt"
)

// Config is the full runtime configuration.
type Config struct {
	Env       string          `yaml:"env"`
	Port      string          `yaml:"port"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Location  LocationConfig  `yaml:"location"`
	SOS       SOSConfig       `yaml:"sos"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Places    PlacesConfig    `yaml:"places"`
	Providers ProvidersConfig `yaml:"providers"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Worker    WorkerConfig    `yaml:"worker"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTSigningKey string `yaml:"jwt_signing_key"`
	ServiceToken  string `yaml:"service_token"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// LocationConfig tunes the location store.
type LocationConfig struct {
	ThrottleWindow time.Duration `yaml:"throttle_window"`

	// SchemaVariant pins the insert shape; "auto" tries the fallback chain.
	SchemaVariant string `yaml:"schema_variant"`
}

// SOSConfig tunes the SOS lifecycle.
type SOSConfig struct {
	Countdown     int           `yaml:"countdown"`
	Dwell         time.Duration `yaml:"dwell"`
	ContactsMax   int           `yaml:"contacts_max"`
	SweepSchedule string        `yaml:"sweep_schedule"`

	// NotifyURL is the API root of a remote notify endpoint. Empty stores
	// notifications in-process.
	NotifyURL     string        `yaml:"notify_url"`
	NotifyTimeout time.Duration `yaml:"notify_timeout"`
}

// AlertsConfig holds the alert cutoffs.
type AlertsConfig struct {
	RouteWindow     time.Duration `yaml:"route_window"`
	DashboardWindow time.Duration `yaml:"dashboard_window"`
}

// PlacesConfig tunes the place finders.
type PlacesConfig struct {
	NearbyLimit  int     `yaml:"nearby_limit"`
	HelpRadiusKm float64 `yaml:"help_radius_km"`
}

// ProvidersConfig selects and configures the external providers.
type ProvidersConfig struct {
	Geocoder       string        `yaml:"geocoder"` // nominatim or google
	NominatimURL   string        `yaml:"nominatim_url"`
	GoogleMapsKey  string        `yaml:"google_maps_key"`
	GeocodeTimeout time.Duration `yaml:"geocode_timeout"`

	Router       string        `yaml:"router"` // osrm, openrouteservice or none
	OSRMURL      string        `yaml:"osrm_url"`
	ORSURL       string        `yaml:"ors_url"`
	ORSKey       string        `yaml:"ors_key"`
	RouteTimeout time.Duration `yaml:"route_timeout"`
}

// RealtimeConfig selects the change feed backend.
type RealtimeConfig struct {
	Backend      string `yaml:"backend"`
	Channel      string `yaml:"channel"`
	RedisAddr    string `yaml:"redis_addr"`
	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTClientID string `yaml:"mqtt_client_id"`
}

// WorkerConfig configures the background worker.
type WorkerConfig struct {
	ProjectID        string `yaml:"project_id"`
	Subscription     string `yaml:"subscription"`
	Concurrency      int    `yaml:"concurrency"`
	BackfillBatch    int    `yaml:"backfill_batch"`
	BackfillSchedule string `yaml:"backfill_schedule"`
	// BackfillRecheck is how long unnamed rows are skipped by the backfill.
	BackfillRecheck time.Duration `yaml:"backfill_recheck"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Env:       "development",
		Port:      "8080",
		LogLevel:  "info",
		LogFormat: "json",
		Telemetry: TelemetryConfig{OTLPEndpoint: "localhost:4317"},
		Location: LocationConfig{
			ThrottleWindow: 15 * time.Second,
			SchemaVariant:  "auto",
		},
		SOS: SOSConfig{
			Countdown:     5,
			Dwell:         30 * time.Second,
			ContactsMax:   5,
			SweepSchedule: "@every 1m",
			NotifyTimeout: 10 * time.Second,
		},
		Alerts: AlertsConfig{
			RouteWindow:     6 * time.Hour,
			DashboardWindow: 24 * time.Hour,
		},
		Places: PlacesConfig{
			NearbyLimit:  8,
			HelpRadiusKm: 8,
		},
		Providers: ProvidersConfig{
			Geocoder:       "nominatim",
			GeocodeTimeout: 8 * time.Second,
			Router:         "osrm",
			RouteTimeout:   10 * time.Second,
		},
		Realtime: RealtimeConfig{
			Backend:      RealtimeMemory,
			Channel:      "tss_changes",
			RedisAddr:    "localhost:6379",
			MQTTBroker:   "tcp://localhost:1883",
			MQTTClientID: "tss-api",
		},
		Worker: WorkerConfig{
			Subscription:     "tss-jobs",
			Concurrency:      4,
			BackfillBatch:    100,
			BackfillSchedule: "@every 15m",
			BackfillRecheck:  7 * 24 * time.Hour,
		},
	}
}

// Load reads the file named by TSS_CONFIG (if set) over the defaults and
// applies environment overrides.
func Load() (Config, error) {
	return LoadFile(os.Getenv(ConfigPathEnv))
}

// LoadFile reads path (optional) over the defaults and applies environment
// overrides.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated values.
func (c Config) Validate() error {
	switch c.Realtime.Backend {
	case RealtimeMemory, RealtimePostgres, RealtimeRedis, RealtimeMQTT:
	default:
		return fmt.Errorf("unknown realtime backend %q", c.Realtime.Backend)
	}
	switch c.Providers.Geocoder {
	case "nominatim", "google":
	default:
		return fmt.Errorf("unknown geocoder %q", c.Providers.Geocoder)
	}
	switch c.Providers.Router {
	case "osrm", "openrouteservice", "none":
	default:
		return fmt.Errorf("unknown router %q", c.Providers.Router)
	}
	return nil
}

// IsProduction reports whether Env is production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) applyEnv() error {
	var errs []string
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, key+": "+err.Error())
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, key+": "+err.Error())
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, key+": "+err.Error())
				return
			}
			*dst = d
		}
	}

	str("APP_ENV", &c.Env)
	str("APP_PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	str("JWT_SIGNING_KEY", &c.Auth.JWTSigningKey)
	str("SERVICE_TOKEN", &c.Auth.ServiceToken)

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true"
	}
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)

	duration("LOCATION_THROTTLE_WINDOW", &c.Location.ThrottleWindow)
	str("LOCATION_SCHEMA_VARIANT", &c.Location.SchemaVariant)

	integer("SOS_COUNTDOWN", &c.SOS.Countdown)
	duration("SOS_DWELL", &c.SOS.Dwell)
	integer("SOS_CONTACTS_MAX", &c.SOS.ContactsMax)
	str("SOS_SWEEP_SCHEDULE", &c.SOS.SweepSchedule)
	str("SOS_NOTIFY_URL", &c.SOS.NotifyURL)
	duration("SOS_NOTIFY_TIMEOUT", &c.SOS.NotifyTimeout)

	duration("ALERTS_ROUTE_WINDOW", &c.Alerts.RouteWindow)
	duration("ALERTS_DASHBOARD_WINDOW", &c.Alerts.DashboardWindow)

	integer("PLACES_NEARBY_LIMIT", &c.Places.NearbyLimit)
	float("PLACES_HELP_RADIUS_KM", &c.Places.HelpRadiusKm)

	str("GEOCODER", &c.Providers.Geocoder)
	str("NOMINATIM_URL", &c.Providers.NominatimURL)
	str("GOOGLE_MAPS_API_KEY", &c.Providers.GoogleMapsKey)
	duration("GEOCODE_TIMEOUT", &c.Providers.GeocodeTimeout)
	str("ROUTER", &c.Providers.Router)
	str("OSRM_URL", &c.Providers.OSRMURL)
	str("ORS_URL", &c.Providers.ORSURL)
	str("ORS_API_KEY", &c.Providers.ORSKey)
	duration("ROUTE_TIMEOUT", &c.Providers.RouteTimeout)

	str("REALTIME_BACKEND", &c.Realtime.Backend)
	str("REALTIME_CHANNEL", &c.Realtime.Channel)
	str("REDIS_ADDR", &c.Realtime.RedisAddr)
	str("MQTT_BROKER", &c.Realtime.MQTTBroker)
	str("MQTT_CLIENT_ID", &c.Realtime.MQTTClientID)

	str("GCP_PROJECT_ID", &c.Worker.ProjectID)
	str("PUBSUB_SUBSCRIPTION", &c.Worker.Subscription)
	integer("WORKER_CONCURRENCY", &c.Worker.Concurrency)
	integer("BACKFILL_BATCH", &c.Worker.BackfillBatch)
	str("BACKFILL_SCHEDULE", &c.Worker.BackfillSchedule)
	duration("BACKFILL_RECHECK", &c.Worker.BackfillRecheck)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}
