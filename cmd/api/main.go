// Package main provides the entrypoint for the tourist safety API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/dexxeth/tourist-safety-shield/internal/activity"
	"github.com/dexxeth/tourist-safety-shield/internal/alerts"
	"github.com/dexxeth/tourist-safety-shield/internal/api"
	"github.com/dexxeth/tourist-safety-shield/internal/api/handler"
	"github.com/dexxeth/tourist-safety-shield/internal/api/middleware"
	"github.com/dexxeth/tourist-safety-shield/internal/auth"
	"github.com/dexxeth/tourist-safety-shield/internal/config"
	"github.com/dexxeth/tourist-safety-shield/internal/dashboard"
	"github.com/dexxeth/tourist-safety-shield/internal/digitalid"
	"github.com/dexxeth/tourist-safety-shield/internal/database"
	"github.com/dexxeth/tourist-safety-shield/internal/location"
	"github.com/dexxeth/tourist-safety-shield/internal/places"
	"github.com/dexxeth/tourist-safety-shield/internal/profile"
	"github.com/dexxeth/tourist-safety-shield/internal/provider/resilience"
	"github.com/dexxeth/tourist-safety-shield/internal/realtime"
	"github.com/dexxeth/tourist-safety-shield/internal/routing"
	"github.com/dexxeth/tourist-safety-shield/internal/sos"
	"github.com/dexxeth/tourist-safety-shield/internal/sos/notifyclient"
	"github.com/dexxeth/tourist-safety-shield/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "tss-api"

// repositories groups the storage of every domain. Each is either
// Postgres-backed or in-memory.
type repositories struct {
	locations location.Repository
	alerts    alerts.Repository
	places    places.Repository
	profiles  profile.Repository
	incidents sos.IncidentRepository
	contacts  sos.ContactRepository
	notices   sos.NotificationRepository
	ids       digitalid.Repository
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		// A malformed .env is reported but not fatal; the environment still applies.
		_, _ = os.Stderr.WriteString("ignoring .env: " + err.Error() + "\n")
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := telemetry.NewLogger(telemetry.LoggerConfig{
		Service: serviceName,
		Version: Version,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	log.Info().Str("build_time", BuildTime).Str("env", cfg.Env).Msg("starting tourist safety API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	httpMetrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize http metrics")
	}
	instruments, err := telemetry.NewInstruments(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize domain metrics")
	}

	if cfg.Auth.JWTSigningKey == "" {
		if cfg.IsProduction() {
			log.Fatal().Msg("JWT_SIGNING_KEY is required in production")
		}
		cfg.Auth.JWTSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	if cfg.Auth.ServiceToken == "" {
		log.Warn().Msg("SERVICE_TOKEN not set - /v1/sos/notify will reject every call")
	}

	hub := realtime.NewHub(realtime.HubConfig{Logger: log})
	defer hub.Close()

	dbConfig := database.ConfigFromEnv()
	var pool *pgxpool.Pool
	if dbConfig.Enabled() {
		pool, err = database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().Str("host", dbConfig.Host).Str("database", dbConfig.Database).Msg("database connected")
	} else {
		log.Warn().Msg("no database configured, using in-memory storage")
	}

	feed, err := startRealtime(ctx, cfg, hub, pool, dbConfig, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start realtime feed")
	}
	defer feed.Close()

	repos := newRepositories(pool, feed.Publisher)

	registry := resilience.NewRegistry()
	geocoder, err := newGeocoder(cfg.Providers, registry, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize geocoder")
	}
	routeProvider := newRouteProvider(cfg.Providers, registry, log)

	store := location.NewStore(location.StoreConfig{
		Repository:     repos.locations,
		Throttle:       feed.Throttle(cfg.Location.ThrottleWindow),
		ThrottleWindow: cfg.Location.ThrottleWindow,
		Variant:        location.SchemaVariant(cfg.Location.SchemaVariant),
		Geocoder:       geocoder,
		Observer:       instruments,
		Logger:         log,
	})
	watcher := location.NewWatcher(store, hub, log)

	alertAgg := alerts.NewAggregator(alerts.AggregatorConfig{Repository: repos.alerts, Subscriber: hub, Logger: log})
	finder := places.NewFinder(repos.places, log)
	scores := profile.NewScores(repos.profiles, hub, log)

	notifyService := sos.NewNotifyService(repos.notices, log)
	var notifier sos.Notifier = notifyService
	if cfg.SOS.NotifyURL != "" {
		notifier = notifyclient.New(notifyclient.Config{
			BaseURL:      cfg.SOS.NotifyURL,
			ServiceToken: cfg.Auth.ServiceToken,
			Timeout:      cfg.SOS.NotifyTimeout,
		})
		log.Info().Str("url", cfg.SOS.NotifyURL).Msg("sos notifications sent to remote endpoint")
	}
	manager := sos.NewManager(sos.SessionConfig{
		Incidents:   repos.incidents,
		Contacts:    repos.contacts,
		Notifier:    notifier,
		Locations:   store,
		Observer:    instruments,
		Countdown:   cfg.SOS.Countdown,
		Dwell:       cfg.SOS.Dwell,
		ContactsMax: cfg.SOS.ContactsMax,
		Logger:      log,
	})

	routes := routing.NewService(routing.ServiceConfig{
		Provider:    routeProvider,
		Alerts:      alertAgg,
		AlertWindow: cfg.Alerts.RouteWindow,
		Logger:      log,
	})

	checks := map[string]handler.Check{}
	if pool != nil {
		checks["database"] = pool.Ping
	}

	router := api.NewRouter(api.RouterConfig{
		Version:      Version,
		ServiceName:  serviceName,
		Logger:       log,
		Metrics:      httpMetrics,
		RequireTLS:   cfg.IsProduction(),
		Tokens:       auth.NewVerifier(auth.Config{SigningKey: cfg.Auth.JWTSigningKey}),
		ServiceToken: cfg.Auth.ServiceToken,
		Locations:    store,
		Alerts:       alertAgg,
		Routes:       routes,
		Places:       finder,
		Geocoder:     geocoder,
		SOS:          manager,
		Notifier:     notifyService,
		Stats: dashboard.NewAggregator(dashboard.Config{
			Locations: watcher,
			Alerts:    alertAgg,
			Places:    finder,
			Scores:    scores,
			Logger:    log,
		}),
		Activity: activity.NewFeed(activity.Config{
			Locations:  store,
			Alerts:     alertAgg,
			Scores:     scores,
			Subscriber: hub,
			Logger:     log,
		}),
		Scores:    scores,
		IDs:       digitalid.NewService(repos.ids, digitalid.ServiceConfig{Logger: log}),
		Checks:    checks,
		Providers: registry,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// WriteTimeout stays zero so event streams are not cut off.
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server stopped")
}

func newRepositories(pool *pgxpool.Pool, pub realtime.Publisher) repositories {
	if pool != nil {
		sosRepo := sos.NewPostgresRepository(pool)
		return repositories{
			locations: location.NewPostgresRepository(pool),
			alerts:    alerts.NewPostgresRepository(pool),
			places:    places.NewPostgresRepository(pool),
			profiles:  profile.NewPostgresRepository(pool),
			incidents: sosRepo,
			contacts:  sosRepo,
			notices:   sosRepo,
			ids:       digitalid.NewPostgresRepository(pool),
		}
	}
	sosRepo := sos.NewInMemoryRepository()
	return repositories{
		locations: location.NewInMemoryRepository(pub),
		alerts:    alerts.NewInMemoryRepository(pub),
		places:    places.NewInMemoryRepository(),
		profiles:  profile.NewInMemoryRepository(pub),
		incidents: sosRepo,
		contacts:  sosRepo,
		notices:   sosRepo,
		ids:       digitalid.NewInMemoryRepository(),
	}
}
