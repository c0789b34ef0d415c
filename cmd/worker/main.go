// Package main provides the entrypoint for the background worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/api/handler"
	"github.com/dexxeth/tourist-safety-shield/internal/config"
	"github.com/dexxeth/tourist-safety-shield/internal/database"
	"github.com/dexxeth/tourist-safety-shield/internal/geocoding"
	"github.com/dexxeth/tourist-safety-shield/internal/geocoding/googlemaps"
	"github.com/dexxeth/tourist-safety-shield/internal/geocoding/nominatim"
	"github.com/dexxeth/tourist-safety-shield/internal/location"
	"github.com/dexxeth/tourist-safety-shield/internal/provider/resilience"
	"github.com/dexxeth/tourist-safety-shield/internal/sos"
	"github.com/dexxeth/tourist-safety-shield/internal/telemetry"
	"github.com/dexxeth/tourist-safety-shield/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "tss-worker"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
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
	log.Info().Str("build_time", BuildTime).Msg("starting tourist safety worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConfig := database.ConfigFromEnv()
	if !dbConfig.Enabled() {
		log.Fatal().Msg("the worker needs a database: set DATABASE_URL or DB_HOST")
	}
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	locations := location.NewPostgresRepository(pool)
	if err := locations.InstallAreaCheck(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare user_locations for the area backfill")
	}

	registry := resilience.NewRegistry()
	jobs := worker.NewJobs(worker.JobsConfig{
		Config: worker.Config{
			StaleAfter:    cfg.SOS.Dwell + time.Minute,
			BackfillBatch: cfg.Worker.BackfillBatch,
			Concurrency:   cfg.Worker.Concurrency,
			Timeout:       cfg.Providers.GeocodeTimeout,
			RecheckAfter:  cfg.Worker.BackfillRecheck,
		},
		Sweeper:   sos.NewSweeper(sos.NewPostgresRepository(pool), log),
		Locations: locations,
		Geocoder:  newGeocodeProvider(cfg.Providers, registry, log),
		Logger:    log,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           healthRouter(handler.NewOpsHandler(Version, map[string]handler.Check{"database": pool.Ping}, registry, log)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	if cfg.Worker.ProjectID != "" {
		sub, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.Worker.ProjectID,
			SubscriptionName: cfg.Worker.Subscription,
			Runner:           jobs,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() { _ = sub.Close() }()
		go func() {
			if err := sub.Start(ctx); err != nil {
				log.Error().Err(err).Msg("pubsub handler stopped")
				stop()
			}
		}()
	} else {
		scheduler := worker.NewScheduler(jobs, 5*time.Minute, log)
		if err := scheduler.Add(cfg.SOS.SweepSchedule, worker.JobResolveStale); err != nil {
			log.Fatal().Err(err).Msg("invalid sweep schedule")
		}
		if err := scheduler.Add(cfg.Worker.BackfillSchedule, worker.JobBackfillAreas); err != nil {
			log.Fatal().Err(err).Msg("invalid backfill schedule")
		}
		go scheduler.Start(ctx)
		log.Info().Int("jobs", scheduler.Len()).Msg("no pubsub project configured, running jobs on schedule")
	}

	<-ctx.Done()
	log.Info().Msg("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}
	stats := jobs.Stats()
	log.Info().
		Int64("sweeps", stats.Sweeps).
		Int64("stale_resolved", stats.StaleResolved).
		Int64("backfills", stats.Backfills).
		Int64("areas_resolved", stats.AreasResolved).
		Msg("worker stopped")
}

func healthRouter(ops *handler.OpsHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/health/live", ops.Live)
	r.Get("/health/ready", ops.Ready)
	return r
}

// newGeocodeProvider returns the raw provider so the backfill can tell an
// outage from a place with no name.
func newGeocodeProvider(cfg config.ProvidersConfig, registry *resilience.Registry, log zerolog.Logger) geocoding.Geocoder {
	var provider geocoding.Geocoder = nominatim.NewClient(nominatim.ClientConfig{
		BaseURL:  cfg.NominatimURL,
		Timeout:  cfg.GeocodeTimeout,
		Registry: registry,
		Logger:   log,
	})
	if cfg.Geocoder == "google" {
		client, err := googlemaps.NewClient(googlemaps.ClientConfig{APIKey: cfg.GoogleMapsKey, Timeout: cfg.GeocodeTimeout, Logger: log})
		if err != nil {
			log.Warn().Err(err).Msg("google geocoder unavailable, falling back to nominatim")
		} else {
			provider = client
		}
	}
	return provider
}
