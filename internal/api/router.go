// Package api wires the HTTP routes of the tourist safety backend.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/api/handler"
	"github.com/dexxeth/tourist-safety-shield/internal/api/middleware"
	"github.com/dexxeth/tourist-safety-shield/internal/provider/resilience"
	"github.com/dexxeth/tourist-safety-shield/internal/sos"
)

// RouterConfig holds the router collaborators.
type RouterConfig struct {
	Version     string
	ServiceName string
	Logger      zerolog.Logger
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Tokens       middleware.TokenVerifier
	ServiceToken string

	Locations handler.LocationStore
	Alerts    handler.AlertReader
	Routes    handler.RouteSuggester
	Places    handler.PlaceFinder
	Geocoder  handler.Geocoder
	SOS       handler.SOSController
	Notifier  sos.Notifier
	Stats     handler.StatsSource
	Activity  handler.ActivitySource
	Scores    handler.ScoreReader
	IDs       handler.DigitalIDs

	Checks    map[string]handler.Check
	Providers *resilience.Registry
}

// NewRouter builds the chi router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "tss-api"
	}

	// Order matters: the request id feeds tracing and logs, recovery sits
	// inside the logger so panics are logged as 500s.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.RequireJSON)

	ops := handler.NewOpsHandler(cfg.Version, cfg.Checks, cfg.Providers, cfg.Logger)
	locations := handler.NewLocationHandler(cfg.Locations, cfg.Logger)
	alerts := handler.NewAlertHandler(cfg.Alerts, cfg.Logger)
	routes := handler.NewRouteHandler(cfg.Routes, cfg.Logger)
	places := handler.NewPlacesHandler(cfg.Places)
	geocode := handler.NewGeocodeHandler(cfg.Geocoder)
	sosHandler := handler.NewSOSHandler(cfg.SOS, cfg.Notifier, cfg.Logger)
	dash := handler.NewDashboardHandler(cfg.Stats, cfg.Activity, cfg.Scores, cfg.Logger)
	ids := handler.NewDigitalIDHandler(cfg.IDs, cfg.Logger)

	authenticate := middleware.Auth(cfg.Tokens)
	byUser := middleware.RateLimitByUser

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", ops.Live)
		r.Get("/ready", ops.Ready)
	})

	r.Route("/v1", func(r chi.Router) {
		r.With(middleware.RateLimitByIP(middleware.StandardRateLimit)).Get("/meta/providers", ops.Providers)

		// Called by other services, not by the app.
		r.With(
			middleware.RateLimitByIP(middleware.SOSRateLimit),
			middleware.ServiceToken(cfg.ServiceToken),
		).Post("/sos/notify", sosHandler.Notify)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Route("/locations", func(r chi.Router) {
				r.Use(byUser(middleware.LocationRateLimit))
				r.Post("/", locations.Record)
				r.Post("/share", locations.Share)
				r.Get("/latest", locations.Latest)
			})

			r.Route("/sos", func(r chi.Router) {
				r.Use(byUser(middleware.SOSRateLimit))
				r.Post("/press", sosHandler.Press)
				r.Post("/cancel", sosHandler.Cancel)
				r.Post("/disable", sosHandler.Disable)
				r.Get("/state", sosHandler.State)
				r.Get("/stream", sosHandler.Stream)
			})

			r.Group(func(r chi.Router) {
				r.Use(byUser(middleware.ExpensiveRateLimit))
				r.Post("/routes/safer", routes.Safer)
				r.Get("/geocode/reverse", geocode.Reverse)
				r.Get("/geocode/search", geocode.Search)
			})

			r.Group(func(r chi.Router) {
				r.Use(byUser(middleware.StandardRateLimit))
				r.Get("/alerts", alerts.List)
				r.Get("/alerts/count", alerts.Count)
				r.Get("/places/nearby", places.Nearby)
				r.Get("/places/help", places.Help)
				r.Get("/places/popular", places.Popular)
				r.Get("/dashboard", dash.Dashboard)
				r.Get("/dashboard/stream", dash.Stream)
				r.Get("/activity", dash.Activity)
				r.Get("/profile/safety-score", dash.SafetyScore)
				r.Get("/digital-id", ids.Get)
				r.Post("/digital-id", ids.Issue)
				r.Get("/digital-id/verify", ids.Verify)
			})
		})
	})

	return r
}
