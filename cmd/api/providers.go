package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/config"
	"github.com/dexxeth/tourist-safety-shield/internal/geocoding"
	"github.com/dexxeth/tourist-safety-shield/internal/geocoding/googlemaps"
	"github.com/dexxeth/tourist-safety-shield/internal/geocoding/nominatim"
	"github.com/dexxeth/tourist-safety-shield/internal/provider/resilience"
	"github.com/dexxeth/tourist-safety-shield/internal/routing"
	"github.com/dexxeth/tourist-safety-shield/internal/routing/openrouteservice"
	"github.com/dexxeth/tourist-safety-shield/internal/routing/osrm"
)

func newGeocoder(cfg config.ProvidersConfig, registry *resilience.Registry, log zerolog.Logger) (*geocoding.Service, error) {
	var provider geocoding.Geocoder
	switch cfg.Geocoder {
	case "google":
		client, err := googlemaps.NewClient(googlemaps.ClientConfig{
			APIKey:  cfg.GoogleMapsKey,
			Timeout: cfg.GeocodeTimeout,
			Logger:  log,
		})
		if err != nil {
			return nil, fmt.Errorf("google geocoder: %w", err)
		}
		provider = client
	default:
		provider = nominatim.NewClient(nominatim.ClientConfig{
			BaseURL:  cfg.NominatimURL,
			Timeout:  cfg.GeocodeTimeout,
			Registry: registry,
			Logger:   log,
		})
	}
	log.Info().Str("provider", provider.Name()).Msg("geocoder initialized")
	return geocoding.NewService(provider, geocoding.ServiceConfig{Timeout: cfg.GeocodeTimeout, Logger: log}), nil
}

// newRouteProvider returns nil when routing is disabled; the route service
// then serves straight-line estimates.
func newRouteProvider(cfg config.ProvidersConfig, registry *resilience.Registry, log zerolog.Logger) routing.Provider {
	switch cfg.Router {
	case "osrm":
		return osrm.NewClient(osrm.ClientConfig{
			BaseURL:  cfg.OSRMURL,
			Timeout:  cfg.RouteTimeout,
			Registry: registry,
			Logger:   log,
		})
	case "openrouteservice":
		if cfg.ORSKey == "" {
			log.Warn().Msg("ORS_API_KEY not set, routing disabled")
			return nil
		}
		return openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:   cfg.ORSKey,
			BaseURL:  cfg.ORSURL,
			Timeout:  cfg.RouteTimeout,
			Registry: registry,
			Logger:   log,
		})
	default:
		log.Warn().Msg("routing engine disabled, serving straight-line estimates")
		return nil
	}
}
