// Package main runs the device tracker: it reads NMEA sentences from a GPS
// receiver (serial port, file or stdin) and uploads positions to the API.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/tarm/serial"

	"github.com/dexxeth/tourist-safety-shield/internal/location"
	"github.com/dexxeth/tourist-safety-shield/internal/location/nmea"
	"github.com/dexxeth/tourist-safety-shield/internal/location/remote"
	"github.com/dexxeth/tourist-safety-shield/internal/telemetry"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		_, _ = os.Stderr.WriteString("ignoring .env: " + err.Error() + "\n")
	}

	baud, _ := strconv.Atoi(envOr("GPS_BAUD", "9600"))
	var (
		apiURL  = flag.String("api", envOr("TRACKER_API_URL", "http://localhost:8080"), "API base URL")
		token   = flag.String("token", os.Getenv("TRACKER_TOKEN"), "access token of the tracked user")
		userID  = flag.String("user", os.Getenv("TRACKER_USER_ID"), "tracked user id")
		device  = flag.String("device", os.Getenv("GPS_DEVICE"), "serial device; empty reads -file")
		file    = flag.String("file", "-", "NMEA log file when no device is set, - for stdin")
		baudArg = flag.Int("baud", baud, "serial baud rate")
		level   = flag.String("log-level", envOr("LOG_LEVEL", "info"), "log level")
	)
	flag.Parse()

	log := telemetry.NewLogger(telemetry.LoggerConfig{
		Service: "tss-tracker",
		Version: Version,
		Level:   *level,
		Format:  "console",
		Output:  os.Stderr,
	})

	if *userID == "" || *token == "" {
		log.Fatal().Msg("a user id and access token are required (-user, -token)")
	}

	input, err := openInput(*device, *baudArg, *file)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open GPS input")
	}
	defer func() { _ = input.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recorder := remote.New(remote.Config{BaseURL: *apiURL, AccessToken: *token, RetryCount: 2})
	tracker := location.NewTracker(recorder, location.TrackerConfig{Logger: log})

	log.Info().Str("api", *apiURL).Str("device", *device).Msg("tracking")
	if err := tracker.Run(ctx, *userID, nmea.NewSource(input, log)); err != nil {
		logFailure(log, err)
		os.Exit(1)
	}
	log.Info().Msg("tracker stopped")
}

func openInput(device string, baud int, file string) (io.ReadCloser, error) {
	switch {
	case device != "":
		return serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	case file == "-":
		return io.NopCloser(os.Stdin), nil
	default:
		return os.Open(file)
	}
}

func logFailure(log zerolog.Logger, err error) {
	if errors.Is(err, remote.ErrUnauthorized) {
		log.Error().Err(err).Msg("access token rejected, request a new one")
		return
	}
	log.Error().Err(err).Msg("tracker failed")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
