// Package nmea reads positions from NMEA 0183 sentences emitted by GPS receivers.
package nmea

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	gonmea "github.com/adrianmo/go-nmea"
	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/location"
	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

// UERE is the user equivalent range error used to turn HDOP into meters.
const UERE = 5.0

// Source is a location.PositionSource over a line-oriented NMEA stream.
// GGA sentences with a fix and valid RMC sentences produce samples.
type Source struct {
	r      io.Reader
	now    func() time.Time
	logger zerolog.Logger
}

var _ location.PositionSource = (*Source)(nil)

// NewSource creates a Source. A nil reader makes the source unavailable.
func NewSource(r io.Reader, logger zerolog.Logger) *Source {
	return &Source{r: r, now: time.Now, logger: logger.With().Str("component", "nmea").Logger()}
}

// Watch streams samples until the reader is exhausted or ctx ends.
func (s *Source) Watch(ctx context.Context) (<-chan location.Sample, error) {
	if s.r == nil {
		return nil, location.ErrSourceUnavailable
	}
	out := make(chan location.Sample)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(s.r)
		for scanner.Scan() {
			sample, ok := s.parse(scanner.Text())
			if !ok {
				continue
			}
			select {
			case out <- sample:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			s.logger.Warn().Err(err).Msg("nmea stream ended with error")
		}
	}()
	return out, nil
}

// Current returns the first usable sample from the stream.
func (s *Source) Current(ctx context.Context) (location.Sample, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	samples, err := s.Watch(ctx)
	if err != nil {
		return location.Sample{}, err
	}
	select {
	case sample, ok := <-samples:
		if !ok {
			return location.Sample{}, location.ErrSourceUnavailable
		}
		return sample, nil
	case <-ctx.Done():
		return location.Sample{}, ctx.Err()
	}
}

func (s *Source) parse(line string) (location.Sample, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return location.Sample{}, false
	}
	sentence, err := gonmea.Parse(line)
	if err != nil {
		s.logger.Debug().Err(err).Msg("skipping unparsable sentence")
		return location.Sample{}, false
	}

	switch m := sentence.(type) {
	case gonmea.GGA:
		if m.FixQuality == gonmea.Invalid {
			return location.Sample{}, false
		}
		return s.sample(m.Latitude, m.Longitude, func(out *location.Sample) {
			alt := m.Altitude
			out.Altitude = &alt
			if m.HDOP > 0 {
				acc := m.HDOP * UERE
				out.Accuracy = &acc
			}
		})
	case gonmea.RMC:
		if m.Validity != gonmea.ValidRMC {
			return location.Sample{}, false
		}
		return s.sample(m.Latitude, m.Longitude, nil)
	}
	return location.Sample{}, false
}

func (s *Source) sample(lat, lng float64, fill func(*location.Sample)) (location.Sample, bool) {
	coord, err := geo.NewCoordinate(lat, lng)
	if err != nil {
		return location.Sample{}, false
	}
	out := location.Sample{Coordinate: coord, CapturedAt: s.now()}
	if fill != nil {
		fill(&out)
	}
	return out, true
}
