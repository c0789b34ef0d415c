package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments are the domain counters of the core.
type Instruments struct {
	locationSamples metric.Int64Counter
	sosTransitions  metric.Int64Counter
	notifyWarnings  metric.Int64Counter
}

// NewInstruments registers the counters on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	samples, err := meter.Int64Counter("tss.location.samples",
		metric.WithDescription("Location samples by outcome"),
		metric.WithUnit("{sample}"))
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("tss.sos.transitions",
		metric.WithDescription("SOS session transitions by resulting phase"),
		metric.WithUnit("{transition}"))
	if err != nil {
		return nil, err
	}
	warnings, err := meter.Int64Counter("tss.sos.warnings",
		metric.WithDescription("Warnings raised during SOS activation"),
		metric.WithUnit("{warning}"))
	if err != nil {
		return nil, err
	}
	return &Instruments{
		locationSamples: samples,
		sosTransitions:  transitions,
		notifyWarnings:  warnings,
	}, nil
}

// LocationSample counts one sample with outcome persisted, throttled or failed.
func (i *Instruments) LocationSample(ctx context.Context, outcome string) {
	if i == nil {
		return
	}
	i.locationSamples.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// SOSTransition counts a session entering phase.
func (i *Instruments) SOSTransition(ctx context.Context, phase string) {
	if i == nil {
		return
	}
	i.sosTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}

// SOSWarning counts an activation warning.
func (i *Instruments) SOSWarning(ctx context.Context, warning string) {
	if i == nil {
		return
	}
	i.notifyWarnings.Add(ctx, 1, metric.WithAttributes(attribute.String("warning", warning)))
}
