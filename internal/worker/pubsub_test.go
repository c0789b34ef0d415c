package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dexxeth/tourist-safety-shield/internal/worker"
)

type runnerFunc func(ctx context.Context, jobType string) error

func (f runnerFunc) Run(ctx context.Context, jobType string) error { return f(ctx, jobType) }

func TestProcess(t *testing.T) {
	var seen []string
	runner := runnerFunc(func(_ context.Context, jobType string) error {
		seen = append(seen, jobType)
		switch jobType {
		case worker.JobResolveStale:
			return nil
		case worker.JobBackfillAreas:
			return errors.New("database unavailable")
		default:
			return worker.ErrUnknownJob
		}
	})

	tests := []struct {
		name    string
		payload string
		ack     bool
	}{
		{"success acks", `{"job_type":"sos.resolve_stale"}`, true},
		{"failure nacks", `{"job_type":"locations.backfill_areas"}`, false},
		{"unknown job acks", `{"job_type":"provider_refresh"}`, true},
		{"malformed payload nacks", `{job_type`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ack, worker.Process(context.Background(), runner, []byte(tt.payload), quiet))
		})
	}
	assert.Equal(t, []string{worker.JobResolveStale, worker.JobBackfillAreas, "provider_refresh"}, seen)
}
