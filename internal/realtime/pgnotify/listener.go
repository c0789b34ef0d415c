// Package pgnotify bridges Postgres LISTEN/NOTIFY change notifications into a realtime.Hub.
package pgnotify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/realtime"
)

// DefaultChannel is the notification channel written by the change triggers.
const DefaultChannel = "tss_changes"

// InstallSQL creates the trigger function and attaches it to the tables the
// core subscribes to. It is idempotent.
const InstallSQL = `
CREATE OR REPLACE FUNCTION tss_notify_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('tss_changes', json_build_object(
		'table', TG_TABLE_NAME,
		'type', TG_OP,
		'new', CASE WHEN TG_OP <> 'DELETE' THEN row_to_json(NEW) END,
		'old', CASE WHEN TG_OP <> 'INSERT' THEN row_to_json(OLD) END,
		'commit_time', now()
	)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS tss_user_locations_change ON user_locations;
CREATE TRIGGER tss_user_locations_change AFTER INSERT ON user_locations
	FOR EACH ROW EXECUTE FUNCTION tss_notify_change();

DROP TRIGGER IF EXISTS tss_safety_alerts_change ON safety_alerts;
CREATE TRIGGER tss_safety_alerts_change AFTER INSERT OR UPDATE OR DELETE ON safety_alerts
	FOR EACH ROW EXECUTE FUNCTION tss_notify_change();

DROP TRIGGER IF EXISTS tss_profiles_change ON profiles;
CREATE TRIGGER tss_profiles_change AFTER UPDATE ON profiles
	FOR EACH ROW EXECUTE FUNCTION tss_notify_change();

DROP TRIGGER IF EXISTS tss_sos_incidents_change ON sos_incidents;
CREATE TRIGGER tss_sos_incidents_change AFTER INSERT OR UPDATE ON sos_incidents
	FOR EACH ROW EXECUTE FUNCTION tss_notify_change();
`

// Install applies InstallSQL.
func Install(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, InstallSQL); err != nil {
		return fmt.Errorf("installing change triggers: %w", err)
	}
	return nil
}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// ConnString is used for the dedicated LISTEN connection. Pooled
	// connections cannot hold a LISTEN across calls.
	ConnString string
	Channel    string
	Target     realtime.Publisher

	// MaxReconnectInterval caps the reconnect backoff (default: 30 seconds).
	MaxReconnectInterval time.Duration

	Logger zerolog.Logger
}

// Listener holds a LISTEN connection and republishes notifications.
type Listener struct {
	connString  string
	channel     string
	target      realtime.Publisher
	maxInterval time.Duration
	logger      zerolog.Logger
}

// NewListener creates a Listener.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.MaxReconnectInterval <= 0 {
		cfg.MaxReconnectInterval = 30 * time.Second
	}
	return &Listener{
		connString:  cfg.ConnString,
		channel:     cfg.Channel,
		target:      cfg.Target,
		maxInterval: cfg.MaxReconnectInterval,
		logger:      cfg.Logger.With().Str("component", "pgnotify").Logger(),
	}
}

// Run listens until ctx is cancelled, reconnecting with exponential backoff.
func (l *Listener) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = l.maxInterval
	bo.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		err := l.listen(ctx, bo)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		l.logger.Warn().Err(err).Dur("retry_in", wait).Msg("change listener disconnected")
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (l *Listener) listen(ctx context.Context, bo backoff.BackOff) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	bo.Reset()
	l.logger.Info().Str("channel", l.channel).Msg("listening for change notifications")

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("waiting for notification: %w", err)
		}
		l.Handle(ctx, n.Payload)
	}
}

// Handle decodes one notification payload and republishes it. Malformed
// payloads are logged and skipped.
func (l *Listener) Handle(ctx context.Context, payload string) {
	evt, err := realtime.ParseEvent([]byte(payload))
	if err != nil {
		l.logger.Warn().Err(err).Msg("skipping malformed change notification")
		return
	}
	if evt.CommitTime.IsZero() {
		evt.CommitTime = time.Now()
	}
	if err := l.target.Publish(ctx, evt); err != nil {
		l.logger.Warn().Err(err).Str("table", evt.Table).Msg("failed to publish change event")
	}
}
