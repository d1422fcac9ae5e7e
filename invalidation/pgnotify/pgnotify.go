// Package pgnotify feeds invalidation events from Postgres LISTEN/NOTIFY.
//
// A trigger that runs
//
//	SELECT pg_notify('entity_changes', json_build_object(
//	    'table', TG_TABLE_NAME, 'type', TG_OP, 'record', row_to_json(NEW))::text);
//
// on every write is enough for the engine to evict pages built from that table.
package pgnotify

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-repository-pager/invalidation"
)

// DefaultChannel is listened on when no channel is configured.
const DefaultChannel = "entity_changes"

// waiter is the part of *pgx.Conn the listen loop needs.
type waiter interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
}

// Source listens on one or more NOTIFY channels over a dedicated connection.
type Source struct {
	connString string
	channels   []string
	logger     logrus.FieldLogger
}

// Option configures a Source.
type Option func(*Source)

// WithChannels replaces the channels to LISTEN on.
func WithChannels(channels ...string) Option {
	return func(s *Source) {
		if len(channels) > 0 {
			s.channels = channels
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Source connecting with connString.
func New(connString string, opts ...Option) *Source {
	s := &Source{
		connString: connString,
		channels:   []string{DefaultChannel},
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen implements invalidation.Source.
func (s *Source) Listen(ctx context.Context, out chan<- invalidation.Event) error {
	conn, err := pgx.Connect(ctx, s.connString)
	if err != nil {
		return fmt.Errorf("pgnotify: connect: %w", err)
	}
	defer conn.Close(context.Background())

	for _, channel := range s.channels {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			return fmt.Errorf("pgnotify: listen %s: %w", channel, err)
		}
	}
	s.logger.WithField("channels", s.channels).Info("listening for postgres notifications")

	return s.consume(ctx, conn, out)
}

func (s *Source) consume(ctx context.Context, w waiter, out chan<- invalidation.Event) error {
	for {
		n, err := w.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("pgnotify: wait: %w", err)
		}

		ev, err := invalidation.DecodeNotification(n.Channel, []byte(n.Payload))
		if err != nil {
			s.logger.WithError(err).WithField("channel", n.Channel).Warn("dropping notification")
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}
