// Package redisnotify carries invalidation events over Redis pub/sub, so every
// engine instance behind a load balancer evicts the same entries.
package redisnotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-repository-pager/invalidation"
)

// DefaultChannel is subscribed to when no channel is configured.
const DefaultChannel = "pager:invalidations"

var errSubscriptionClosed = errors.New("redisnotify: subscription closed")

// Source subscribes to Redis channels.
type Source struct {
	client   redis.UniversalClient
	channels []string
	logger   logrus.FieldLogger
}

// Option configures a Source.
type Option func(*Source)

// WithChannels replaces the channels to subscribe to.
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

// New creates a Source over client.
func New(client redis.UniversalClient, opts ...Option) *Source {
	s := &Source{
		client:   client,
		channels: []string{DefaultChannel},
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen implements invalidation.Source.
func (s *Source) Listen(ctx context.Context, out chan<- invalidation.Event) error {
	sub := s.client.Subscribe(ctx, s.channels...)
	defer sub.Close()

	// wait for the subscription confirmation so setup errors surface here
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redisnotify: subscribe: %w", err)
	}
	s.logger.WithField("channels", s.channels).Info("listening for redis invalidations")

	return s.consume(ctx, sub.Channel(), out)
}

func (s *Source) consume(ctx context.Context, messages <-chan *redis.Message, out chan<- invalidation.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errSubscriptionClosed
			}

			ev, err := invalidation.DecodeNotification(msg.Channel, []byte(msg.Payload))
			if err != nil {
				s.logger.WithError(err).WithField("channel", msg.Channel).Warn("dropping message")
				continue
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Publish broadcasts ev on channel in the payload format Source decodes.
func Publish(ctx context.Context, client redis.UniversalClient, channel string, ev invalidation.Event) error {
	if channel == "" {
		channel = DefaultChannel
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redisnotify: encode: %w", err)
	}
	if err := client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redisnotify: publish: %w", err)
	}
	return nil
}
