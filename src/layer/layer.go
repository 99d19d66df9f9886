// Package layer provides the pub/sub channel layer that fans order events
// out across server instances. Two implementations share one contract: a
// Redis-backed layer for multi-process deployments and an in-process layer
// used when no broker is configured or reachable.
package layer

import (
	"context"
	"errors"

	"github.com/dinehub/realtime/config"
	"github.com/rs/zerolog"
)

// ErrBackendUnavailable means the broker rejected a publish or a
// subscription's upstream connection was lost.
var ErrBackendUnavailable = errors.New("channel layer backend unavailable")

// Message is a payload delivered on a subscribed topic.
type Message struct {
	Topic   string
	Payload []byte
}

// ChannelLayer is the pub/sub contract shared by both implementations.
// Publish is fire-and-forget: no acknowledgment, no delivery confirmation.
// Ordering is preserved per topic per publisher only, and delivery is
// at-most-once per subscriber.
type ChannelLayer interface {
	// Publish sends payload to every current subscriber of topic.
	// A topic with zero subscribers is a silent no-op, never an error.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe opens a stream of future messages on topic. There is no
	// replay: a new subscriber sees only messages published after it.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Close releases the layer's resources.
	Close() error
}

// Subscription is one live topic stream.
type Subscription interface {
	// Messages yields messages until Unsubscribe is called or the
	// backend is lost. The channel is closed on either.
	Messages() <-chan Message

	// Err reports why Messages closed: nil after a clean Unsubscribe,
	// ErrBackendUnavailable when the upstream connection dropped.
	Err() error

	// Unsubscribe releases the topic stream.
	Unsubscribe() error
}

// FromConfig selects the channel layer once at startup. A configured and
// reachable Redis gives the broker-backed layer; anything else falls back
// to the in-process layer, which cannot deliver across processes.
func FromConfig(cfg *config.Config, logger zerolog.Logger) ChannelLayer {
	if cfg.RedisURL == "" {
		logger.Info().Msg("no broker configured, using in-process channel layer")
		return NewLocal()
	}

	rl, err := NewRedis(cfg.RedisURL, cfg.TopicPrefix, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("broker unreachable, falling back to in-process channel layer")
		return NewLocal()
	}
	logger.Info().Str("redis_url", cfg.RedisURL).Msg("using redis channel layer")
	return rl
}
