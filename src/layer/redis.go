package layer

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis is the broker-backed channel layer. Topics map onto Redis pub/sub
// channels under a configurable prefix, so every process subscribed to the
// same Redis sees every publish. Redis pub/sub keeps no backlog: a process
// that restarts and resubscribes receives only future messages.
type Redis struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedis connects to the broker at url and verifies it with a ping.
// Returns an error when the broker is unreachable so the caller can fall
// back to the in-process layer.
func NewRedis(url, prefix string, logger zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithCancel(context.Background())

	if err := client.Ping(ctx).Err(); err != nil {
		cancel()
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Redis{
		client: client,
		prefix: prefix,
		logger: logger.With().Str("component", "redis-layer").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Publish sends payload on the prefixed topic channel. Zero subscribers is
// a silent no-op on the broker side.
func (r *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := r.client.Publish(ctx, r.prefix+topic, payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Subscribe opens a Redis subscription on the prefixed topic channel and
// starts a goroutine relaying its messages.
func (r *Redis) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubsub := r.client.Subscribe(ctx, r.prefix+topic)

	// Wait for subscription confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	sub := &redisSub{
		pubsub: pubsub,
		topic:  topic,
		out:    make(chan Message, subBuffer),
	}
	r.wg.Add(1)
	go r.relay(sub)
	return sub, nil
}

// Close cancels every relay goroutine and closes the broker connection.
func (r *Redis) Close() error {
	r.cancel()
	err := r.client.Close()
	r.wg.Wait()
	return err
}

// relay pumps broker messages into the subscription stream until the
// subscription is released or the broker connection is lost.
func (r *Redis) relay(sub *redisSub) {
	defer r.wg.Done()

	ch := sub.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				// Channel closed: clean after Unsubscribe, broker loss otherwise.
				if !sub.unsubscribed() {
					r.logger.Warn().Str("topic", sub.topic).Msg("subscription lost")
					sub.terminate(ErrBackendUnavailable)
				} else {
					sub.terminate(nil)
				}
				return
			}
			select {
			case sub.out <- Message{Topic: sub.topic, Payload: []byte(msg.Payload)}:
			default:
				r.logger.Warn().Str("topic", sub.topic).Msg("subscriber backlog full, dropping")
			}
		case <-r.ctx.Done():
			sub.terminate(ErrBackendUnavailable)
			return
		}
	}
}

type redisSub struct {
	pubsub *redis.PubSub
	topic  string
	out    chan Message

	mu     sync.Mutex
	err    error
	done   bool
	closed bool
}

func (s *redisSub) Messages() <-chan Message { return s.out }

func (s *redisSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *redisSub) Unsubscribe() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	// Closing the PubSub ends its message channel, which lets the relay
	// goroutine drain and terminate the stream cleanly.
	return s.pubsub.Close()
}

func (s *redisSub) unsubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *redisSub) terminate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.err = err
	close(s.out)
}
