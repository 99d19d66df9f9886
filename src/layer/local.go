package layer

import (
	"context"
	"sync"
)

// subBuffer bounds each subscriber's backlog. A subscriber that falls this
// far behind loses messages, matching the layer's at-most-once contract.
const subBuffer = 256

// Local is the in-process channel layer. It implements the full
// ChannelLayer contract with in-memory queues scoped to this process, so
// cross-process delivery is impossible in this mode. That is a documented
// deployment limit for single-process and development setups, not a bug.
type Local struct {
	mu     sync.RWMutex
	topics map[string]map[*localSub]struct{}
	closed bool
}

type localSub struct {
	layer *Local
	topic string
	out   chan Message

	mu   sync.Mutex
	err  error
	done bool
}

// NewLocal creates an in-process channel layer.
func NewLocal() *Local {
	return &Local{topics: make(map[string]map[*localSub]struct{})}
}

// Publish fans payload out to every current subscriber of topic.
// Zero subscribers is a silent no-op.
func (l *Local) Publish(_ context.Context, topic string, payload []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrBackendUnavailable
	}

	for sub := range l.topics[topic] {
		select {
		case sub.out <- Message{Topic: topic, Payload: payload}:
		default:
			// Subscriber backlog full: drop rather than block the publisher.
		}
	}
	return nil
}

// Subscribe opens a stream of future messages on topic.
func (l *Local) Subscribe(_ context.Context, topic string) (Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrBackendUnavailable
	}

	sub := &localSub{
		layer: l,
		topic: topic,
		out:   make(chan Message, subBuffer),
	}
	if l.topics[topic] == nil {
		l.topics[topic] = make(map[*localSub]struct{})
	}
	l.topics[topic][sub] = struct{}{}
	return sub, nil
}

// Close terminates every open subscription with ErrBackendUnavailable.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	for topic, subs := range l.topics {
		for sub := range subs {
			sub.terminate(ErrBackendUnavailable)
		}
		delete(l.topics, topic)
	}
	return nil
}

func (l *Local) remove(sub *localSub) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if subs, ok := l.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(l.topics, sub.topic)
		}
	}
}

func (s *localSub) Messages() <-chan Message { return s.out }

func (s *localSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *localSub) Unsubscribe() error {
	s.layer.remove(s)
	s.terminate(nil)
	return nil
}

// terminate closes the stream at most once.
func (s *localSub) terminate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.err = err
	close(s.out)
}
