// Package hub tracks live WebSocket connections and their group
// memberships within one process, and fans channel-layer messages out to
// the matching local connections.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dinehub/realtime/src/layer"
	"github.com/dinehub/realtime/src/types"
	"github.com/rs/zerolog"
)

// Resubscription backoff bounds for a dispatch loop that lost its
// upstream subscription.
const (
	resubscribeMin = 500 * time.Millisecond
	resubscribeMax = 30 * time.Second
)

// Hub is the per-process connection registry. The first local subscriber
// of a group opens one upstream subscription on the channel layer with a
// dispatch loop attached; the last one leaving releases it, so upstream
// subscriptions never outlive local interest.
type Hub struct {
	layer layer.ChannelLayer

	clients map[string]*Client
	groups  map[string]map[string]bool // group -> set of clientIDs
	subs    map[string]*groupSub       // group -> dispatch loop handle

	register   chan registration
	unregister chan *Client
	localCast  chan layer.Message

	mu     sync.RWMutex
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type registration struct {
	client *Client
	groups []string
}

type groupSub struct {
	cancel context.CancelFunc
}

// New creates a Hub backed by the given channel layer.
func New(cl layer.ChannelLayer, logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		layer:      cl,
		clients:    make(map[string]*Client),
		groups:     make(map[string]map[string]bool),
		subs:       make(map[string]*groupSub),
		register:   make(chan registration),
		unregister: make(chan *Client),
		localCast:  make(chan layer.Message, 256),
		logger:     logger.With().Str("component", "hub").Logger(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop. Call in a goroutine. Membership changes
// and local fan-out are linearized here, so a deregistration that completes
// before a publish is guaranteed to exclude that connection.
func (h *Hub) Run() {
	for {
		select {
		case reg := <-h.register:
			h.addClient(reg)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.localCast:
			h.deliverLocal(msg.Topic, msg.Payload)
		case <-h.done:
			return
		}
	}
}

// Stop halts the event loop and cancels every dispatch loop.
func (h *Hub) Stop() {
	h.cancel()
	close(h.done)
}

// Register queues a client for registration under the given groups.
func (h *Hub) Register(c *Client, groups []string) {
	select {
	case h.register <- registration{client: c, groups: groups}:
	case <-h.done:
	}
}

// Deregister queues a client for removal from all its groups.
func (h *Hub) Deregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// DeliverLocal queues a message for fan-out to the local subscribers of
// its topic. Dispatch loops feed this; it is also the entry point for a
// process that wants to bypass the channel layer entirely.
func (h *Hub) DeliverLocal(msg layer.Message) {
	select {
	case h.localCast <- msg:
	case <-h.done:
	}
}

func (h *Hub) addClient(reg registration) {
	c := reg.client

	h.mu.Lock()
	h.clients[c.ID] = c
	for _, g := range reg.groups {
		first := h.groups[g] == nil
		if first {
			h.groups[g] = make(map[string]bool)
		}
		h.groups[g][c.ID] = true
		c.addGroup(g)
		if first {
			h.startDispatch(g)
		}
	}
	h.mu.Unlock()

	c.setState(StateActive)
	h.logger.Info().
		Str("client_id", c.ID).
		Str("subject", c.Subject).
		Strs("groups", reg.groups).
		Msg("client registered")
}

// removeClient tears a connection down: it leaves every group, releases
// upstream subscriptions that lost their last local subscriber, and only
// then is the client closed. Idempotent for clients already removed.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	c.setState(StateClosing)
	delete(h.clients, c.ID)

	for _, g := range c.groupNames() {
		subs, ok := h.groups[g]
		if !ok {
			continue
		}
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(h.groups, g)
			h.stopDispatch(g)
		}
	}
	h.mu.Unlock()

	c.Close()
	h.logger.Info().Str("client_id", c.ID).Msg("client deregistered")
}

// startDispatch opens the upstream subscription for a group.
// Caller holds h.mu.
func (h *Hub) startDispatch(group string) {
	ctx, cancel := context.WithCancel(h.ctx)
	h.subs[group] = &groupSub{cancel: cancel}
	go h.runDispatch(ctx, group)
}

// stopDispatch releases the upstream subscription for a group.
// Caller holds h.mu.
func (h *Hub) stopDispatch(group string) {
	if gs, ok := h.subs[group]; ok {
		gs.cancel()
		delete(h.subs, group)
	}
}

// runDispatch subscribes to a group topic and forwards every message for
// local fan-out. A subscription lost to the backend is retried with
// exponential backoff until the group loses all local subscribers.
func (h *Hub) runDispatch(ctx context.Context, group string) {
	backoff := resubscribeMin

	for {
		sub, err := h.layer.Subscribe(ctx, group)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Warn().Err(err).Str("group", group).Dur("backoff", backoff).
				Msg("subscribe failed, retrying")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = resubscribeMin

		if !h.pump(ctx, group, sub) {
			return
		}
		// Backend loss: fall through to resubscribe.
		h.logger.Warn().Str("group", group).Msg("subscription lost, resubscribing")
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// pump forwards subscription messages until the stream ends. Returns true
// when the caller should resubscribe, false on cancellation or clean end.
func (h *Hub) pump(ctx context.Context, group string, sub layer.Subscription) bool {
	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return errors.Is(sub.Err(), layer.ErrBackendUnavailable) && ctx.Err() == nil
			}
			h.DeliverLocal(msg)
		case <-ctx.Done():
			if err := sub.Unsubscribe(); err != nil {
				h.logger.Debug().Err(err).Str("group", group).Msg("unsubscribe error")
			}
			return false
		}
	}
}

// deliverLocal fans one message out to every registered connection in the
// target group. A connection with a full send buffer is skipped; its own
// write path decides whether it is torn down. Failures never abort
// delivery to the remaining connections.
func (h *Hub) deliverLocal(topic string, payload []byte) {
	var env types.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("malformed message payload")
		return
	}

	h.mu.RLock()
	subs, ok := h.groups[topic]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(subs))
	for id := range subs {
		if c, exists := h.clients[id]; exists {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.Send <- env:
		default:
			h.logger.Warn().Str("client_id", c.ID).Msg("send buffer full, dropping")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > resubscribeMax {
		return resubscribeMax
	}
	return d
}
