// Package router translates domain order events into group-addressed
// messages on the channel layer.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dinehub/realtime/src/auth"
	"github.com/dinehub/realtime/src/layer"
	"github.com/dinehub/realtime/src/types"
	"github.com/rs/zerolog"
)

// Router publishes order events to their target groups. Delivery is
// best-effort: a publish rejected by the channel layer is logged and the
// event dropped, never retried, and never surfaced to the event producer
// as fatal. Notify is not deduplicating; the same event twice means two
// deliveries.
type Router struct {
	layer  layer.ChannelLayer
	logger zerolog.Logger
}

// New creates a Router publishing on the given channel layer.
func New(cl layer.ChannelLayer, logger zerolog.Logger) *Router {
	return &Router{
		layer:  cl,
		logger: logger.With().Str("component", "router").Logger(),
	}
}

// Notify routes an event to its target groups and publishes once per
// group. A group with zero subscribers is a silent no-op downstream.
// Returns ErrBackendUnavailable when one or more publishes were rejected;
// callers treat that as a logged drop, not a failure of the triggering
// operation.
func (r *Router) Notify(ctx context.Context, event types.Event) error {
	groups := Route(event)
	if len(groups) == 0 {
		r.logger.Debug().Str("type", event.Type).Msg("no route for event")
		return nil
	}

	payload, err := json.Marshal(types.Envelope{
		Type:    event.Type,
		Payload: eventPayload(event),
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	var failed error
	for _, group := range groups {
		if err := r.layer.Publish(ctx, group, payload); err != nil {
			r.logger.Error().Err(err).
				Str("type", event.Type).
				Str("group", group).
				Msg("publish failed, event dropped")
			failed = err
		}
	}
	return failed
}

// Route maps an event to its target groups per the fixed routing table.
func Route(event types.Event) []string {
	switch event.Type {
	case types.EventOrderCreated:
		return []string{auth.StaffGroup}
	case types.EventOrderUpdated, types.EventOrderStatusChanged:
		groups := []string{auth.StaffGroup}
		if event.CustomerID != 0 {
			groups = append(groups, auth.CustomerGroup(strconv.FormatInt(event.CustomerID, 10)))
		}
		return groups
	}
	return nil
}

// eventPayload builds the envelope payload from the event's own payload
// plus its identifying fields.
func eventPayload(event types.Event) map[string]any {
	payload := make(map[string]any, len(event.Payload)+2)
	for k, v := range event.Payload {
		payload[k] = v
	}
	if event.OrderID != 0 {
		payload["order_id"] = event.OrderID
	}
	if event.CustomerID != 0 {
		payload["customer_id"] = event.CustomerID
	}
	return payload
}
