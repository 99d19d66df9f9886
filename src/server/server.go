// Package server exposes the subsystem's HTTP boundary: token issuance,
// introspection, event ingestion, and the WebSocket upgrade path.
package server

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/dinehub/realtime/config"
	"github.com/dinehub/realtime/src/auth"
	"github.com/dinehub/realtime/src/hub"
	"github.com/dinehub/realtime/src/router"
	"github.com/dinehub/realtime/src/types"
)

// WSPath is the logical path of the notification stream.
const WSPath = "/ws/notifications"

// Server wires the notification subsystem behind its HTTP surface.
type Server struct {
	cfg    *config.Config
	issuer *auth.Issuer
	authn  *auth.Authenticator
	hub    *hub.Hub
	router *router.Router
	logger zerolog.Logger
}

// New creates a Server around the assembled subsystem components.
func New(cfg *config.Config, issuer *auth.Issuer, authn *auth.Authenticator,
	h *hub.Hub, r *router.Router, logger zerolog.Logger,
) *Server {
	return &Server{
		cfg:    cfg,
		issuer: issuer,
		authn:  authn,
		hub:    h,
		router: r,
		logger: logger.With().Str("component", "server").Logger(),
	}
}

// RegisterRoutes registers the JSON routes. The WebSocket upgrade itself
// uses WSHandler, registered at the fasthttp level since Fiber v3 does not
// expose *fasthttp.RequestCtx.
func (s *Server) RegisterRoutes(app fiber.Router) {
	app.Get("/api/ws-token", s.handleToken)
	app.Get("/ws/info", s.handleInfo)
	app.Post("/internal/events", s.handleEvent)
}

// handleToken mints a short-lived connection-upgrade token for an
// authenticated session. The session itself is presented as a bearer
// credential on the Authorization header.
func (s *Server) handleToken(c fiber.Ctx) error {
	identity, err := s.authn.Authenticate(auth.Credentials{
		Header: c.Get(fiber.HeaderAuthorization),
	})
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	// Authenticate guarantees a subject, so a failure here is a signing error.
	token, err := s.issuer.Issue(identity)
	if err != nil {
		s.logger.Error().Err(err).Str("subject", identity.Subject).Msg("token issue failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to issue token",
		})
	}

	return c.JSON(fiber.Map{"token": token})
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  WSPath,
		"clients":   s.hub.ClientCount(),
		"groups":    len(s.hub.Groups()),
	})
}

// handleEvent accepts a domain event from the order-management layer and
// routes it. Delivery is best-effort: a broker failure is logged by the
// router and never reported as fatal to the producer.
func (s *Server) handleEvent(c fiber.Ctx) error {
	var event types.Event
	if err := c.Bind().Body(&event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed event",
		})
	}
	if event.Type == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "event type is required",
		})
	}

	_ = s.router.Notify(c.Context(), event)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
}
