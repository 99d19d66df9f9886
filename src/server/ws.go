package server

import (
	"errors"
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/dinehub/realtime/src/auth"
	"github.com/dinehub/realtime/src/hub"
	"github.com/dinehub/realtime/src/types"
)

// Cookie and query parameter names the credential is accepted from.
const (
	tokenQueryParam = "token"
	tokenCookie     = "access_token"
)

// WSHandler returns a raw fasthttp handler for WebSocket upgrades.
// Register this on the fasthttp server at WSPath.
//
// The credential is located with fixed precedence: Authorization header,
// then the token query parameter, then the access-token cookie. The
// handshake is validated before the upgrade, so a rejected client never
// holds a socket.
func (s *Server) WSHandler() fasthttp.RequestHandler {
	upgrader := websocket.FastHTTPUpgrader{
		ReadBufferSize:  s.cfg.ReadBufferSize,
		WriteBufferSize: s.cfg.WriteBufferSize,
	}

	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		identity, err := s.authn.Authenticate(auth.Credentials{
			Header: string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization)),
			Query:  string(ctx.QueryArgs().Peek(tokenQueryParam)),
			Cookie: string(ctx.Request.Header.Cookie(tokenCookie)),
		})
		if err != nil {
			s.rejectHandshake(ctx, err)
			return
		}

		clientID := uuid.New().String()
		groups := auth.Groups(identity)
		h := s.hub
		logger := s.logger

		err = upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			client := hub.NewClient(clientID, identity.Subject, &fasthttpConn{conn}, h)
			client.MarkAuthenticated()
			h.Register(client, groups)
			go client.WritePump()
			client.ReadPump()
		})
		if err != nil {
			logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

func (s *Server) rejectHandshake(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		ctx.SetBodyString(`{"error":"unauthenticated","message":"no credential presented"}`)
	case errors.Is(err, auth.ErrInvalidCredential):
		ctx.SetStatusCode(fasthttp.StatusForbidden)
		ctx.SetBodyString(`{"error":"invalid_credential","message":"credential rejected"}`)
	default:
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"error":"internal","message":"handshake failed"}`)
	}
	s.logger.Warn().Err(err).Msg("handshake rejected")
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type fasthttpConn struct {
	conn *websocket.Conn
}

func (f *fasthttpConn) WriteJSON(v any) error { return f.conn.WriteJSON(v) }
func (f *fasthttpConn) ReadJSON(v any) error  { return f.conn.ReadJSON(v) }
func (f *fasthttpConn) Close() error          { return f.conn.Close() }

var _ types.Conn = (*fasthttpConn)(nil)
