package api

import (
	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/shacharon/tavola/pkg/events"
)

// wsHandler handles GET /ws?ticket=<t>. The one-time ticket carries the
// identity; a missing, unknown, or already-consumed ticket closes the socket
// with 4401 after the upgrade so the client sees the taxonomy code.
func (s *Server) wsHandler(c echo.Context) error {
	ticket := c.QueryParam("ticket")

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Browser clients connect from the app origin; same-host deployments
		// need no allowlist. Cross-origin deployments set OriginPatterns.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	identity, err := s.auth.ConsumeWSTicket(c.Request().Context(), ticket)
	if err != nil {
		_ = conn.Close(events.CloseUnauthorized, "invalid or consumed ticket")
		return nil
	}

	// HandleConnection blocks until the WebSocket closes.
	s.hub.HandleConnection(c.Request().Context(), conn, identity.SessionID, identity.UserID)
	return nil
}
