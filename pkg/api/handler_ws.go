package api

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/cortexhq/cortex/pkg/events"
)

// wsHandler upgrades GET /ws to a WebSocket and hands the connection to the
// channel manager, which runs the auth-first protocol. Blocks until the
// connection closes.
func (s *Server) wsHandler(c *echo.Context) error {
	if s.manager == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "WebSocket not available")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: s.allowedOrigins,
	})
	if err != nil {
		return err
	}

	s.manager.HandleConnection(c.Request().Context(), events.WrapConn(conn))
	return nil
}
