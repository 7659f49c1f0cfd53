package handlers

import (
	"net/http"
	"strings"

	"github.com/anonto42/nano-midea/fanout/internal/events"
	"github.com/anonto42/nano-midea/fanout/internal/transport"
	"github.com/labstack/echo/v4"
)

// SocketHandler streams live messages to websocket clients
type SocketHandler struct {
	hub *transport.Hub
}

// NewSocketHandler creates a new SocketHandler
func NewSocketHandler(hub *transport.Hub) *SocketHandler {
	return &SocketHandler{hub: hub}
}

// RegisterSocketRoutes registers the websocket route
func (h *SocketHandler) RegisterSocketRoutes(g *echo.Group) {
	g.GET("/socket", h.Connect)
}

// Connect upgrades the request. The client always receives its own member
// channel, plus the public channels listed in ?channels=post,tick.
func (h *SocketHandler) Connect(c echo.Context) error {
	me, err := currentMember(c)
	if err != nil {
		return err
	}

	channels, err := socketChannels(me, c.QueryParam("channels"))
	if err != nil {
		return err
	}
	// a failed upgrade has already been answered by the upgrader
	_ = h.hub.Serve(c.Response(), c.Request(), channels)
	return nil
}

func socketChannels(me, query string) ([]string, error) {
	own := events.MemberChannel(me)
	channels := []string{own}
	for _, ch := range strings.Split(query, ",") {
		ch = strings.TrimSpace(ch)
		if ch == "" || ch == own {
			continue
		}
		if strings.HasPrefix(ch, events.MemberChannel("")) {
			return nil, echo.NewHTTPError(http.StatusForbidden, "Cannot listen to another member's channel")
		}
		channels = append(channels, ch)
	}
	return channels, nil
}
