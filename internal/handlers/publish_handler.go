package handlers

import (
	"net/http"
	"strings"

	"github.com/anonto42/nano-midea/fanout/internal/events"
	"github.com/anonto42/nano-midea/fanout/internal/repositories"
	"github.com/labstack/echo/v4"
)

// PublishHandler lets content services publish member actions
type PublishHandler struct {
	engine *events.Engine
	events repositories.EventRepository
}

// NewPublishHandler creates a new PublishHandler
func NewPublishHandler(engine *events.Engine, events repositories.EventRepository) *PublishHandler {
	return &PublishHandler{engine: engine, events: events}
}

// RegisterPublishRoutes registers the publish route
func (h *PublishHandler) RegisterPublishRoutes(g *echo.Group) {
	g.POST("/publish", h.Publish)
}

// PublishRequest is the body of POST /publish
type PublishRequest struct {
	Channel string        `json:"channel" validate:"required"`
	Topic   string        `json:"topic" validate:"required"`
	Params  events.Params `json:"params"`
}

// Fields an amend may not rewrite.
var lockedEventFields = []string{"_id", "id", "actor_id"}

// Publish publishes an action of the current member. New events are
// always attributed to the caller, and only the actor may amend an event.
func (h *PublishHandler) Publish(c echo.Context) error {
	me, err := currentMember(c)
	if err != nil {
		return err
	}

	var req PublishRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}

	own := events.MemberChannel(me)
	if strings.HasPrefix(req.Channel, events.MemberChannel("")) && req.Channel != own {
		return echo.NewHTTPError(http.StatusForbidden, "Cannot publish on another member's channel")
	}
	if data := req.Params.Data; data != nil && !data.Bool("public", true) {
		if ch := events.AuthorChannel(data); ch != "" && ch != own {
			return echo.NewHTTPError(http.StatusForbidden, "Cannot send private data to another member")
		}
	}

	if ev := req.Params.Event; ev != nil {
		if ev.ID == "" {
			switch ev.ActorID {
			case "":
				ev.ActorID = me
			case me:
			default:
				return echo.NewHTTPError(http.StatusForbidden, "Cannot publish on behalf of another member")
			}
		} else {
			for _, field := range lockedEventFields {
				if _, ok := ev.Set[field]; ok {
					return echo.NewHTTPError(http.StatusForbidden, "Cannot change "+field+" of an event")
				}
			}
			existing, err := h.events.Read(c.Request().Context(), ev.ID)
			if err != nil {
				return httpError(err)
			}
			if existing.ActorID != me {
				return echo.NewHTTPError(http.StatusForbidden, "Cannot amend another member's event")
			}
		}
	}

	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.engine.Publish(c.Request().Context(), req.Channel, req.Topic, req.Params); err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusAccepted, echo.Map{"channel": req.Channel, "topic": req.Topic})
}
