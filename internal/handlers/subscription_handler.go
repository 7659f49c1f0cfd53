package handlers

import (
	"net/http"

	"github.com/anonto42/nano-midea/fanout/internal/events"
	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/anonto42/nano-midea/fanout/internal/repositories"
	"github.com/labstack/echo/v4"
)

// SubscriptionHandler handles subscribe, unsubscribe and accept requests
type SubscriptionHandler struct {
	engine        *events.Engine
	subscriptions repositories.SubscriptionRepository
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(engine *events.Engine, subscriptions repositories.SubscriptionRepository) *SubscriptionHandler {
	return &SubscriptionHandler{engine: engine, subscriptions: subscriptions}
}

// RegisterSubscriptionRoutes registers subscription routes
func (h *SubscriptionHandler) RegisterSubscriptionRoutes(g *echo.Group) {
	g.POST("/subscriptions", h.Subscribe)
	g.DELETE("/subscriptions/:subscribee", h.Unsubscribe)
	g.PUT("/subscriptions/:id/accept", h.Accept)
}

// SubscribeRequest is the body of POST /subscriptions
type SubscribeRequest struct {
	SubscribeeID string                  `json:"subscribee_id" validate:"required"`
	Meta         models.SubscriptionMeta `json:"meta"`
}

// Subscribe subscribes the current member to a member or a resource
func (h *SubscriptionHandler) Subscribe(c echo.Context) error {
	me, err := currentMember(c)
	if err != nil {
		return err
	}

	var req SubscribeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.SubscribeeID == me {
		return echo.NewHTTPError(http.StatusBadRequest, "Cannot subscribe to yourself")
	}

	sub, err := h.engine.Subscribe(c.Request().Context(), me, req.SubscribeeID, req.Meta)
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusCreated, sub)
}

// Unsubscribe removes the current member's subscription to :subscribee
func (h *SubscriptionHandler) Unsubscribe(c echo.Context) error {
	me, err := currentMember(c)
	if err != nil {
		return err
	}

	sub, err := h.engine.Unsubscribe(c.Request().Context(), me, c.Param("subscribee"))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, echo.Map{"removed": sub != nil, "subscription": sub})
}

// Accept turns a pending request to the current member into a follow
func (h *SubscriptionHandler) Accept(c echo.Context) error {
	me, err := currentMember(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	sub, err := h.subscriptions.Read(ctx, repositories.SubscriptionFilter{ID: c.Param("id")})
	if err != nil {
		return httpError(err)
	}
	if sub.SubscribeeID != me {
		return echo.NewHTTPError(http.StatusForbidden, "Only the requested member can accept")
	}

	if err := h.engine.Accept(ctx, sub); err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, sub)
}
