package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/anonto42/nano-midea/fanout/internal/events"
	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/anonto42/nano-midea/fanout/internal/repositories"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

// NotificationHandler serves a member's notification inbox
type NotificationHandler struct {
	engine        *events.Engine
	notifications repositories.NotificationRepository
	events        repositories.EventRepository
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(engine *events.Engine, notifications repositories.NotificationRepository, eventRepo repositories.EventRepository) *NotificationHandler {
	return &NotificationHandler{
		engine:        engine,
		notifications: notifications,
		events:        eventRepo,
	}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
	g.PUT("/notifications/read-all", h.MarkAllAsRead)
}

// GetNotifications returns a page of the member's notifications, newest
// first, each with its event as the member sees it. Notifications whose
// event the member may no longer see are left out.
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	me, err := currentMember(c)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 50 {
		limit = 20
	}

	ctx := c.Request().Context()
	notes, err := h.notifications.ListBySubscriber(ctx, me, int64((page-1)*limit), int64(limit))
	if err != nil {
		return httpError(err)
	}

	views := make([]models.Doc, len(notes))
	var g errgroup.Group
	for i, note := range notes {
		g.Go(func() error {
			event, err := h.events.Read(ctx, note.EventID)
			if errors.Is(err, repositories.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			view, visible, err := h.engine.Hydrate(ctx, event, me)
			if err != nil || !visible {
				return err
			}
			doc := note.Doc().Client()
			doc["event"] = view
			views[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return httpError(err)
	}

	out := make([]models.Doc, 0, len(views))
	for _, v := range views {
		if v != nil {
			out = append(out, v)
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": out,
		},
		"meta": echo.Map{
			"currentPage":     page,
			"itemsPerPage":    limit,
			"hasNextPage":     len(notes) == limit,
			"hasPreviousPage": page > 1,
		},
	})
}

// MarkAsRead marks one of the member's notifications as read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	me, err := currentMember(c)
	if err != nil {
		return err
	}

	if err := h.notifications.MarkAsRead(c.Request().Context(), c.Param("id"), me); err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, echo.Map{"read": true})
}

// MarkAllAsRead marks all the member's notifications as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	me, err := currentMember(c)
	if err != nil {
		return err
	}

	if err := h.notifications.MarkAllAsRead(c.Request().Context(), me); err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, echo.Map{"read": true})
}
