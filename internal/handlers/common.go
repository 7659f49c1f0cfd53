package handlers

import (
	"errors"
	"net/http"

	"github.com/anonto42/nano-midea/fanout/internal/events"
	"github.com/anonto42/nano-midea/fanout/internal/middleware"
	"github.com/anonto42/nano-midea/fanout/internal/repositories"
	"github.com/labstack/echo/v4"
)

// currentMember returns the authenticated member id or a 401.
func currentMember(c echo.Context) (string, error) {
	id := middleware.MemberID(c)
	if id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Member not authenticated")
	}
	return id, nil
}

// httpError maps engine and store errors to HTTP errors.
func httpError(err error) error {
	switch {
	case errors.Is(err, events.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, repositories.ErrNotFound), errors.Is(err, events.ErrNoRecordsUpdated):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, repositories.ErrConflict), errors.Is(err, events.ErrNotPending):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, echo.Map{"success": true, "data": data})
}
