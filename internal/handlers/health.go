package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ClientCounter reports the number of live socket clients.
type ClientCounter interface {
	Clients() int
}

// HealthCheck reports liveness and the number of connected socket clients.
func HealthCheck(clients ClientCounter) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":  "healthy",
			"service": "fanout",
			"clients": clients.Clients(),
		})
	}
}
