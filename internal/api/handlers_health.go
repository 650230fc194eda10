// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version    string
	configured func() bool
}

// NewHealthHandler creates a new health handler. configured may be nil.
func NewHealthHandler(version string, configured func() bool) HealthHandler {
	return &HealthHandlerImpl{version: version, configured: configured}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.configured != nil {
		resp["uploadsConfigured"] = h.configured()
	}
	return c.JSON(http.StatusOK, resp)
}
