package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/meridianpay/meridian-backend/internal/bridge"
)

// FallbackEventsProvider exposes the bridge's recent fallback events
type FallbackEventsProvider interface {
	FallbackEvents() []bridge.FallbackEvent
}

// OpsHandler serves operational observability endpoints
type OpsHandler struct {
	bridge FallbackEventsProvider
}

// NewOpsHandler creates a new OpsHandler
func NewOpsHandler(bridge FallbackEventsProvider) *OpsHandler {
	return &OpsHandler{bridge: bridge}
}

// FallbackEvents lists recent remote-to-local fallbacks at GET /ops/fallback-events
func (h *OpsHandler) FallbackEvents(c echo.Context) error {
	return c.JSON(http.StatusOK, h.bridge.FallbackEvents())
}
