package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/meridianpay/meridian-backend/internal/middleware"
	"github.com/meridianpay/meridian-backend/internal/service"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// SettlementHandler handles settlement HTTP requests
type SettlementHandler struct {
	settlementService *service.SettlementService
}

// NewSettlementHandler creates a new SettlementHandler
func NewSettlementHandler(settlementService *service.SettlementService) *SettlementHandler {
	return &SettlementHandler{
		settlementService: settlementService,
	}
}

// CreateSettlementRequest represents the JSON request for creating a settlement
type CreateSettlementRequest struct {
	Token          string  `json:"token"`
	Chain          string  `json:"chain"`
	PeriodStart    string  `json:"periodStart"` // RFC 3339
	PeriodEnd      string  `json:"periodEnd"`   // RFC 3339
	OnChainBalance *string `json:"onChainBalance,omitempty"`
}

// ResolveRequest represents the JSON request for resolving a discrepancy
type ResolveRequest struct {
	ResolvedBy string `json:"resolvedBy"`
	Note       string `json:"note"`
}

// Create reconciles one closed period at POST /settlements
func (h *SettlementHandler) Create(c echo.Context) error {
	owner := middleware.GetWalletAddress(c)

	var req CreateSettlementRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	if req.Token == "" || req.Chain == "" {
		return NewValidationError(c, "token and chain are required", nil)
	}

	periodStart, err := time.Parse(time.RFC3339, req.PeriodStart)
	if err != nil {
		return NewValidationError(c, "periodStart must be RFC 3339", nil)
	}
	periodEnd, err := time.Parse(time.RFC3339, req.PeriodEnd)
	if err != nil {
		return NewValidationError(c, "periodEnd must be RFC 3339", nil)
	}

	var onChain *decimal.Decimal
	if req.OnChainBalance != nil {
		parsed, err := decimal.NewFromString(*req.OnChainBalance)
		if err != nil {
			return NewValidationError(c, "onChainBalance must be a decimal string", nil)
		}
		onChain = &parsed
	}

	record, err := h.settlementService.CreateSettlement(c.Request().Context(), owner, req.Token, req.Chain, periodStart, periodEnd, onChain)
	if err != nil {
		log.Error().Err(err).Str("owner", owner).Msg("Failed to create settlement")
		return h.handleServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, record)
}

// List returns recent settlement records for the caller at GET /settlements
func (h *SettlementHandler) List(c echo.Context) error {
	owner := middleware.GetWalletAddress(c)
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	records, err := h.settlementService.List(c.Request().Context(), owner, limit)
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

// Get returns one settlement record at GET /settlements/:id
func (h *SettlementHandler) Get(c echo.Context) error {
	record, err := h.settlementService.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}
	if record.UserAddress != middleware.GetWalletAddress(c) {
		return NewNotFoundError(c, "Settlement record not found")
	}
	return c.JSON(http.StatusOK, record)
}

// ListDiscrepancies returns unresolved discrepancies at GET /settlements/discrepancies
func (h *SettlementHandler) ListDiscrepancies(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	records, err := h.settlementService.ListDiscrepancies(c.Request().Context(), limit)
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

// Resolve marks a discrepancy resolved at POST /settlements/:id/resolve
func (h *SettlementHandler) Resolve(c echo.Context) error {
	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	if req.ResolvedBy == "" || req.Note == "" {
		return NewValidationError(c, "resolvedBy and note are required", nil)
	}

	record, err := h.settlementService.ResolveDiscrepancy(c.Request().Context(), c.Param("id"), req.ResolvedBy, req.Note)
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

// handleServiceError maps domain errors to appropriate HTTP responses
func (h *SettlementHandler) handleServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrSettlementNotFound):
		return NewNotFoundError(c, "Settlement record not found")
	case errors.Is(err, domain.ErrNotDiscrepant):
		return NewConflictError(c, "Settlement is not in discrepancy_found state")
	case errors.Is(err, domain.ErrInvalidPeriod):
		return NewValidationError(c, "Period start must be before period end", nil)
	case errors.Is(err, domain.ErrInvalidJobState):
		return NewConflictError(c, err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidAmount):
		return NewValidationError(c, err.Error(), nil)
	default:
		return NewInternalError(c, "Settlement operation failed")
	}
}
