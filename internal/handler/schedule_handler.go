package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/meridianpay/meridian-backend/internal/middleware"
	"github.com/meridianpay/meridian-backend/internal/service"
	"github.com/rs/zerolog/log"
)

// ScheduleHandler handles scheduled payment HTTP requests
type ScheduleHandler struct {
	scheduleService *service.ScheduleService
	sweeper         *service.Sweeper
}

// NewScheduleHandler creates a new ScheduleHandler
func NewScheduleHandler(scheduleService *service.ScheduleService, sweeper *service.Sweeper) *ScheduleHandler {
	return &ScheduleHandler{
		scheduleService: scheduleService,
		sweeper:         sweeper,
	}
}

// ScheduleRequest represents the JSON request for creating or updating a schedule
type ScheduleRequest struct {
	FromAddress    string                `json:"fromAddress"`
	Recipients     []domain.Recipient    `json:"recipients"`
	ScheduleType   domain.ScheduleType   `json:"scheduleType"`
	ScheduleConfig domain.ScheduleConfig `json:"scheduleConfig"`
	MaxExecutions  *int                  `json:"maxExecutions,omitempty"`
	ChainID        uint64                `json:"chainId"`
	Token          string                `json:"token"`
}

// Create creates a new scheduled payment at POST /scheduled-payments
func (h *ScheduleHandler) Create(c echo.Context) error {
	owner := middleware.GetWalletAddress(c)

	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	sp := &domain.ScheduledPayment{
		OwnerAddress:   owner,
		FromAddress:    req.FromAddress,
		Recipients:     req.Recipients,
		ScheduleType:   req.ScheduleType,
		ScheduleConfig: req.ScheduleConfig,
		MaxExecutions:  req.MaxExecutions,
		ChainID:        req.ChainID,
		Token:          req.Token,
	}

	created, err := h.scheduleService.Create(c.Request().Context(), sp)
	if err != nil {
		log.Error().Err(err).Str("owner", owner).Msg("Failed to create scheduled payment")
		return h.handleServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, created)
}

// List returns all scheduled payments for the caller at GET /scheduled-payments
func (h *ScheduleHandler) List(c echo.Context) error {
	owner := middleware.GetWalletAddress(c)

	payments, err := h.scheduleService.ListByOwner(c.Request().Context(), owner)
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, payments)
}

// Get returns one scheduled payment at GET /scheduled-payments/:id
func (h *ScheduleHandler) Get(c echo.Context) error {
	sp, err := h.ownedSchedule(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sp)
}

// Update replaces the recipients and recurrence rule at PUT /scheduled-payments/:id
func (h *ScheduleHandler) Update(c echo.Context) error {
	sp, err := h.ownedSchedule(c)
	if err != nil {
		return err
	}

	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	updated, err := h.scheduleService.Update(c.Request().Context(), sp.ID, req.Recipients, req.ScheduleType, req.ScheduleConfig, req.MaxExecutions)
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// Pause pauses a schedule at POST /scheduled-payments/:id/pause
func (h *ScheduleHandler) Pause(c echo.Context) error {
	sp, err := h.ownedSchedule(c)
	if err != nil {
		return err
	}
	if err := h.scheduleService.Pause(c.Request().Context(), sp.ID); err != nil {
		return h.handleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Resume reactivates a paused schedule at POST /scheduled-payments/:id/resume
func (h *ScheduleHandler) Resume(c echo.Context) error {
	sp, err := h.ownedSchedule(c)
	if err != nil {
		return err
	}
	if err := h.scheduleService.Resume(c.Request().Context(), sp.ID); err != nil {
		return h.handleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Cancel permanently stops a schedule at POST /scheduled-payments/:id/cancel
func (h *ScheduleHandler) Cancel(c echo.Context) error {
	sp, err := h.ownedSchedule(c)
	if err != nil {
		return err
	}
	if err := h.scheduleService.Cancel(c.Request().Context(), sp.ID); err != nil {
		return h.handleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Logs returns recent execution logs at GET /scheduled-payments/:id/logs
func (h *ScheduleHandler) Logs(c echo.Context) error {
	sp, err := h.ownedSchedule(c)
	if err != nil {
		return err
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	logs, err := h.scheduleService.Logs(c.Request().Context(), sp.ID, limit)
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, logs)
}

// Sweep manually triggers one due-payment sweep at POST /scheduled-payments/sweep.
// Normally the background sweeper does this; the endpoint exists for
// operational tooling and external cron triggers.
func (h *ScheduleHandler) Sweep(c echo.Context) error {
	summary := h.sweeper.SweepNow(c.Request().Context())
	return c.JSON(http.StatusOK, summary)
}

// ownedSchedule loads the schedule from the :id param and verifies the
// caller owns it.
func (h *ScheduleHandler) ownedSchedule(c echo.Context) (*domain.ScheduledPayment, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, NewValidationError(c, "Invalid schedule id", nil)
	}

	sp, err := h.scheduleService.Get(c.Request().Context(), id)
	if err != nil {
		return nil, h.handleServiceError(c, err)
	}
	if sp.OwnerAddress != middleware.GetWalletAddress(c) {
		return nil, NewNotFoundError(c, "Scheduled payment not found")
	}
	return sp, nil
}

// handleServiceError maps domain errors to appropriate HTTP responses
func (h *ScheduleHandler) handleServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrScheduleNotFound):
		return NewNotFoundError(c, "Scheduled payment not found")
	case errors.Is(err, domain.ErrScheduleCancelled):
		return NewConflictError(c, "Scheduled payment is cancelled")
	case errors.Is(err, domain.ErrScheduleNotActive):
		return NewConflictError(c, "Scheduled payment is not active")
	case errors.Is(err, domain.ErrInvalidJobState):
		return NewConflictError(c, err.Error())
	case errors.Is(err, domain.ErrInvalidSchedule),
		errors.Is(err, domain.ErrEmptyRecipients),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrUnknownChain),
		errors.Is(err, domain.ErrUnsupportedToken),
		errors.Is(err, domain.ErrInvalidInput):
		return NewValidationError(c, err.Error(), nil)
	default:
		return NewInternalError(c, "Scheduled payment operation failed")
	}
}
