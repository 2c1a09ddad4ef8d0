package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/meridianpay/meridian-backend/internal/dispatch"
	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/meridianpay/meridian-backend/internal/middleware"
	"github.com/meridianpay/meridian-backend/internal/service"
	"github.com/rs/zerolog/log"
)

// BatchHandler handles batch job HTTP requests
type BatchHandler struct {
	batchService *service.BatchService
	retryService *service.RetryService
}

// NewBatchHandler creates a new BatchHandler
func NewBatchHandler(batchService *service.BatchService, retryService *service.RetryService) *BatchHandler {
	return &BatchHandler{
		batchService: batchService,
		retryService: retryService,
	}
}

// ApproveRequest represents the JSON request for approving a batch job
type ApproveRequest struct {
	SingleSignatureBatch bool `json:"singleSignatureBatch"`
}

// RetryRequest represents the JSON request for retrying failed items
type RetryRequest struct {
	ItemIDs []uuid.UUID `json:"itemIds"`
}

// Submit ingests an uploaded recipient CSV at POST /batches. The file
// field of the multipart form carries the CSV; fromAddress the funding
// wallet.
func (h *BatchHandler) Submit(c echo.Context) error {
	owner := middleware.GetWalletAddress(c)

	fromAddress := c.FormValue("fromAddress")
	if fromAddress == "" {
		return NewValidationError(c, "fromAddress is required", nil)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return NewValidationError(c, "CSV file is required", nil)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return NewInternalError(c, "Failed to read uploaded file")
	}
	defer file.Close()

	job, err := h.batchService.Submit(c.Request().Context(), owner, fromAddress, file)
	if err != nil {
		log.Error().Err(err).Str("owner", owner).Msg("Failed to submit batch job")
		return h.handleServiceError(c, err)
	}

	return c.JSON(http.StatusAccepted, job)
}

// Status returns the current state of a batch job at GET /batches/:id
func (h *BatchHandler) Status(c echo.Context) error {
	job, err := h.ownedJob(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, job)
}

// Approve moves a parsed job into processing at POST /batches/:id/approve
func (h *BatchHandler) Approve(c echo.Context) error {
	job, err := h.ownedJob(c)
	if err != nil {
		return err
	}

	var req ApproveRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	job, err = h.batchService.Approve(c.Request().Context(), job.ID, dispatch.Options{
		SingleSignatureBatch: req.SingleSignatureBatch,
	})
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(http.StatusOK, job)
}

// Cancel aborts a pending job at POST /batches/:id/cancel
func (h *BatchHandler) Cancel(c echo.Context) error {
	job, err := h.ownedJob(c)
	if err != nil {
		return err
	}

	job, err = h.batchService.Cancel(c.Request().Context(), job.ID)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(http.StatusOK, job)
}

// FailedItems lists the failed items of a job at GET /batches/:id/failed-items
func (h *BatchHandler) FailedItems(c echo.Context) error {
	job, err := h.ownedJob(c)
	if err != nil {
		return err
	}

	items, err := h.retryService.ListByJob(c.Request().Context(), job.ID)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(http.StatusOK, items)
}

// ownedJob loads the job from the :id param and verifies the caller
// owns it. Another owner's job is reported as not found so its
// existence is never revealed.
func (h *BatchHandler) ownedJob(c echo.Context) (*domain.BatchJob, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, NewValidationError(c, "Invalid job id", nil)
	}

	job, err := h.batchService.Status(c.Request().Context(), id)
	if err != nil {
		return nil, h.handleServiceError(c, err)
	}
	if job.OwnerAddress != middleware.GetWalletAddress(c) {
		return nil, NewNotFoundError(c, "Batch job not found")
	}
	return job, nil
}

// ListFailedItems lists every failed item of the caller at GET /failed-items
func (h *BatchHandler) ListFailedItems(c echo.Context) error {
	owner := middleware.GetWalletAddress(c)

	items, err := h.retryService.ListByOwner(c.Request().Context(), owner)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(http.StatusOK, items)
}

// Retry replays failed items at POST /failed-items/retry
func (h *BatchHandler) Retry(c echo.Context) error {
	owner := middleware.GetWalletAddress(c)

	var req RetryRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	if len(req.ItemIDs) == 0 {
		return NewValidationError(c, "At least one item id is required", nil)
	}

	result, err := h.retryService.Retry(c.Request().Context(), owner, req.ItemIDs)
	if err != nil {
		log.Error().Err(err).Str("owner", owner).Msg("Failed to retry items")
		return h.handleServiceError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// handleServiceError maps domain errors to appropriate HTTP responses
func (h *BatchHandler) handleServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		return NewNotFoundError(c, "Batch job not found")
	case errors.Is(err, domain.ErrFailedItemNotFound):
		return NewNotFoundError(c, "Failed item not found")
	case errors.Is(err, domain.ErrInvalidJobState):
		return NewConflictError(c, "Batch job is not in a state that allows this operation")
	case errors.Is(err, domain.ErrNoValidLines):
		return NewValidationError(c, "No valid payment lines in file", nil)
	case errors.Is(err, domain.ErrUnknownChain), errors.Is(err, domain.ErrUnsupportedToken):
		return NewValidationError(c, err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidInput):
		return NewValidationError(c, err.Error(), nil)
	default:
		return NewInternalError(c, "Batch operation failed")
	}
}
