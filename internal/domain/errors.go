package domain

import "errors"

// Domain errors
var (
	ErrNotFound             = errors.New("resource not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInternalError        = errors.New("internal error")
	ErrJobNotFound          = errors.New("batch job not found")
	ErrInvalidJobState      = errors.New("batch job is not in a state that allows this operation")
	ErrNoValidLines         = errors.New("no valid payment lines in file")
	ErrEmptyRecipients      = errors.New("at least one recipient is required")
	ErrInvalidAmount        = errors.New("amount must be a positive decimal")
	ErrUnknownChain         = errors.New("unknown chain id")
	ErrUnsupportedToken     = errors.New("token is not supported on this chain")
	ErrNoWallet             = errors.New("no wallet connected for chain family")
	ErrRelayerNotConfigured = errors.New("relayer not configured")
	ErrScheduleNotFound     = errors.New("scheduled payment not found")
	ErrInvalidSchedule      = errors.New("invalid schedule configuration")
	ErrScheduleNotActive    = errors.New("scheduled payment is not active")
	ErrScheduleCancelled    = errors.New("scheduled payment is cancelled")
	ErrSettlementNotFound   = errors.New("settlement record not found")
	ErrInvalidPeriod        = errors.New("period start must be before period end")
	ErrNotDiscrepant        = errors.New("settlement is not in discrepancy_found state")
	ErrFailedItemNotFound   = errors.New("failed item not found")
)

// Validation constants
const (
	MaxMemoLength      = 256
	MaxRecipientsBatch = 1000
)
