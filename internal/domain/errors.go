package domain

import "errors"

// Tenant resolution failures. No mutation has happened when one of these is returned.
var (
	ErrMissingTenant    = errors.New("tenant identifier is required")
	ErrUnknownTenant    = errors.New("unknown tenant")
	ErrInactiveTenant   = errors.New("tenant is inactive")
	ErrUnroutableTenant = errors.New("tenant has no data store configured")
)

// Entity and state-machine failures.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidState      = errors.New("invalid state for operation")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrStaleState means a conditional update matched no row: another request
	// moved the entity first. Re-read and reconsider; never resend the same write.
	ErrStaleState = errors.New("stale state")
)
