package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrInvalidTransition signals a status precondition violation on any of the
	// order, batch, or errand state machines.
	ErrInvalidTransition = errors.New("invalid transition")

	// Errand business rules.
	ErrAlreadyApplied            = errors.New("already applied")
	ErrNotAcceptingApplications  = errors.New("not accepting applications")
	ErrActiveErrandLimitExceeded = errors.New("active errand limit exceeded")

	// Ledger rules.
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBelowMinimum        = errors.New("amount below minimum")

	// ErrAuthorizationRequired is returned when an escrow hold is requested
	// without a payment authorization reference.
	ErrAuthorizationRequired = errors.New("payment authorization required")

	// ErrSuspended is returned when the moderation collaborator reports the
	// target entity as suspended.
	ErrSuspended = errors.New("entity suspended")
)
