package payment

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Processor is the outbound payment port. The engine trusts its results: a
// successful authorize yields a reference the escrow ledger stores, and
// capture/refund settle that reference.
type Processor interface {
	Authorize(ctx context.Context, amount int64, customerID string) (string, error)
	Capture(ctx context.Context, reference string) (*ProcessorResponse, error)
	Refund(ctx context.Context, reference string) (*ProcessorResponse, error)
}

// ProcessorResponse stores call metadata for audit and persistence.
type ProcessorResponse struct {
	StatusCode    int
	Body          string
	TransactionID string
}

// ProcessorError classifies payment call failures as transient/permanent.
type ProcessorError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProcessorError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "payment processor error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProcessorError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a settlement call should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var procErr *ProcessorError
	if errors.As(err, &procErr) {
		return procErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
