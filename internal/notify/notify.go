package notify

import "context"

// Notification is the payload handed to the dispatch collaborator.
type Notification struct {
	UserID  string         `json:"userId"`
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Notification types emitted by the engine.
const (
	TypeBatchSuccessful  = "batch_successful"
	TypeBatchFailed      = "batch_failed"
	TypeBatchCancelled   = "batch_cancelled"
	TypeErrandAssigned   = "errand_assigned"
	TypeErrandCompleted  = "errand_completed"
	TypeCreditIssued     = "credit_issued"
	TypeWithdrawalFiled  = "withdrawal_filed"
	TypePaymentReleased  = "payment_released"
	TypeApplicationState = "application_state"
)

// Notifier is the fire-and-forget notification dispatch port. Delivery
// failures are logged by callers, never retried by this engine.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, n Notification) error { return nil }
