package queue

import (
	"fmt"
	"strings"

	"github.com/groupcart/settlement-engine/internal/domain"
)

// TaskMessage is the broker payload for settlement task processing.
type TaskMessage struct {
	TaskID        string                  `json:"taskId"`
	OrderID       string                  `json:"orderId"`
	CorrelationID string                  `json:"correlationId,omitempty"`
	Action        domain.SettlementAction `json:"action"`
}

func (m TaskMessage) Validate() error {
	if strings.TrimSpace(m.TaskID) == "" {
		return fmt.Errorf("taskId is required")
	}
	if strings.TrimSpace(m.OrderID) == "" {
		return fmt.Errorf("orderId is required")
	}
	if !m.Action.IsValid() {
		return fmt.Errorf("invalid action %q", m.Action)
	}
	return nil
}
