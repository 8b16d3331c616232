package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/groupcart/settlement-engine/internal/domain"
)

// Publisher publishes settlement task messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg TaskMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg TaskMessage) error

// Consumer consumes settlement task messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var supportedActions = []domain.SettlementAction{
	domain.ActionCapture,
	domain.ActionRefund,
}

// QueueName returns the action work queue name, e.g. settle.capture.
func QueueName(action domain.SettlementAction) string {
	return fmt.Sprintf("settle.%s", strings.ToLower(action.String()))
}

// DLQName returns the dead-letter queue name for an action, e.g.
// dlq.settle.capture.
func DLQName(action domain.SettlementAction) string {
	return fmt.Sprintf("dlq.%s", QueueName(action))
}

// WorkQueueNames returns all action work queues (2 total).
func WorkQueueNames() []string {
	queues := make([]string, 0, len(supportedActions))
	for _, action := range supportedActions {
		queues = append(queues, QueueName(action))
	}
	return queues
}

// DLQNames returns all dead-letter queues (2 total).
func DLQNames() []string {
	queues := make([]string, 0, len(supportedActions))
	for _, action := range supportedActions {
		queues = append(queues, DLQName(action))
	}
	return queues
}
