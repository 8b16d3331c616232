package queue

import (
	"testing"

	"github.com/groupcart/settlement-engine/internal/domain"
)

func TestQueueNames(t *testing.T) {
	work := WorkQueueNames()
	if len(work) != 2 {
		t.Fatalf("WorkQueueNames len = %d, want 2", len(work))
	}

	expected := map[string]struct{}{
		"settle.capture": {},
		"settle.refund":  {},
	}

	for _, name := range work {
		if _, ok := expected[name]; !ok {
			t.Fatalf("unexpected queue name: %s", name)
		}
	}

	dlq := DLQNames()
	if len(dlq) != 2 {
		t.Fatalf("DLQNames len = %d, want 2", len(dlq))
	}

	expectedDLQ := map[string]struct{}{
		"dlq.settle.capture": {},
		"dlq.settle.refund":  {},
	}

	for _, name := range dlq {
		if _, ok := expectedDLQ[name]; !ok {
			t.Fatalf("unexpected dlq name: %s", name)
		}
	}
}

func TestQueueName(t *testing.T) {
	queueName := QueueName(domain.ActionCapture)
	if queueName != "settle.capture" {
		t.Fatalf("QueueName = %s, want settle.capture", queueName)
	}

	dlqName := DLQName(domain.ActionRefund)
	if dlqName != "dlq.settle.refund" {
		t.Fatalf("DLQName = %s, want dlq.settle.refund", dlqName)
	}
}

func TestTaskMessageValidate(t *testing.T) {
	msg := TaskMessage{
		TaskID:  "t1",
		OrderID: "o1",
		Action:  domain.ActionCapture,
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	msg.TaskID = ""
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for empty task id")
	}

	msg.TaskID = "t1"
	msg.OrderID = ""
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for empty order id")
	}

	msg.OrderID = "o1"
	msg.Action = domain.SettlementAction("invalid")
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for invalid action")
	}
}
