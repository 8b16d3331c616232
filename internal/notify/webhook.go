package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultDispatchTimeout = 5 * time.Second

// WebhookNotifier posts notifications to the dispatch service's webhook.
type WebhookNotifier struct {
	client   *resty.Client
	endpoint string
}

func NewWebhookNotifier(endpoint string) (*WebhookNotifier, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("notify webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid notify webhook endpoint: %w", err)
	}

	client := resty.New()
	client.SetTimeout(defaultDispatchTimeout)
	client.SetRetryCount(0)

	return &WebhookNotifier{
		client:   client,
		endpoint: trimmed,
	}, nil
}

func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	if w == nil || w.client == nil {
		return fmt.Errorf("notifier is not initialized")
	}
	if strings.TrimSpace(n.UserID) == "" {
		return fmt.Errorf("user id is required")
	}

	response, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(n).
		Post(w.endpoint)
	if err != nil {
		return fmt.Errorf("notification dispatch failed: %w", err)
	}
	if response.IsError() {
		return fmt.Errorf("notification dispatch returned status %d", response.StatusCode())
	}
	return nil
}
