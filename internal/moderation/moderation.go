package moderation

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// EntityType identifies what kind of record is checked for suspension.
type EntityType string

const (
	EntityListing EntityType = "listing"
	EntityErrand  EntityType = "errand"
	EntityUser    EntityType = "user"
)

// SuspensionChecker is the moderation collaborator port, consulted before
// accepting new orders or applications against a listing or errand.
type SuspensionChecker interface {
	IsSuspended(ctx context.Context, entityType EntityType, entityID string) (bool, error)
}

// AllowAll never reports a suspension; the default when no moderation
// service is configured.
type AllowAll struct{}

func (AllowAll) IsSuspended(ctx context.Context, entityType EntityType, entityID string) (bool, error) {
	return false, nil
}

const defaultCheckTimeout = 3 * time.Second

type suspensionResponse struct {
	Suspended bool `json:"suspended"`
}

// HTTPChecker queries the moderation service's suspension endpoint. Errors
// fail open: a moderation outage must not block commerce, so callers receive
// (false, err) and decide whether to log or reject.
type HTTPChecker struct {
	client  *resty.Client
	baseURL string
}

func NewHTTPChecker(baseURL string) (*HTTPChecker, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("moderation service url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid moderation service url: %w", err)
	}

	client := resty.New()
	client.SetTimeout(defaultCheckTimeout)
	client.SetRetryCount(0)

	return &HTTPChecker{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (c *HTTPChecker) IsSuspended(ctx context.Context, entityType EntityType, entityID string) (bool, error) {
	if c == nil || c.client == nil {
		return false, fmt.Errorf("suspension checker is not initialized")
	}
	if strings.TrimSpace(entityID) == "" {
		return false, fmt.Errorf("entity id is required")
	}

	var out suspensionResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("%s/suspensions/%s/%s", c.baseURL, entityType, entityID))
	if err != nil {
		return false, fmt.Errorf("suspension check failed: %w", err)
	}
	if response.IsError() {
		return false, fmt.Errorf("suspension check returned status %d", response.StatusCode())
	}
	return out.Suspended, nil
}
