package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultGatewayTimeout = 10 * time.Second

type authorizeRequest struct {
	Amount     int64  `json:"amount"`
	CustomerID string `json:"customerId"`
}

type authorizeResponse struct {
	Reference string `json:"reference"`
}

type settlementRequest struct {
	Reference string `json:"reference"`
}

type settlementResponse struct {
	TransactionID string `json:"transactionId"`
}

// HTTPGateway talks to the payment processor's REST API. Retries are owned by
// the settlement worker, so the client performs single attempts only.
type HTTPGateway struct {
	client  *resty.Client
	baseURL string
}

func NewHTTPGateway(baseURL string) (*HTTPGateway, error) {
	client := resty.New()
	client.SetTimeout(defaultGatewayTimeout)
	client.SetRetryCount(0)

	return NewHTTPGatewayWithClient(baseURL, client)
}

func NewHTTPGatewayWithClient(baseURL string, client *resty.Client) (*HTTPGateway, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("payment gateway base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid payment gateway url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPGateway{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (g *HTTPGateway) Authorize(ctx context.Context, amount int64, customerID string) (string, error) {
	if g == nil || g.client == nil {
		return "", fmt.Errorf("payment gateway is not initialized")
	}
	if amount <= 0 {
		return "", fmt.Errorf("authorization amount must be positive")
	}
	if strings.TrimSpace(customerID) == "" {
		return "", fmt.Errorf("customer id is required")
	}

	var out authorizeResponse
	response, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(authorizeRequest{Amount: amount, CustomerID: customerID}).
		SetResult(&out).
		Post(g.baseURL + "/authorizations")
	if err != nil {
		return "", g.wrapTransportError(err)
	}

	if err := checkStatus(response); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Reference) == "" {
		return "", &ProcessorError{
			StatusCode: response.StatusCode(),
			Message:    "authorization response missing reference",
		}
	}
	return out.Reference, nil
}

func (g *HTTPGateway) Capture(ctx context.Context, reference string) (*ProcessorResponse, error) {
	return g.settle(ctx, "/captures", reference)
}

func (g *HTTPGateway) Refund(ctx context.Context, reference string) (*ProcessorResponse, error) {
	return g.settle(ctx, "/refunds", reference)
}

func (g *HTTPGateway) settle(ctx context.Context, path, reference string) (*ProcessorResponse, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("payment gateway is not initialized")
	}
	if strings.TrimSpace(reference) == "" {
		return nil, fmt.Errorf("payment reference is required")
	}

	var out settlementResponse
	response, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(settlementRequest{Reference: reference}).
		SetResult(&out).
		Post(g.baseURL + path)
	if err != nil {
		return nil, g.wrapTransportError(err)
	}

	if err := checkStatus(response); err != nil {
		return nil, err
	}

	return &ProcessorResponse{
		StatusCode:    response.StatusCode(),
		Body:          strings.TrimSpace(response.String()),
		TransactionID: out.TransactionID,
	}, nil
}

func (g *HTTPGateway) wrapTransportError(err error) error {
	return &ProcessorError{
		Message:   "payment gateway request failed",
		Transient: !errors.Is(err, context.Canceled),
		Cause:     err,
	}
}

func checkStatus(response *resty.Response) error {
	if response == nil {
		return &ProcessorError{
			Message:   "payment gateway returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &ProcessorError{
		StatusCode: statusCode,
		Message:    gatewayErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func gatewayErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("gateway returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
