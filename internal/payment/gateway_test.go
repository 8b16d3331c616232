package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPGatewayAuthorizeSuccess(t *testing.T) {
	t.Parallel()

	var gotBody authorizeRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/authorizations" {
			t.Errorf("path = %s, want /authorizations", r.URL.Path)
		}

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"reference":"auth-ref-1"}`))
	}))
	defer server.Close()

	g, err := NewHTTPGateway(server.URL)
	if err != nil {
		t.Fatalf("NewHTTPGateway() error = %v", err)
	}

	ref, err := g.Authorize(context.Background(), 2500, "buyer-1")
	if err != nil {
		t.Fatalf("Authorize() unexpected error: %v", err)
	}
	if ref != "auth-ref-1" {
		t.Fatalf("reference = %q, want %q", ref, "auth-ref-1")
	}
	if gotBody.Amount != 2500 {
		t.Fatalf("request.amount = %d, want 2500", gotBody.Amount)
	}
	if gotBody.CustomerID != "buyer-1" {
		t.Fatalf("request.customerId = %q, want %q", gotBody.CustomerID, "buyer-1")
	}
}

func TestHTTPGatewayCaptureStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, wantTransient: false},
		{name: "internal server error is transient", statusCode: http.StatusInternalServerError, wantTransient: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte("gateway failed"))
			}))
			defer server.Close()

			g, err := NewHTTPGateway(server.URL)
			if err != nil {
				t.Fatalf("NewHTTPGateway() error = %v", err)
			}

			_, err = g.Capture(context.Background(), "auth-ref-1")
			if err == nil {
				t.Fatal("expected error")
			}

			var procErr *ProcessorError
			if !errors.As(err, &procErr) {
				t.Fatalf("error type = %T, want *ProcessorError", err)
			}
			if procErr.StatusCode != tc.statusCode {
				t.Fatalf("status code = %d, want %d", procErr.StatusCode, tc.statusCode)
			}
			if IsTransient(err) != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", IsTransient(err), tc.wantTransient)
			}
		})
	}
}

func TestHTTPGatewayRefundSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/refunds" {
			t.Errorf("path = %s, want /refunds", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"transactionId":"txn-9"}`))
	}))
	defer server.Close()

	g, err := NewHTTPGateway(server.URL)
	if err != nil {
		t.Fatalf("NewHTTPGateway() error = %v", err)
	}

	resp, err := g.Refund(context.Background(), "auth-ref-1")
	if err != nil {
		t.Fatalf("Refund() unexpected error: %v", err)
	}
	if resp.TransactionID != "txn-9" {
		t.Fatalf("transaction id = %q, want %q", resp.TransactionID, "txn-9")
	}
}

func TestNewHTTPGatewayValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPGateway(""); err == nil {
		t.Fatal("expected error for empty base url")
	}
	if _, err := NewHTTPGateway("not a url"); err == nil {
		t.Fatal("expected error for invalid base url")
	}
}
