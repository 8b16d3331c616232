package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/groupcart/settlement-engine/internal/domain"
)

type CreditService interface {
	Issue(ctx context.Context, userID string, amount int64, source domain.CreditSource, referralID *string) (*domain.CreditEntry, error)
	Balance(ctx context.Context, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]domain.CreditEntry, error)
	ApplyToOrder(ctx context.Context, userID, orderID string, amount int64) (int64, error)
}

type CreditHandler struct {
	service CreditService
}

func NewCreditHandler(service CreditService) (*CreditHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("credit service is required")
	}
	return &CreditHandler{service: service}, nil
}

func RegisterCreditRoutes(router fiber.Router, service CreditService) error {
	h, err := NewCreditHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/credits", h.IssueCredit)
	v1.Post("/credits/apply", h.ApplyCredits)
	v1.Get("/users/:id/credits", h.ListCredits)
	v1.Get("/users/:id/credits/balance", h.GetBalance)

	return nil
}

type issueCreditRequest struct {
	UserID     string  `json:"userId"`
	Amount     int64   `json:"amount"`
	Source     string  `json:"source"`
	ReferralID *string `json:"referralId,omitempty"`
}

type applyCreditsRequest struct {
	UserID  string `json:"userId"`
	OrderID string `json:"orderId"`
	Amount  int64  `json:"amount"`
}

type creditResponse struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Amount     int64      `json:"amount"`
	Source     string     `json:"source"`
	ReferralID *string    `json:"referralId,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	UsedAt     *time.Time `json:"usedAt,omitempty"`
	OrderID    *string    `json:"orderId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt,omitempty"`
}

type balanceResponse struct {
	UserID  string `json:"userId"`
	Balance int64  `json:"balance"`
}

type applyCreditsResponse struct {
	UserID   string `json:"userId"`
	OrderID  string `json:"orderId"`
	Consumed int64  `json:"consumed"`
}

func (h *CreditHandler) IssueCredit(c *fiber.Ctx) error {
	var req issueCreditRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	source, err := domain.ParseCreditSourceFromString(req.Source)
	if err != nil {
		return toHTTPError(err)
	}

	entry, err := h.service.Issue(c.Context(), req.UserID, req.Amount, source, req.ReferralID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toCreditResponse(entry))
}

func (h *CreditHandler) ApplyCredits(c *fiber.Ctx) error {
	var req applyCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	consumed, err := h.service.ApplyToOrder(c.Context(), req.UserID, req.OrderID, req.Amount)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(applyCreditsResponse{
		UserID:   strings.TrimSpace(req.UserID),
		OrderID:  strings.TrimSpace(req.OrderID),
		Consumed: consumed,
	})
}

func (h *CreditHandler) ListCredits(c *fiber.Ctx) error {
	entries, err := h.service.ListByUser(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]creditResponse, 0, len(entries))
	for i := range entries {
		responses = append(responses, toCreditResponse(&entries[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func (h *CreditHandler) GetBalance(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("id"))
	balance, err := h.service.Balance(c.Context(), userID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(balanceResponse{
		UserID:  userID,
		Balance: balance,
	})
}

func toCreditResponse(entry *domain.CreditEntry) creditResponse {
	if entry == nil {
		return creditResponse{}
	}
	return creditResponse{
		ID:         entry.ID,
		UserID:     entry.UserID,
		Amount:     entry.Amount,
		Source:     entry.Source.String(),
		ReferralID: entry.ReferralID,
		ExpiresAt:  entry.ExpiresAt,
		UsedAt:     entry.UsedAt,
		OrderID:    entry.OrderID,
		CreatedAt:  entry.CreatedAt,
	}
}
