package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/groupcart/settlement-engine/internal/domain"
)

type WalletService interface {
	GetWallet(ctx context.Context, vendorID string) (*domain.VendorWallet, error)
	CreateWithdrawal(ctx context.Context, vendorID string, amount int64, methodID string) (*domain.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, vendorID string) ([]domain.WithdrawalRequest, error)
}

type WalletHandler struct {
	service WalletService
}

func NewWalletHandler(service WalletService) (*WalletHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("wallet service is required")
	}
	return &WalletHandler{service: service}, nil
}

func RegisterWalletRoutes(router fiber.Router, service WalletService) error {
	h, err := NewWalletHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/vendors/:id/wallet", h.GetWallet)
	v1.Post("/withdrawals", h.CreateWithdrawal)
	v1.Get("/vendors/:id/withdrawals", h.ListWithdrawals)

	return nil
}

type createWithdrawalRequest struct {
	VendorID string `json:"vendorId"`
	Amount   int64  `json:"amount"`
	MethodID string `json:"methodId"`
}

type walletResponse struct {
	VendorID         string    `json:"vendorId"`
	AvailableBalance int64     `json:"availableBalance"`
	PendingBalance   int64     `json:"pendingBalance"`
	TotalEarned      int64     `json:"totalEarned"`
	CalculatedAt     time.Time `json:"calculatedAt"`
}

type withdrawalResponse struct {
	ID        string    `json:"id"`
	VendorID  string    `json:"vendorId"`
	Amount    int64     `json:"amount"`
	MethodID  string    `json:"methodId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	wallet, err := h.service.GetWallet(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(walletResponse{
		VendorID:         wallet.VendorID,
		AvailableBalance: wallet.AvailableBalance,
		PendingBalance:   wallet.PendingBalance,
		TotalEarned:      wallet.TotalEarned,
		CalculatedAt:     wallet.CalculatedAt,
	})
}

func (h *WalletHandler) CreateWithdrawal(c *fiber.Ctx) error {
	var req createWithdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	request, err := h.service.CreateWithdrawal(c.Context(), req.VendorID, req.Amount, req.MethodID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toWithdrawalResponse(request))
}

func (h *WalletHandler) ListWithdrawals(c *fiber.Ctx) error {
	requests, err := h.service.ListWithdrawals(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]withdrawalResponse, 0, len(requests))
	for i := range requests {
		responses = append(responses, toWithdrawalResponse(&requests[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func toWithdrawalResponse(w *domain.WithdrawalRequest) withdrawalResponse {
	if w == nil {
		return withdrawalResponse{}
	}
	return withdrawalResponse{
		ID:        w.ID,
		VendorID:  w.VendorID,
		Amount:    w.Amount,
		MethodID:  w.MethodID,
		Status:    w.Status.String(),
		CreatedAt: w.CreatedAt,
	}
}
