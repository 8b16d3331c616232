package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/groupcart/settlement-engine/internal/domain"
	"github.com/groupcart/settlement-engine/internal/observability"
)

type BatchService interface {
	Create(ctx context.Context, batch *domain.RegionalBatch) (*domain.RegionalBatch, error)
	GetByID(ctx context.Context, id string) (*domain.RegionalBatch, error)
	Activate(ctx context.Context, id string) (*domain.RegionalBatch, error)
	Join(ctx context.Context, batchID, buyerID string, quantity int) (*domain.Order, error)
	Evaluate(ctx context.Context, batchID string) (*domain.RegionalBatch, error)
	Cancel(ctx context.Context, batchID string) (*domain.RegionalBatch, error)
}

type EscrowService interface {
	StatusOf(ctx context.Context, orderID string) (domain.EscrowStatus, error)
	TotalHeld(ctx context.Context, batchID string) (int64, error)
}

type BatchHandler struct {
	batches BatchService
	escrow  EscrowService
}

func NewBatchHandler(batches BatchService, escrow EscrowService) (*BatchHandler, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	if escrow == nil {
		return nil, fmt.Errorf("escrow service is required")
	}
	return &BatchHandler{batches: batches, escrow: escrow}, nil
}

func RegisterBatchRoutes(router fiber.Router, batches BatchService, escrow EscrowService) error {
	h, err := NewBatchHandler(batches, escrow)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/batches", h.CreateBatch)
	v1.Get("/batches/:id", h.GetBatch)
	v1.Post("/batches/:id/activate", h.ActivateBatch)
	v1.Post("/batches/:id/join", h.JoinBatch)
	v1.Post("/batches/:id/evaluate", h.EvaluateBatch)
	v1.Post("/batches/:id/cancel", h.CancelBatch)
	v1.Get("/batches/:id/escrow", h.GetBatchEscrow)
	v1.Get("/orders/:id/escrow", h.GetOrderEscrow)

	return nil
}

type createBatchRequest struct {
	ListingID       string    `json:"listingId"`
	VendorID        string    `json:"vendorId"`
	Region          string    `json:"region"`
	UnitPrice       int64     `json:"unitPrice"`
	MinimumQuantity int       `json:"minimumQuantity"`
	Deadline        time.Time `json:"deadline"`
}

type joinBatchRequest struct {
	BuyerID  string `json:"buyerId"`
	Quantity int    `json:"quantity"`
}

type batchResponse struct {
	ID              string    `json:"id"`
	ListingID       string    `json:"listingId"`
	VendorID        string    `json:"vendorId"`
	Region          string    `json:"region"`
	UnitPrice       int64     `json:"unitPrice"`
	MinimumQuantity int       `json:"minimumQuantity"`
	CurrentQuantity int       `json:"currentQuantity"`
	Deadline        time.Time `json:"deadline"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt,omitempty"`
}

type orderResponse struct {
	ID           string    `json:"id"`
	BatchID      string    `json:"batchId"`
	BuyerID      string    `json:"buyerId"`
	Quantity     int       `json:"quantity"`
	Amount       int64     `json:"amount"`
	EscrowStatus string    `json:"escrowStatus"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
}

type batchEscrowResponse struct {
	BatchID   string `json:"batchId"`
	TotalHeld int64  `json:"totalHeld"`
}

type orderEscrowResponse struct {
	OrderID      string `json:"orderId"`
	EscrowStatus string `json:"escrowStatus"`
}

func (h *BatchHandler) CreateBatch(c *fiber.Ctx) error {
	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	batch := domain.RegionalBatch{
		ListingID:       strings.TrimSpace(req.ListingID),
		VendorID:        strings.TrimSpace(req.VendorID),
		Region:          strings.TrimSpace(req.Region),
		UnitPrice:       req.UnitPrice,
		MinimumQuantity: req.MinimumQuantity,
		Deadline:        req.Deadline,
	}

	created, err := h.batches.Create(c.Context(), &batch)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toBatchResponse(created))
}

func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	batch, err := h.batches.GetByID(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) ActivateBatch(c *fiber.Ctx) error {
	batch, err := h.batches.Activate(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) JoinBatch(c *fiber.Ctx) error {
	var req joinBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx := correlatedContext(c)
	order, err := h.batches.Join(ctx, strings.TrimSpace(c.Params("id")), req.BuyerID, req.Quantity)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toOrderResponse(order))
}

func (h *BatchHandler) EvaluateBatch(c *fiber.Ctx) error {
	ctx := correlatedContext(c)
	batch, err := h.batches.Evaluate(ctx, strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) CancelBatch(c *fiber.Ctx) error {
	ctx := correlatedContext(c)
	batch, err := h.batches.Cancel(ctx, strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) GetBatchEscrow(c *fiber.Ctx) error {
	batchID := strings.TrimSpace(c.Params("id"))
	total, err := h.escrow.TotalHeld(c.Context(), batchID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(batchEscrowResponse{
		BatchID:   batchID,
		TotalHeld: total,
	})
}

func (h *BatchHandler) GetOrderEscrow(c *fiber.Ctx) error {
	orderID := strings.TrimSpace(c.Params("id"))
	status, err := h.escrow.StatusOf(c.Context(), orderID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(orderEscrowResponse{
		OrderID:      orderID,
		EscrowStatus: status.String(),
	})
}

func correlatedContext(c *fiber.Ctx) context.Context {
	ctx := c.Context()
	if correlationID := requestCorrelationID(c); correlationID != "" {
		return observability.WithCorrelationID(ctx, correlationID)
	}
	return ctx
}

func toBatchResponse(b *domain.RegionalBatch) batchResponse {
	if b == nil {
		return batchResponse{}
	}
	return batchResponse{
		ID:              b.ID,
		ListingID:       b.ListingID,
		VendorID:        b.VendorID,
		Region:          b.Region,
		UnitPrice:       b.UnitPrice,
		MinimumQuantity: b.MinimumQuantity,
		CurrentQuantity: b.CurrentQuantity,
		Deadline:        b.Deadline,
		Status:          b.Status.String(),
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func toOrderResponse(o *domain.Order) orderResponse {
	if o == nil {
		return orderResponse{}
	}
	return orderResponse{
		ID:           o.ID,
		BatchID:      o.BatchID,
		BuyerID:      o.BuyerID,
		Quantity:     o.Quantity,
		Amount:       o.Amount,
		EscrowStatus: o.EscrowStatus.String(),
		CreatedAt:    o.CreatedAt,
	}
}
