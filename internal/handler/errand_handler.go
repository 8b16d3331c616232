package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/groupcart/settlement-engine/internal/domain"
)

type ErrandService interface {
	Create(ctx context.Context, errand *domain.Errand) (*domain.Errand, error)
	GetByID(ctx context.Context, id string) (*domain.Errand, error)
	ListApplications(ctx context.Context, errandID string) ([]domain.Application, error)
	Apply(ctx context.Context, errandID, helperID string, offerAmount *int64, message string) (*domain.Application, error)
	Accept(ctx context.Context, errandID, applicationID, requesterID string) (*domain.Errand, error)
	ConfirmCompletion(ctx context.Context, errandID, userID string, isRequester bool) (*domain.Errand, error)
	Cancel(ctx context.Context, errandID string) (*domain.Errand, error)
	RateHelper(ctx context.Context, errandID, raterID string, rating int, comment string) (*domain.HelperRating, error)
}

type ErrandHandler struct {
	service ErrandService
}

func NewErrandHandler(service ErrandService) (*ErrandHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("errand service is required")
	}
	return &ErrandHandler{service: service}, nil
}

func RegisterErrandRoutes(router fiber.Router, service ErrandService) error {
	h, err := NewErrandHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/errands", h.CreateErrand)
	v1.Get("/errands/:id", h.GetErrand)
	v1.Post("/errands/:id/applications", h.Apply)
	v1.Get("/errands/:id/applications", h.ListApplications)
	v1.Post("/errands/:id/accept", h.Accept)
	v1.Post("/errands/:id/confirm", h.Confirm)
	v1.Post("/errands/:id/cancel", h.Cancel)
	v1.Post("/errands/:id/rating", h.Rate)

	return nil
}

type createErrandRequest struct {
	RequesterID string `json:"requesterId"`
	Title       string `json:"title"`
	Budget      int64  `json:"budget"`
}

type applyRequest struct {
	HelperID    string `json:"helperId"`
	OfferAmount *int64 `json:"offerAmount,omitempty"`
	Message     string `json:"message,omitempty"`
}

type acceptRequest struct {
	ApplicationID string `json:"applicationId"`
	RequesterID   string `json:"requesterId"`
}

type confirmRequest struct {
	UserID      string `json:"userId"`
	IsRequester bool   `json:"isRequester"`
}

type ratingRequest struct {
	RaterID string `json:"raterId"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

type errandResponse struct {
	ID                 string    `json:"id"`
	RequesterID        string    `json:"requesterId"`
	Title              string    `json:"title"`
	Budget             int64     `json:"budget"`
	Status             string    `json:"status"`
	AssignedHelperID   *string   `json:"assignedHelperId,omitempty"`
	RequesterConfirmed bool      `json:"requesterConfirmed"`
	HelperConfirmed    bool      `json:"helperConfirmed"`
	PaymentReleased    bool      `json:"paymentReleased"`
	CreatedAt          time.Time `json:"createdAt,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt,omitempty"`
}

type applicationResponse struct {
	ID          string    `json:"id"`
	ErrandID    string    `json:"errandId"`
	HelperID    string    `json:"helperId"`
	OfferAmount *int64    `json:"offerAmount,omitempty"`
	Message     string    `json:"message,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

type ratingResponse struct {
	ID       string `json:"id"`
	ErrandID string `json:"errandId"`
	RaterID  string `json:"raterId"`
	HelperID string `json:"helperId"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment,omitempty"`
}

func (h *ErrandHandler) CreateErrand(c *fiber.Ctx) error {
	var req createErrandRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	errand := domain.Errand{
		RequesterID: strings.TrimSpace(req.RequesterID),
		Title:       strings.TrimSpace(req.Title),
		Budget:      req.Budget,
	}

	created, err := h.service.Create(c.Context(), &errand)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toErrandResponse(created))
}

func (h *ErrandHandler) GetErrand(c *fiber.Ctx) error {
	errand, err := h.service.GetByID(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toErrandResponse(errand))
}

func (h *ErrandHandler) Apply(c *fiber.Ctx) error {
	var req applyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	application, err := h.service.Apply(c.Context(), strings.TrimSpace(c.Params("id")), req.HelperID, req.OfferAmount, req.Message)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toApplicationResponse(application))
}

func (h *ErrandHandler) ListApplications(c *fiber.Ctx) error {
	applications, err := h.service.ListApplications(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]applicationResponse, 0, len(applications))
	for i := range applications {
		responses = append(responses, toApplicationResponse(&applications[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func (h *ErrandHandler) Accept(c *fiber.Ctx) error {
	var req acceptRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	errand, err := h.service.Accept(c.Context(), strings.TrimSpace(c.Params("id")), req.ApplicationID, req.RequesterID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toErrandResponse(errand))
}

func (h *ErrandHandler) Confirm(c *fiber.Ctx) error {
	var req confirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	errand, err := h.service.ConfirmCompletion(c.Context(), strings.TrimSpace(c.Params("id")), req.UserID, req.IsRequester)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toErrandResponse(errand))
}

func (h *ErrandHandler) Cancel(c *fiber.Ctx) error {
	errand, err := h.service.Cancel(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toErrandResponse(errand))
}

func (h *ErrandHandler) Rate(c *fiber.Ctx) error {
	var req ratingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	rating, err := h.service.RateHelper(c.Context(), strings.TrimSpace(c.Params("id")), req.RaterID, req.Rating, req.Comment)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toRatingResponse(rating))
}

func toErrandResponse(e *domain.Errand) errandResponse {
	if e == nil {
		return errandResponse{}
	}
	return errandResponse{
		ID:                 e.ID,
		RequesterID:        e.RequesterID,
		Title:              e.Title,
		Budget:             e.Budget,
		Status:             e.Status.String(),
		AssignedHelperID:   e.AssignedHelperID,
		RequesterConfirmed: e.RequesterConfirmed,
		HelperConfirmed:    e.HelperConfirmed,
		PaymentReleased:    e.PaymentReleased,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

func toApplicationResponse(a *domain.Application) applicationResponse {
	if a == nil {
		return applicationResponse{}
	}
	return applicationResponse{
		ID:          a.ID,
		ErrandID:    a.ErrandID,
		HelperID:    a.HelperID,
		OfferAmount: a.OfferAmount,
		Message:     a.Message,
		Status:      a.Status.String(),
		CreatedAt:   a.CreatedAt,
	}
}

func toRatingResponse(r *domain.HelperRating) ratingResponse {
	if r == nil {
		return ratingResponse{}
	}
	return ratingResponse{
		ID:       r.ID,
		ErrandID: r.ErrandID,
		RaterID:  r.RaterID,
		HelperID: r.HelperID,
		Rating:   r.Rating,
		Comment:  r.Comment,
	}
}
