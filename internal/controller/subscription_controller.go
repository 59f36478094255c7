package controller

import (
	"propman-be/internal/dto"
	"propman-be/internal/pkg/serverutils"
	"propman-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ISubscriptionController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	GetTiers(ctx *fiber.Ctx) error
	GetCurrent(ctx *fiber.Ctx) error
	ChangeTier(ctx *fiber.Ctx) error
	Validate(ctx *fiber.Ctx) error
	GetQuotas(ctx *fiber.Ctx) error
}

type subscriptionController struct {
	service service.ISubscriptionService
}

func NewSubscriptionController(service service.ISubscriptionService) ISubscriptionController {
	return &subscriptionController{service: service}
}

func (c *subscriptionController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/subscription")
	h.Get("/tiers", c.GetTiers)

	h.Get("/", auth, c.GetCurrent)
	h.Post("/", auth, c.ChangeTier)
	h.Get("/validate", auth, c.Validate)
	h.Get("/quotas", auth, c.GetQuotas)
}

func (c *subscriptionController) GetTiers(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Success fetching tiers", c.service.ListTiers(ctx.UserContext())))
}

func (c *subscriptionController) GetCurrent(ctx *fiber.Ctx) error {
	accountId, err := serverutils.AccountID(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.GetCurrent(ctx.UserContext(), accountId)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Subscription", res))
}

func (c *subscriptionController) ChangeTier(ctx *fiber.Ctx) error {
	accountId, err := serverutils.AccountID(ctx)
	if err != nil {
		return err
	}

	var req dto.CreateSubscriptionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.RequestTierChange(ctx.UserContext(), accountId, &req)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Subscription updated", res))
}

// Validate persists the current state before returning it.
func (c *subscriptionController) Validate(ctx *fiber.Ctx) error {
	accountId, err := serverutils.AccountID(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Validate(ctx.UserContext(), accountId)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Subscription validated", res))
}

func (c *subscriptionController) GetQuotas(ctx *fiber.Ctx) error {
	accountId, err := serverutils.AccountID(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Quotas(ctx.UserContext(), accountId)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Quotas", res))
}
