package controller

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"propman-be/internal/dto"
	"propman-be/internal/entity"
	"propman-be/internal/pkg/logger"
	"propman-be/internal/pkg/serverutils"
	"propman-be/internal/service"
	internalWS "propman-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type IPaymentController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	PaySubscription(ctx *fiber.Ctx) error
	GetStatus(ctx *fiber.Ctx) error
	GetHistory(ctx *fiber.Ctx) error
	MpesaCallback(ctx *fiber.Ctx) error
	ServeWs(ctx *fiber.Ctx) error
}

type paymentController struct {
	service       service.IPaymentService
	hub           *internalWS.Hub
	jwtSecret     string
	callbackToken string
	syncTimeout   time.Duration
	logger        logger.ILogger
}

// NewPaymentController wires the payment routes. syncTimeout bounds
// ?wait=true requests and should exceed the poll budget. hub may be nil,
// which disables the websocket route. callbackToken, when set, must be
// echoed back as ?token= on the M-Pesa callback URL.
func NewPaymentController(service service.IPaymentService, hub *internalWS.Hub, jwtSecret, callbackToken string, syncTimeout time.Duration, log logger.ILogger) IPaymentController {
	return &paymentController{
		service:       service,
		hub:           hub,
		jwtSecret:     jwtSecret,
		callbackToken: callbackToken,
		syncTimeout:   syncTimeout,
		logger:        log,
	}
}

func (c *paymentController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/payment")
	// Daraja sends no credentials; the URL carries a shared token instead
	h.Post("/mpesa/callback", c.MpesaCallback)
	h.Get("/ws", c.ServeWs)

	h.Post("/pay-subscription", auth, c.PaySubscription)
	h.Get("/status/:checkoutRequestId", auth, c.GetStatus)
	h.Get("/history", auth, c.GetHistory)
}

// PaySubscription starts an STK push and answers 202 right away. With
// ?wait=true it holds the request until the outcome is known.
func (c *paymentController) PaySubscription(ctx *fiber.Ctx) error {
	accountId, err := serverutils.AccountID(ctx)
	if err != nil {
		return err
	}

	var req dto.PaySubscriptionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if !ctx.QueryBool("wait") {
		res, err := c.service.StartPayment(ctx.UserContext(), accountId, &req)
		if err != nil {
			return respondError(ctx, err)
		}
		return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Payment request sent", res))
	}

	waitCtx, cancel := context.WithTimeout(ctx.UserContext(), c.syncTimeout)
	defer cancel()

	res, err := c.service.PayForTier(waitCtx, accountId, &req)
	switch {
	case err != nil && res != nil && errors.Is(err, context.DeadlineExceeded):
		// still confirming in the background
		return ctx.Status(fiber.StatusGatewayTimeout).JSON(serverutils.ErrorResponseWithData(fiber.StatusGatewayTimeout, res.Guidance, res))
	case err != nil:
		return respondError(ctx, err)
	case service.IsTimedOut(res):
		return ctx.Status(fiber.StatusGatewayTimeout).JSON(serverutils.ErrorResponseWithData(fiber.StatusGatewayTimeout, res.Guidance, res))
	case res.Status == string(entity.PaymentStatusFailed):
		return ctx.Status(fiber.StatusPaymentRequired).JSON(serverutils.ErrorResponseWithData(fiber.StatusPaymentRequired, res.Guidance, res))
	}
	return ctx.JSON(serverutils.SuccessResponse(res.Guidance, res))
}

func (c *paymentController) GetStatus(ctx *fiber.Ctx) error {
	accountId, err := serverutils.AccountID(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.PaymentStatus(ctx.UserContext(), accountId, ctx.Params("checkoutRequestId"))
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Payment status", res))
}

func (c *paymentController) GetHistory(ctx *fiber.Ctx) error {
	accountId, err := serverutils.AccountID(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.PaymentHistory(ctx.UserContext(), accountId)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Payment history", res))
}

// MpesaCallback acknowledges every authenticated push: Daraja retries
// anything else, and a push we cannot use is already covered by polling.
func (c *paymentController) MpesaCallback(ctx *fiber.Ctx) error {
	if c.callbackToken != "" &&
		subtle.ConstantTimeCompare([]byte(ctx.Query("token")), []byte(c.callbackToken)) != 1 {
		c.logger.Warn("PAYMENT", "Callback rejected: bad token", map[string]interface{}{
			"ip": ctx.IP(),
		})
		return ctx.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(401, "Invalid callback token"))
	}

	if err := c.service.HandleMpesaCallback(ctx.UserContext(), ctx.Body()); err != nil {
		c.logger.Warn("PAYMENT", "Callback not processed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return ctx.JSON(dto.MpesaCallbackAck{ResultCode: 0, ResultDesc: "Accepted"})
}

// ServeWs streams the account's payment events. Browsers pass the token as
// a query parameter.
func (c *paymentController) ServeWs(ctx *fiber.Ctx) error {
	if c.hub == nil {
		return fiber.ErrNotFound
	}

	tokenStr := ctx.Query("token")
	if tokenStr == "" {
		authHeader := ctx.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}
	if tokenStr == "" {
		return ctx.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(401, "Missing token"))
	}

	accountId, err := serverutils.ParseToken(c.jwtSecret, tokenStr)
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(401, "Invalid token"))
	}

	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		internalWS.ServeWs(c.hub, conn, accountId)
	})(ctx)
}
