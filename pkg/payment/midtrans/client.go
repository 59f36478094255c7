package midtrans

import (
	"context"
	"crypto/sha512"
	"fmt"
	"math"
	"net/http"

	"propman-be/internal/entity"
	"propman-be/internal/pkg/logger"
	"propman-be/pkg/payment"

	"github.com/google/uuid"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
)

const GatewayName = "midtrans"

type Config struct {
	ServerKey    string
	IsProduction bool
}

// coreAPI is the subset of coreapi.Client the gateway needs.
type coreAPI interface {
	ChargeTransaction(req *coreapi.ChargeReq) (*coreapi.ChargeResponse, *midtrans.Error)
	CheckTransaction(param string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
}

// Client charges through the Midtrans Core API e-wallet flow. The order id
// plays the role of the checkout request id.
type Client struct {
	api       coreAPI
	serverKey string
	logger    logger.ILogger
	newOrder  func() string
}

func NewClient(cfg Config, log logger.ILogger) *Client {
	env := midtrans.Sandbox
	if cfg.IsProduction {
		env = midtrans.Production
	}
	var c coreapi.Client
	c.New(cfg.ServerKey, env)

	return &Client{
		api:       &c,
		serverKey: cfg.ServerKey,
		logger:    log,
		newOrder:  func() string { return "PM-" + uuid.NewString() },
	}
}

func (c *Client) Name() string {
	return GatewayName
}

func (c *Client) Initiate(ctx context.Context, phone string, amount float64, purpose string) (string, string, error) {
	orderId := c.newOrder()
	req := &coreapi.ChargeReq{
		PaymentType: coreapi.PaymentTypeGopay,
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderId,
			GrossAmt: int64(math.Ceil(amount)),
		},
		CustomerDetails: &midtrans.CustomerDetails{
			Phone: phone,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    purpose,
				Price: int64(math.Ceil(amount)),
				Qty:   1,
				Name:  purpose,
			},
		},
	}

	resp, midErr, err := withContext(ctx, "initiate", func() (*coreapi.ChargeResponse, *midtrans.Error) {
		return c.api.ChargeTransaction(req)
	})
	if err != nil {
		c.logger.Warn("MIDTRANS", "Charge abandoned", map[string]interface{}{
			"order_id": orderId,
			"error":    err.Error(),
		})
		return "", "", err
	}
	if midErr != nil {
		return "", "", classify("initiate", midErr)
	}
	if resp == nil {
		return "", "", &payment.GatewayUnavailableError{Gateway: GatewayName, Op: "initiate", Err: fmt.Errorf("empty charge response")}
	}
	if StatusFromTransaction(resp.TransactionStatus) == entity.PaymentStatusFailed {
		return "", "", &payment.GatewayRejectedError{Gateway: GatewayName, Code: resp.StatusCode, Message: resp.StatusMessage}
	}

	c.logger.Info("MIDTRANS", "Charge created", map[string]interface{}{
		"order_id": orderId,
		"phone":    payment.MaskMSISDN(phone),
		"status":   resp.TransactionStatus,
	})
	return orderId, resp.StatusMessage, nil
}

func (c *Client) QueryStatus(ctx context.Context, checkoutRequestId string) (entity.PaymentStatus, error) {
	resp, midErr, err := withContext(ctx, "query", func() (*coreapi.TransactionStatusResponse, *midtrans.Error) {
		return c.api.CheckTransaction(checkoutRequestId)
	})
	if err != nil {
		return "", err
	}
	if midErr != nil {
		return "", classify("query", midErr)
	}
	if resp == nil {
		return entity.PaymentStatusPending, nil
	}
	return StatusFromTransaction(resp.TransactionStatus), nil
}

type sdkResult[T any] struct {
	resp   T
	midErr *midtrans.Error
}

// withContext runs an SDK call until it returns or ctx ends. The SDK takes
// no context, so an abandoned call finishes on its own goroutine.
func withContext[T any](ctx context.Context, op string, fn func() (T, *midtrans.Error)) (T, *midtrans.Error, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, nil, &payment.GatewayUnavailableError{Gateway: GatewayName, Op: op, Err: err}
	}

	done := make(chan sdkResult[T], 1)
	go func() {
		resp, midErr := fn()
		done <- sdkResult[T]{resp: resp, midErr: midErr}
	}()

	select {
	case r := <-done:
		return r.resp, r.midErr, nil
	case <-ctx.Done():
		return zero, nil, &payment.GatewayUnavailableError{Gateway: GatewayName, Op: op, Err: ctx.Err()}
	}
}

// StatusFromTransaction maps a Midtrans transaction_status.
func StatusFromTransaction(status string) entity.PaymentStatus {
	switch status {
	case "capture", "settlement":
		return entity.PaymentStatusSuccess
	case "deny", "cancel", "expire", "failure":
		return entity.PaymentStatusFailed
	}
	return entity.PaymentStatusPending
}

// VerifySignature checks a notification signature:
// SHA512(order_id + status_code + gross_amount + server_key).
func (c *Client) VerifySignature(orderId, statusCode, grossAmount, signature string) bool {
	sum := sha512.Sum512([]byte(orderId + statusCode + grossAmount + c.serverKey))
	return fmt.Sprintf("%x", sum) == signature
}

// classify turns a midtrans error into a gateway error. Never return a nil
// *midtrans.Error as error.
func classify(op string, midErr *midtrans.Error) error {
	code := midErr.GetStatusCode()
	if code == 0 || code >= http.StatusInternalServerError || code == http.StatusUnauthorized {
		return &payment.GatewayUnavailableError{Gateway: GatewayName, Op: op, Err: fmt.Errorf("%s", midErr.GetMessage())}
	}
	return &payment.GatewayRejectedError{Gateway: GatewayName, Code: fmt.Sprintf("%d", code), Message: midErr.GetMessage()}
}
