package midtrans

import (
	"context"
	"crypto/sha512"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"propman-be/internal/entity"
	"propman-be/internal/pkg/logger"
	"propman-be/pkg/payment"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoreAPI struct {
	charge    *coreapi.ChargeResponse
	chargeErr *midtrans.Error
	status    *coreapi.TransactionStatusResponse
	statusErr *midtrans.Error
	lastReq   *coreapi.ChargeReq
	calls     atomic.Int32
	block     chan struct{}
}

func (f *fakeCoreAPI) ChargeTransaction(req *coreapi.ChargeReq) (*coreapi.ChargeResponse, *midtrans.Error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	f.lastReq = req
	return f.charge, f.chargeErr
}

func (f *fakeCoreAPI) CheckTransaction(param string) (*coreapi.TransactionStatusResponse, *midtrans.Error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return f.status, f.statusErr
}

func newTestClient(api coreAPI) *Client {
	return &Client{
		api:       api,
		serverKey: "SB-server-key",
		logger:    logger.NewNopLogger(),
		newOrder:  func() string { return "PM-1" },
	}
}

func TestInitiate(t *testing.T) {
	api := &fakeCoreAPI{charge: &coreapi.ChargeResponse{TransactionStatus: "pending", StatusMessage: "GoPay transaction is created"}}
	c := newTestClient(api)

	id, msg, err := c.Initiate(context.Background(), "254712345678", 1499.2, "subscription")
	require.NoError(t, err)
	assert.Equal(t, "PM-1", id)
	assert.Equal(t, "GoPay transaction is created", msg)
	assert.Equal(t, int64(1500), api.lastReq.TransactionDetails.GrossAmt)
	assert.Equal(t, coreapi.PaymentTypeGopay, api.lastReq.PaymentType)
}

func TestInitiate_Errors(t *testing.T) {
	_, _, err := newTestClient(&fakeCoreAPI{chargeErr: &midtrans.Error{StatusCode: 500, Message: "internal"}}).
		Initiate(context.Background(), "254712345678", 10, "subscription")
	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)

	_, _, err = newTestClient(&fakeCoreAPI{chargeErr: &midtrans.Error{StatusCode: 400, Message: "validation"}}).
		Initiate(context.Background(), "254712345678", 10, "subscription")
	assert.ErrorIs(t, err, payment.ErrGatewayRejected)

	_, _, err = newTestClient(&fakeCoreAPI{charge: &coreapi.ChargeResponse{TransactionStatus: "deny", StatusCode: "202"}}).
		Initiate(context.Background(), "254712345678", 10, "subscription")
	assert.ErrorIs(t, err, payment.ErrGatewayRejected)
}

func TestQueryStatus(t *testing.T) {
	for status, want := range map[string]entity.PaymentStatus{
		"settlement": entity.PaymentStatusSuccess,
		"capture":    entity.PaymentStatusSuccess,
		"pending":    entity.PaymentStatusPending,
		"expire":     entity.PaymentStatusFailed,
		"cancel":     entity.PaymentStatusFailed,
	} {
		c := newTestClient(&fakeCoreAPI{status: &coreapi.TransactionStatusResponse{TransactionStatus: status}})
		got, err := c.QueryStatus(context.Background(), "PM-1")
		require.NoError(t, err)
		assert.Equal(t, want, got, status)
	}

	c := newTestClient(&fakeCoreAPI{statusErr: &midtrans.Error{Message: "timeout"}})
	_, err := c.QueryStatus(context.Background(), "PM-1")
	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
}

func TestVerifySignature(t *testing.T) {
	c := newTestClient(&fakeCoreAPI{})
	sig := fmt.Sprintf("%x", sha512.Sum512([]byte("PM-1"+"200"+"1500.00"+"SB-server-key")))

	assert.True(t, c.VerifySignature("PM-1", "200", "1500.00", sig))
	assert.False(t, c.VerifySignature("PM-1", "200", "1.00", sig))
}

func TestContextReachesSDKCalls(t *testing.T) {
	t.Run("cancelled before the call", func(t *testing.T) {
		api := &fakeCoreAPI{status: &coreapi.TransactionStatusResponse{TransactionStatus: "settlement"}}
		c := newTestClient(api)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.QueryStatus(ctx, "PM-1")
		assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
		assert.ErrorIs(t, err, context.Canceled)
		_, _, err = c.Initiate(ctx, "254712345678", 10, "subscription")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, api.calls.Load())
	})

	t.Run("deadline while the SDK blocks", func(t *testing.T) {
		api := &fakeCoreAPI{block: make(chan struct{})}
		defer close(api.block)
		c := newTestClient(api)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := c.QueryStatus(ctx, "PM-1")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
		assert.Less(t, time.Since(start), time.Second)
	})
}
