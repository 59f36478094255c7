package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"propman-be/internal/entity"
	"propman-be/pkg/payment"
	"propman-be/pkg/payment/mpesa"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callbackBody(checkoutRequestId string, resultCode int, receipt string, amount float64) []byte {
	if receipt == "" {
		return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"1","CheckoutRequestID":%q,"ResultCode":%d,"ResultDesc":"Request cancelled by user"}}}`,
			checkoutRequestId, resultCode))
	}
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"1","CheckoutRequestID":%q,"ResultCode":%d,"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[{"Name":"Amount","Value":%g},{"Name":"MpesaReceiptNumber","Value":%q}]}}}}`,
		checkoutRequestId, resultCode, amount, receipt))
}

func TestHandleMpesaCallback_WakesConfirmation(t *testing.T) {
	gw := newFakeGateway(entity.PaymentStatusPending, entity.PaymentStatusSuccess)
	h := newHarness(t, gw, payment.PollerConfig{Interval: 5 * time.Second, MaxAttempts: 6})
	ctx := context.Background()
	account := uuid.New()

	started, err := h.svc.StartPayment(ctx, account, payRequest("Silver"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return gw.queryCount(started.CheckoutRequestId) == 1 }, time.Second, 5*time.Millisecond)

	begin := time.Now()
	require.NoError(t, h.svc.HandleMpesaCallback(ctx, callbackBody(started.CheckoutRequestId, 0, "NLJ7RT61SV", 3000)))
	require.NoError(t, h.svc.Close(ctx))
	assert.Less(t, time.Since(begin), 2*time.Second, "the push cuts the poll interval short")

	sub, err := h.svc.GetCurrent(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, string(entity.StatePaidActive), sub.State)
	assert.Equal(t, 2, gw.queryCount(started.CheckoutRequestId))

	attempts := h.attempts(t)
	require.Len(t, attempts, 1)
	assert.Equal(t, entity.PaymentStatusSuccess, attempts[0].Status)
	assert.NotNil(t, attempts[0].CompletedAt)
	assert.Equal(t, "NLJ7RT61SV", attempts[0].Metadata["receipt_number"])
	assert.Equal(t, "0", attempts[0].Metadata["result_code"])
}

func TestHandleMpesaCallback_CannotOverrideGateway(t *testing.T) {
	gw := newFakeGateway(entity.PaymentStatusPending, entity.PaymentStatusPending, entity.PaymentStatusFailed)
	h := newHarness(t, gw, fastPolling)
	ctx := context.Background()
	account := uuid.New()

	started, err := h.svc.StartPayment(ctx, account, payRequest("Silver"))
	require.NoError(t, err)
	require.NoError(t, h.svc.HandleMpesaCallback(ctx, callbackBody(started.CheckoutRequestId, 0, "FORGED0001", 3000)))
	require.NoError(t, h.svc.Close(ctx))

	assert.Equal(t, 3, gw.queryCount(started.CheckoutRequestId))
	assert.Empty(t, h.subscriptions(t), "a pushed success alone never activates a cycle")

	sub, err := h.svc.GetCurrent(ctx, account)
	require.NoError(t, err)
	assert.NotEqual(t, string(entity.StatePaidActive), sub.State)

	attempts := h.attempts(t)
	require.Len(t, attempts, 1)
	assert.Equal(t, entity.PaymentStatusFailed, attempts[0].Status)
}

func TestHandleMpesaCallback_AmountMismatch(t *testing.T) {
	h := newHarness(t, newFakeGateway(), fastPolling)
	ctx := context.Background()
	account := uuid.New()

	started, err := h.svc.StartPayment(ctx, account, payRequest("Silver"))
	require.NoError(t, err)

	err = h.svc.HandleMpesaCallback(ctx, callbackBody(started.CheckoutRequestId, 0, "NLJ7RT61SV", 1))
	assert.ErrorIs(t, err, payment.ErrCallbackMismatch)

	_, hinted := h.callbacks.Get(started.CheckoutRequestId)
	assert.False(t, hinted)
	attempts := h.attempts(t)
	require.Len(t, attempts, 1)
	assert.Empty(t, attempts[0].Metadata)
}

func TestHandleMpesaCallback_AfterSettle(t *testing.T) {
	h := newHarness(t, newFakeGateway(entity.PaymentStatusSuccess), fastPolling)
	ctx := context.Background()
	account := uuid.New()

	res, err := h.svc.PayForTier(ctx, account, payRequest("Silver"))
	require.NoError(t, err)
	require.Equal(t, string(entity.PaymentStatusSuccess), res.Status)

	require.NoError(t, h.svc.HandleMpesaCallback(ctx, callbackBody(res.CheckoutRequestId, 0, "NLJ7RT61SV", 3000)))

	attempts := h.attempts(t)
	require.Len(t, attempts, 1)
	assert.Equal(t, entity.PaymentStatusSuccess, attempts[0].Status)
	assert.Equal(t, 1, attempts[0].AttemptCount)
	assert.NotNil(t, attempts[0].CompletedAt)
	assert.Equal(t, "NLJ7RT61SV", attempts[0].Metadata["receipt_number"])
}

func TestHandleMpesaCallback_FailureAndUnknown(t *testing.T) {
	h := newHarness(t, newFakeGateway(entity.PaymentStatusPending, entity.PaymentStatusFailed), fastPolling)
	ctx := context.Background()
	account := uuid.New()

	started, err := h.svc.StartPayment(ctx, account, payRequest("Bronze"))
	require.NoError(t, err)
	require.NoError(t, h.svc.HandleMpesaCallback(ctx, callbackBody(started.CheckoutRequestId, 1032, "", 0)))
	require.NoError(t, h.svc.Close(ctx))

	attempts := h.attempts(t)
	require.Len(t, attempts, 1)
	assert.Equal(t, entity.PaymentStatusFailed, attempts[0].Status)
	assert.Equal(t, "1032", attempts[0].Metadata["result_code"])
	assert.Empty(t, h.subscriptions(t))

	assert.NoError(t, h.svc.HandleMpesaCallback(ctx, callbackBody("ws_CO_unknown", 0, "X1", 3000)))
	assert.ErrorIs(t, h.svc.HandleMpesaCallback(ctx, []byte(`{}`)), mpesa.ErrMalformedCallback)
}

func TestPaymentStatus(t *testing.T) {
	gw := newFakeGateway(entity.PaymentStatusSuccess)
	h := newHarness(t, gw, fastPolling)
	ctx := context.Background()
	account := uuid.New()

	res, err := h.svc.PayForTier(ctx, account, payRequest("Silver"))
	require.NoError(t, err)

	status, err := h.svc.PaymentStatus(ctx, account, res.CheckoutRequestId)
	require.NoError(t, err)
	assert.Equal(t, string(entity.PaymentStatusSuccess), status.Status)
	assert.True(t, status.Terminal)
	assert.Equal(t, payment.Guidance(entity.PaymentStatusSuccess), status.Guidance)

	_, err = h.svc.PaymentStatus(ctx, uuid.New(), res.CheckoutRequestId)
	assert.ErrorIs(t, err, payment.ErrAttemptNotFound)

	_, err = h.svc.PaymentStatus(ctx, account, "ws_CO_missing")
	assert.ErrorIs(t, err, payment.ErrAttemptNotFound)
}

func TestPaymentStatus_QueriesGatewayForStaleAttempt(t *testing.T) {
	gw := newFakeGateway(entity.PaymentStatusSuccess)
	h := newHarness(t, gw, fastPolling)
	ctx := context.Background()
	account := uuid.New()

	// left pending by a previous process
	stale := entity.PaymentAttempt{
		Id:                uuid.New(),
		AccountId:         account,
		TierName:          "Silver",
		BillingCycle:      entity.BillingCycleMonthly,
		CheckoutRequestId: "ws_CO_stale",
		Status:            entity.PaymentStatusPending,
	}
	repo := h.store.NewRepositoryFactory().NewUnitOfWork(ctx).PaymentAttemptRepository()
	require.NoError(t, repo.Create(ctx, &stale))

	status, err := h.svc.PaymentStatus(ctx, account, "ws_CO_stale")
	require.NoError(t, err)
	assert.Equal(t, string(entity.PaymentStatusSuccess), status.Status)

	// status reads never apply the outcome
	assert.Empty(t, h.subscriptions(t))
	attempts := h.attempts(t)
	require.Len(t, attempts, 1)
	assert.Equal(t, entity.PaymentStatusPending, attempts[0].Status)
}

func TestPaymentHistory(t *testing.T) {
	h := newHarness(t, newFakeGateway(entity.PaymentStatusFailed), fastPolling)
	ctx := context.Background()
	account := uuid.New()

	for i := 0; i < 2; i++ {
		_, err := h.svc.PayForTier(ctx, account, payRequest("Silver"))
		require.NoError(t, err)
	}
	_, err := h.svc.PayForTier(ctx, uuid.New(), payRequest("Silver"))
	require.NoError(t, err)

	history, err := h.svc.PaymentHistory(ctx, account)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, a := range history {
		assert.Equal(t, string(entity.PaymentStatusFailed), a.Status)
	}
}
