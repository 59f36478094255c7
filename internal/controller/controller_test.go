package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"propman-be/internal/dto"
	"propman-be/internal/pkg/logger"
	"propman-be/internal/pkg/serverutils"
	"propman-be/pkg/payment"
	"propman-be/pkg/subscription"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret        = "test-secret"
	testCallbackToken = "cb-token"
)

type fakeSubscriptionService struct {
	current *dto.SubscriptionResponse
	err     error
	lastReq *dto.CreateSubscriptionRequest
	account uuid.UUID
}

func (f *fakeSubscriptionService) ListTiers(ctx context.Context) []*dto.TierResponse {
	return []*dto.TierResponse{{Name: "Free"}, {Name: "Silver", MonthlyPrice: 3000, TrialEligible: true}}
}

func (f *fakeSubscriptionService) GetCurrent(ctx context.Context, accountId uuid.UUID) (*dto.SubscriptionResponse, error) {
	f.account = accountId
	return f.current, f.err
}

func (f *fakeSubscriptionService) StartTrial(ctx context.Context, accountId uuid.UUID, tierName string) (*dto.SubscriptionResponse, error) {
	return f.current, f.err
}

func (f *fakeSubscriptionService) RequestTierChange(ctx context.Context, accountId uuid.UUID, req *dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	f.lastReq = req
	return f.current, f.err
}

func (f *fakeSubscriptionService) Validate(ctx context.Context, accountId uuid.UUID) (*dto.SubscriptionResponse, error) {
	return f.current, f.err
}

func (f *fakeSubscriptionService) Quotas(ctx context.Context, accountId uuid.UUID) (*dto.QuotasResponse, error) {
	return &dto.QuotasResponse{MaxProperties: 10}, f.err
}

func (f *fakeSubscriptionService) ReconcileAll(ctx context.Context) (int, error) {
	return 0, nil
}

type fakePaymentService struct {
	payRes      *dto.PaymentAttemptResponse
	payErr      error
	startRes    *dto.PaySubscriptionResponse
	startErr    error
	statusErr   error
	callbackErr error
	callbacks   int
}

func (f *fakePaymentService) PayForTier(ctx context.Context, accountId uuid.UUID, req *dto.PaySubscriptionRequest) (*dto.PaymentAttemptResponse, error) {
	return f.payRes, f.payErr
}

func (f *fakePaymentService) StartPayment(ctx context.Context, accountId uuid.UUID, req *dto.PaySubscriptionRequest) (*dto.PaySubscriptionResponse, error) {
	return f.startRes, f.startErr
}

func (f *fakePaymentService) PaymentStatus(ctx context.Context, accountId uuid.UUID, checkoutRequestId string) (*dto.PaymentStatusResponse, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &dto.PaymentStatusResponse{CheckoutRequestId: checkoutRequestId, Status: "pending"}, nil
}

func (f *fakePaymentService) PaymentHistory(ctx context.Context, accountId uuid.UUID) ([]*dto.PaymentAttemptResponse, error) {
	return []*dto.PaymentAttemptResponse{}, nil
}

func (f *fakePaymentService) HandleMpesaCallback(ctx context.Context, body []byte) error {
	f.callbacks++
	return f.callbackErr
}

func (f *fakePaymentService) Close(ctx context.Context) error {
	return nil
}

func newTestApp(subs *fakeSubscriptionService, pays *fakePaymentService) *fiber.App {
	log := logger.NewNopLogger()
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware(log))
	api := app.Group("/api")
	auth := serverutils.JwtMiddleware(testSecret)
	NewSubscriptionController(subs).RegisterRoutes(api, auth)
	NewPaymentController(pays, nil, testSecret, testCallbackToken, time.Second, log).RegisterRoutes(api, auth)
	return app
}

func call(t *testing.T, app *fiber.App, method, path string, account *uuid.UUID, body interface{}) (int, serverutils.BaseResponse[json.RawMessage]) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if account != nil {
		token, err := serverutils.SignToken(testSecret, *account, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out serverutils.BaseResponse[json.RawMessage]
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestSubscriptionRoutes(t *testing.T) {
	subs := &fakeSubscriptionService{current: &dto.SubscriptionResponse{Tier: "Silver", State: "trial_active"}}
	app := newTestApp(subs, &fakePaymentService{})
	account := uuid.New()

	status, _ := call(t, app, "GET", "/api/subscription/tiers", nil, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = call(t, app, "GET", "/api/subscription/", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := call(t, app, "GET", "/api/subscription/", &account, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, account, subs.account)
	var sub dto.SubscriptionResponse
	require.NoError(t, json.Unmarshal(body.Data, &sub))
	assert.Equal(t, "trial_active", sub.State)

	status, _ = call(t, app, "POST", "/api/subscription/", &account, dto.CreateSubscriptionRequest{Tier: "Silver", FreeTrial: true})
	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, subs.lastReq)
	assert.True(t, subs.lastReq.FreeTrial)

	status, _ = call(t, app, "POST", "/api/subscription/", &account, dto.CreateSubscriptionRequest{DurationKind: "weekly"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = call(t, app, "GET", "/api/subscription/quotas", &account, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestSubscriptionRoutes_ErrorMapping(t *testing.T) {
	account := uuid.New()
	tests := []struct {
		err  error
		want int
	}{
		{err: subscription.ErrTrialAlreadyUsed, want: http.StatusConflict},
		{err: &subscription.InvalidTierError{Tier: "x", Reason: "unknown tier"}, want: http.StatusBadRequest},
		{err: subscription.ErrAlreadySubscribed, want: http.StatusConflict},
		{err: errors.New("disk on fire"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			app := newTestApp(&fakeSubscriptionService{err: tt.err}, &fakePaymentService{})
			status, body := call(t, app, "POST", "/api/subscription/", &account, dto.CreateSubscriptionRequest{Tier: "Gold"})
			assert.Equal(t, tt.want, status)
			assert.False(t, body.Success)
		})
	}
}

func TestPaySubscription(t *testing.T) {
	account := uuid.New()
	valid := dto.PaySubscriptionRequest{Phone: "0712345678", Type: "Silver", DurationKind: "monthly"}

	t.Run("async accepts", func(t *testing.T) {
		pays := &fakePaymentService{startRes: &dto.PaySubscriptionResponse{CheckoutRequestId: "ws_CO_1", CustomerMessage: "Success"}}
		app := newTestApp(&fakeSubscriptionService{}, pays)
		status, body := call(t, app, "POST", "/api/payment/pay-subscription", &account, valid)
		assert.Equal(t, http.StatusAccepted, status)
		var res dto.PaySubscriptionResponse
		require.NoError(t, json.Unmarshal(body.Data, &res))
		assert.Equal(t, "ws_CO_1", res.CheckoutRequestId)
	})

	t.Run("invalid phone never reaches the service", func(t *testing.T) {
		pays := &fakePaymentService{startErr: errors.New("should not be called")}
		app := newTestApp(&fakeSubscriptionService{}, pays)
		status, _ := call(t, app, "POST", "/api/payment/pay-subscription", &account, dto.PaySubscriptionRequest{Phone: "555", Type: "Silver"})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("in progress returns the checkout id", func(t *testing.T) {
		pays := &fakePaymentService{startErr: &subscription.PaymentInProgressError{AccountId: account, CheckoutRequestId: "ws_CO_7"}}
		app := newTestApp(&fakeSubscriptionService{}, pays)
		status, body := call(t, app, "POST", "/api/payment/pay-subscription", &account, valid)
		assert.Equal(t, http.StatusConflict, status)
		assert.Contains(t, string(body.Data), "ws_CO_7")
	})

	t.Run("gateway down", func(t *testing.T) {
		pays := &fakePaymentService{startErr: &payment.GatewayUnavailableError{Gateway: "mpesa", Op: "initiate", Err: errors.New("eof")}}
		app := newTestApp(&fakeSubscriptionService{}, pays)
		status, _ := call(t, app, "POST", "/api/payment/pay-subscription", &account, valid)
		assert.Equal(t, http.StatusBadGateway, status)
	})

	t.Run("gateway rejects the request", func(t *testing.T) {
		pays := &fakePaymentService{startErr: &payment.GatewayRejectedError{Gateway: "mpesa", Code: "400.002.02", Message: "Invalid PhoneNumber"}}
		app := newTestApp(&fakeSubscriptionService{}, pays)
		status, body := call(t, app, "POST", "/api/payment/pay-subscription", &account, valid)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Contains(t, body.Message, "Invalid PhoneNumber")
	})

	syncCases := []struct {
		name string
		res  *dto.PaymentAttemptResponse
		err  error
		want int
	}{
		{name: "sync success", res: &dto.PaymentAttemptResponse{Status: "success"}, want: http.StatusOK},
		{name: "sync failed", res: &dto.PaymentAttemptResponse{Status: "failed"}, want: http.StatusPaymentRequired},
		{name: "sync timed out", res: &dto.PaymentAttemptResponse{Status: "timed_out"}, want: http.StatusGatewayTimeout},
		{name: "sync wait expired", res: &dto.PaymentAttemptResponse{Status: "pending"}, err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{name: "sync already subscribed", err: subscription.ErrAlreadySubscribed, want: http.StatusConflict},
	}
	for _, tt := range syncCases {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeSubscriptionService{}, &fakePaymentService{payRes: tt.res, payErr: tt.err})
			status, _ := call(t, app, "POST", "/api/payment/pay-subscription?wait=true", &account, valid)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestPaymentStatusRoute(t *testing.T) {
	account := uuid.New()

	app := newTestApp(&fakeSubscriptionService{}, &fakePaymentService{})
	status, body := call(t, app, "GET", "/api/payment/status/ws_CO_3", &account, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body.Data), "ws_CO_3")

	app = newTestApp(&fakeSubscriptionService{}, &fakePaymentService{statusErr: payment.ErrAttemptNotFound})
	status, _ = call(t, app, "GET", "/api/payment/status/ws_CO_3", &account, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func postCallback(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest("POST", path, bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestMpesaCallbackAlwaysAcks(t *testing.T) {
	pays := &fakePaymentService{callbackErr: errors.New("malformed")}
	app := newTestApp(&fakeSubscriptionService{}, pays)

	resp := postCallback(t, app, "/api/payment/mpesa/callback?token="+testCallbackToken)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var ack dto.MpesaCallbackAck
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.Equal(t, 0, ack.ResultCode)
	assert.Equal(t, 1, pays.callbacks)
}

func TestMpesaCallbackRejectsBadToken(t *testing.T) {
	pays := &fakePaymentService{}
	app := newTestApp(&fakeSubscriptionService{}, pays)

	for _, path := range []string{
		"/api/payment/mpesa/callback",
		"/api/payment/mpesa/callback?token=guess",
	} {
		resp := postCallback(t, app, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
	assert.Zero(t, pays.callbacks)
}

func TestServeWs_RequiresToken(t *testing.T) {
	app := fiber.New()
	NewPaymentController(&fakePaymentService{}, nil, testSecret, testCallbackToken, time.Second, logger.NewNopLogger()).
		RegisterRoutes(app.Group("/api"), serverutils.JwtMiddleware(testSecret))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/payment/ws", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
