package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"propman-be/internal/entity"
	"propman-be/internal/pkg/logger"
	"propman-be/pkg/payment"

	"github.com/patrickmn/go-cache"
)

const (
	GatewayName = "mpesa"

	SandboxBaseURL = "https://sandbox.safaricom.co.ke"

	TransactionTypePayBill   = "CustomerPayBillOnline"
	TransactionTypeBuyGoods  = "CustomerBuyGoodsOnline"
	defaultAccountReference  = "PropMan"
	defaultTransactionDesc   = "Subscription"
	tokenCacheKey            = "access_token"
	stillProcessingErrorCode = "500.001.1001"
)

// eat is the Daraja timestamp zone.
var eat = time.FixedZone("EAT", 3*60*60)

type Config struct {
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	PassKey         string
	CallbackURL     string
	TransactionType string
	Timeout         time.Duration
}

// Client is a Daraja STK push gateway.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     *cache.Cache
	logger     logger.ILogger
	now        func() time.Time
}

func NewClient(cfg Config, log logger.ILogger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = SandboxBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TransactionType == "" {
		cfg.TransactionType = TransactionTypePayBill
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     cache.New(55*time.Minute, 10*time.Minute),
		logger:     log,
		now:        time.Now,
	}
}

func (c *Client) Name() string {
	return GatewayName
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

type apiError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (c *Client) Initiate(ctx context.Context, phone string, amount float64, purpose string) (string, string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", "", err
	}

	timestamp := c.timestamp()
	desc := purpose
	if desc == "" {
		desc = defaultTransactionDesc
	}
	reqBody := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   c.cfg.TransactionType,
		Amount:            int64(math.Ceil(amount)),
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  defaultAccountReference,
		TransactionDesc:   desc,
	}

	var resp stkPushResponse
	status, apiErr, err := c.post(ctx, "/mpesa/stkpush/v1/processrequest", token, reqBody, &resp)
	if err != nil {
		return "", "", &payment.GatewayUnavailableError{Gateway: GatewayName, Op: "initiate", Err: err}
	}
	if apiErr != nil {
		if retryable(status) {
			return "", "", &payment.GatewayUnavailableError{
				Gateway: GatewayName,
				Op:      "initiate",
				Err:     fmt.Errorf("%s: %s", apiErr.ErrorCode, apiErr.ErrorMessage),
			}
		}
		return "", "", &payment.GatewayRejectedError{Gateway: GatewayName, Code: apiErr.ErrorCode, Message: apiErr.ErrorMessage}
	}
	if resp.ResponseCode != "0" || resp.CheckoutRequestID == "" {
		return "", "", &payment.GatewayRejectedError{Gateway: GatewayName, Code: resp.ResponseCode, Message: resp.ResponseDescription}
	}

	c.logger.Info("MPESA", "STK push accepted", map[string]interface{}{
		"checkout_request_id": resp.CheckoutRequestID,
		"merchant_request_id": resp.MerchantRequestID,
		"phone":               payment.MaskMSISDN(phone),
		"amount":              reqBody.Amount,
	})
	return resp.CheckoutRequestID, resp.CustomerMessage, nil
}

func (c *Client) QueryStatus(ctx context.Context, checkoutRequestId string) (entity.PaymentStatus, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	timestamp := c.timestamp()
	reqBody := stkQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestId,
	}

	var resp stkQueryResponse
	status, apiErr, err := c.post(ctx, "/mpesa/stkpushquery/v1/query", token, reqBody, &resp)
	if err != nil {
		return "", &payment.GatewayUnavailableError{Gateway: GatewayName, Op: "query", Err: err}
	}
	if apiErr != nil {
		// Daraja answers a query for a charge still on the handset with an error body.
		if apiErr.ErrorCode == stillProcessingErrorCode {
			return entity.PaymentStatusPending, nil
		}
		if retryable(status) {
			return "", &payment.GatewayUnavailableError{
				Gateway: GatewayName,
				Op:      "query",
				Err:     fmt.Errorf("%s: %s", apiErr.ErrorCode, apiErr.ErrorMessage),
			}
		}
		return "", &payment.GatewayRejectedError{Gateway: GatewayName, Code: apiErr.ErrorCode, Message: apiErr.ErrorMessage}
	}

	return StatusFromResultCode(resp.ResultCode), nil
}

// StatusFromResultCode maps a Daraja ResultCode to a payment status. An
// empty code means the gateway has no result yet.
func StatusFromResultCode(code string) entity.PaymentStatus {
	switch strings.TrimSpace(code) {
	case "":
		return entity.PaymentStatusPending
	case "0":
		return entity.PaymentStatusSuccess
	}
	return entity.PaymentStatusFailed
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if v, found := c.tokens.Get(tokenCacheKey); found {
		return v.(string), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &payment.GatewayUnavailableError{Gateway: GatewayName, Op: "oauth", Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &payment.GatewayUnavailableError{Gateway: GatewayName, Op: "oauth", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &payment.GatewayUnavailableError{
			Gateway: GatewayName,
			Op:      "oauth",
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, string(bodyBytes)),
		}
	}

	var tok tokenResponse
	if err := json.Unmarshal(bodyBytes, &tok); err != nil {
		return "", &payment.GatewayUnavailableError{Gateway: GatewayName, Op: "oauth", Err: err}
	}

	ttl := cache.DefaultExpiration
	if secs, err := strconv.Atoi(tok.ExpiresIn); err == nil && secs > 60 {
		ttl = time.Duration(secs-60) * time.Second
	}
	c.tokens.Set(tokenCacheKey, tok.AccessToken, ttl)
	return tok.AccessToken, nil
}

// post sends a JSON request. A non-2xx answer is returned as apiErr with err
// nil; err is reserved for transport and decoding failures.
func (c *Client) post(ctx context.Context, path, token string, body interface{}, out interface{}) (int, *apiError, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Delete(tokenCacheKey)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if err := json.Unmarshal(bodyBytes, &apiErr); err != nil || apiErr.ErrorCode == "" {
			apiErr = apiError{ErrorCode: strconv.Itoa(resp.StatusCode), ErrorMessage: strings.TrimSpace(string(bodyBytes))}
		}
		return resp.StatusCode, &apiErr, nil
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return resp.StatusCode, nil, nil
}

// retryable reports whether an error status says nothing about the charge
// itself: server faults and credential problems.
func retryable(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusUnauthorized || status == http.StatusForbidden
}

func (c *Client) timestamp() string {
	return c.now().In(eat).Format("20060102150405")
}

func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.PassKey + timestamp))
}
