package mpesa

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"propman-be/pkg/payment"
)

var ErrMalformedCallback = errors.New("malformed mpesa callback")

type callbackEnvelope struct {
	Body struct {
		StkCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []callbackItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type callbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// ParseCallback decodes the body Daraja posts to the STK callback URL.
func ParseCallback(body []byte, receivedAt time.Time) (payment.CallbackResult, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return payment.CallbackResult{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	cb := env.Body.StkCallback
	if cb == nil || cb.CheckoutRequestID == "" {
		return payment.CallbackResult{}, fmt.Errorf("%w: missing stkCallback.CheckoutRequestID", ErrMalformedCallback)
	}

	code := strconv.Itoa(cb.ResultCode)
	result := payment.CallbackResult{
		CheckoutRequestId: cb.CheckoutRequestID,
		Status:            StatusFromResultCode(code),
		ResultCode:        code,
		ResultDesc:        cb.ResultDesc,
		ReceivedAt:        receivedAt,
	}
	if cb.CallbackMetadata != nil {
		for _, item := range cb.CallbackMetadata.Item {
			switch item.Name {
			case "MpesaReceiptNumber":
				if s, ok := item.Value.(string); ok {
					result.ReceiptNumber = s
				}
			case "Amount":
				result.Amount = itemAmount(item.Value)
			}
		}
	}
	return result, nil
}

// Daraja sends Amount as a JSON number; some sandboxes quote it.
func itemAmount(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err == nil {
			return f
		}
	}
	return 0
}
