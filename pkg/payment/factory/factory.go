package factory

import (
	"fmt"
	"strings"

	"propman-be/internal/pkg/logger"
	"propman-be/pkg/payment"
	"propman-be/pkg/payment/midtrans"
	"propman-be/pkg/payment/mpesa"
)

type Options struct {
	Provider string
	Mpesa    mpesa.Config
	Midtrans midtrans.Config
}

// NewGateway builds the configured gateway.
func NewGateway(opts Options, log logger.ILogger) (payment.Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", mpesa.GatewayName:
		return mpesa.NewClient(opts.Mpesa, log), nil
	case midtrans.GatewayName:
		return midtrans.NewClient(opts.Midtrans, log), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", opts.Provider)
	}
}
