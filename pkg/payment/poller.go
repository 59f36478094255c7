package payment

import (
	"context"
	"time"

	"propman-be/internal/entity"
	"propman-be/internal/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultPollInterval    = 5 * time.Second
	DefaultPollMaxAttempts = 6
)

type PollerConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultPollMaxAttempts
	}
	return c
}

// Budget is the longest Confirm can run.
func (c PollerConfig) Budget() time.Duration {
	c = c.withDefaults()
	return c.Interval * time.Duration(c.MaxAttempts)
}

// Poller turns a pending charge into a terminal outcome under a fixed
// interval and attempt budget.
type Poller struct {
	gateway   Gateway
	cfg       PollerConfig
	callbacks *CallbackStore
	logger    logger.ILogger
}

func NewPoller(gateway Gateway, cfg PollerConfig, log logger.ILogger) *Poller {
	return &Poller{
		gateway: gateway,
		cfg:     cfg.withDefaults(),
		logger:  log,
	}
}

// WithCallbacks lets a pushed callback cut the current interval short. The
// early query still goes to the gateway and counts against the budget.
func (p *Poller) WithCallbacks(store *CallbackStore) *Poller {
	p.callbacks = store
	return p
}

func (p *Poller) Config() PollerConfig {
	return p.cfg
}

// Confirm polls the gateway until the charge succeeds, fails or the budget
// runs out (timed_out). Only the gateway's answer decides the outcome. Gateway errors consume an attempt like a pending
// answer. When ctx is cancelled polling stops and the attempt is returned
// still pending; the charge itself is not touched.
func (p *Poller) Confirm(ctx context.Context, attempt entity.PaymentAttempt) entity.PaymentAttempt {
	ctx, span := otel.Tracer("propman-be/payment").Start(ctx, "payment.confirm")
	defer span.End()
	span.SetAttributes(attribute.String("checkout_request_id", attempt.CheckoutRequestId))

	budgetCtx, cancel := context.WithTimeout(ctx, p.cfg.Budget())
	defer cancel()

	attempt.Status = entity.PaymentStatusPending
	polls := 0

	var hint <-chan struct{}
	if p.callbacks != nil {
		hint = p.callbacks.Signal(attempt.CheckoutRequestId)
		defer p.callbacks.Forget(attempt.CheckoutRequestId)
	}

	for polls < p.cfg.MaxAttempts {
		if polls > 0 {
			wait := time.NewTimer(p.cfg.Interval)
			select {
			case <-wait.C:
			case <-hint:
				wait.Stop()
				hint = nil
				p.logger.Debug("PAYMENT", "Callback received, querying early", map[string]interface{}{
					"checkout_request_id": attempt.CheckoutRequestId,
				})
			case <-budgetCtx.Done():
				wait.Stop()
				return p.stop(ctx, attempt)
			}
		}
		polls++

		status, err := p.gateway.QueryStatus(budgetCtx, attempt.CheckoutRequestId)
		attempt.AttemptCount++

		if err != nil {
			p.logger.Warn("PAYMENT", "Status query failed", map[string]interface{}{
				"checkout_request_id": attempt.CheckoutRequestId,
				"attempt":             attempt.AttemptCount,
				"error":               err.Error(),
			})
			if ctx.Err() != nil {
				return p.stop(ctx, attempt)
			}
			continue
		}

		p.logger.Debug("PAYMENT", "Status polled", map[string]interface{}{
			"checkout_request_id": attempt.CheckoutRequestId,
			"attempt":             attempt.AttemptCount,
			"status":              string(status),
		})

		if status == entity.PaymentStatusSuccess || status == entity.PaymentStatusFailed {
			attempt.Status = status
			span.SetAttributes(attribute.String("status", string(status)), attribute.Int("attempts", attempt.AttemptCount))
			return attempt
		}
	}

	attempt.Status = entity.PaymentStatusTimedOut
	span.SetAttributes(attribute.String("status", string(attempt.Status)), attribute.Int("attempts", attempt.AttemptCount))
	p.logger.Warn("PAYMENT", "No confirmation within budget", map[string]interface{}{
		"checkout_request_id": attempt.CheckoutRequestId,
		"attempts":            attempt.AttemptCount,
	})
	return attempt
}

// stop distinguishes a caller cancellation (attempt stays pending) from the
// budget running out (timed_out).
func (p *Poller) stop(ctx context.Context, attempt entity.PaymentAttempt) entity.PaymentAttempt {
	if ctx.Err() != nil {
		p.logger.Info("PAYMENT", "Confirmation wait cancelled", map[string]interface{}{
			"checkout_request_id": attempt.CheckoutRequestId,
			"attempts":            attempt.AttemptCount,
		})
		attempt.Status = entity.PaymentStatusPending
		return attempt
	}
	attempt.Status = entity.PaymentStatusTimedOut
	return attempt
}
