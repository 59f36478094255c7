package service

import (
	"context"
	"fmt"
	"math"

	"propman-be/internal/dto"
	"propman-be/internal/entity"
	"propman-be/internal/repository/contract"
	"propman-be/internal/repository/specification"
	"propman-be/pkg/payment"
	"propman-be/pkg/payment/mpesa"
	"propman-be/pkg/subscription"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type IPaymentService interface {
	PayForTier(ctx context.Context, accountId uuid.UUID, req *dto.PaySubscriptionRequest) (*dto.PaymentAttemptResponse, error)
	StartPayment(ctx context.Context, accountId uuid.UUID, req *dto.PaySubscriptionRequest) (*dto.PaySubscriptionResponse, error)
	PaymentStatus(ctx context.Context, accountId uuid.UUID, checkoutRequestId string) (*dto.PaymentStatusResponse, error)
	PaymentHistory(ctx context.Context, accountId uuid.UUID) ([]*dto.PaymentAttemptResponse, error)
	HandleMpesaCallback(ctx context.Context, body []byte) error
	Close(ctx context.Context) error
}

type settleResult struct {
	attempt entity.PaymentAttempt
	err     error
}

// PayForTier charges the payer and blocks until the outcome is known or the
// poll budget runs out. If ctx ends first the charge keeps being confirmed
// in the background and the pending attempt is returned with ctx.Err().
func (s *LifecycleService) PayForTier(ctx context.Context, accountId uuid.UUID, req *dto.PaySubscriptionRequest) (*dto.PaymentAttemptResponse, error) {
	ctx, span := otel.Tracer("propman-be/service").Start(ctx, "payment.pay_for_tier")
	defer span.End()
	span.SetAttributes(attribute.String("account_id", accountId.String()), attribute.String("tier", req.Type))

	attempt, done, err := s.beginPayment(ctx, accountId, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	select {
	case res := <-done:
		span.SetAttributes(attribute.String("status", string(res.attempt.Status)))
		return toAttemptResponse(res.attempt), res.err
	case <-ctx.Done():
		return toAttemptResponse(attempt), ctx.Err()
	}
}

// StartPayment initiates the charge and returns as soon as the gateway has
// accepted it. Confirmation continues in the background.
func (s *LifecycleService) StartPayment(ctx context.Context, accountId uuid.UUID, req *dto.PaySubscriptionRequest) (*dto.PaySubscriptionResponse, error) {
	attempt, _, err := s.beginPayment(ctx, accountId, req)
	if err != nil {
		return nil, err
	}
	return &dto.PaySubscriptionResponse{
		CheckoutRequestId: attempt.CheckoutRequestId,
		CustomerMessage:   attempt.CustomerMessage,
	}, nil
}

func (s *LifecycleService) beginPayment(ctx context.Context, accountId uuid.UUID, req *dto.PaySubscriptionRequest) (entity.PaymentAttempt, <-chan settleResult, error) {
	phone, err := payment.NormalizeMSISDN(req.Phone)
	if err != nil {
		return entity.PaymentAttempt{}, nil, err
	}
	tier, err := s.machine.Catalog().Find(req.Type)
	if err != nil {
		return entity.PaymentAttempt{}, nil, err
	}
	if tier.IsFree() {
		return entity.PaymentAttempt{}, nil, subscription.ErrNoPaymentRequired
	}
	cycle, err := parseCycle(req.DurationKind)
	if err != nil {
		return entity.PaymentAttempt{}, nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	current, err := s.current(ctx, uow.SubscriptionRepository(), accountId)
	if err != nil {
		return entity.PaymentAttempt{}, nil, err
	}
	if s.machine.CurrentState(current, s.now()) == entity.StatePaidActive {
		return entity.PaymentAttempt{}, nil, subscription.ErrAlreadySubscribed
	}

	amount := tier.PriceFor(cycle)
	if req.Amount > 0 && math.Abs(req.Amount-amount) >= 0.01 {
		s.logger.Warn("PAYMENT", "Client amount differs from tier price", map[string]interface{}{
			"account_id":     accountId.String(),
			"tier":           tier.Name,
			"client_amount":  req.Amount,
			"charged_amount": amount,
		})
	}

	release, acquired, err := s.locker.TryAcquire(ctx, inflightKey(accountId), inflightTTL(s.poller))
	if err != nil {
		return entity.PaymentAttempt{}, nil, fmt.Errorf("lock payment for %s: %w", accountId, err)
	}
	if !acquired {
		return entity.PaymentAttempt{}, nil, &subscription.PaymentInProgressError{
			AccountId:         accountId,
			CheckoutRequestId: s.registry.inflightFor(accountId),
		}
	}

	attempt := entity.PaymentAttempt{
		Id:           uuid.New(),
		AccountId:    accountId,
		TierName:     tier.Name,
		BillingCycle: cycle,
		Phone:        phone,
		Amount:       amount,
		Purpose:      entity.PaymentPurposeSubscription,
		Status:       entity.PaymentStatusInitiated,
		Gateway:      s.gateway.Name(),
	}

	checkoutRequestId, customerMessage, err := s.gateway.Initiate(ctx, phone, amount, purposeRef(tier, cycle))
	if err != nil {
		release()
		s.logger.Error("PAYMENT", "Charge initiation failed", map[string]interface{}{
			"account_id": accountId.String(),
			"phone":      payment.MaskMSISDN(phone),
			"amount":     amount,
			"error":      err.Error(),
		})
		return entity.PaymentAttempt{}, nil, err
	}
	attempt.CheckoutRequestId = checkoutRequestId
	attempt.CustomerMessage = customerMessage
	attempt.Status = entity.PaymentStatusPending

	persisted := true
	if err := uow.PaymentAttemptRepository().Create(ctx, &attempt); err != nil {
		persisted = false
		s.logger.Error("PAYMENT", "Failed to record payment attempt", map[string]interface{}{
			"checkout_request_id": checkoutRequestId,
			"error":               err.Error(),
		})
	}
	s.registry.track(attempt)

	s.logger.Info("PAYMENT", "Charge initiated", map[string]interface{}{
		"account_id":          accountId.String(),
		"checkout_request_id": checkoutRequestId,
		"tier":                tier.Name,
		"cycle":               string(cycle),
		"amount":              amount,
		"phone":               payment.MaskMSISDN(phone),
	})
	s.publisher.PaymentInitiated(ctx, attempt)

	// Confirmation outlives the request that started it; only Close stops it.
	settleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.baseCtx, cancel)

	done := make(chan settleResult, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer stop()

		settled, err := s.settle(settleCtx, attempt, persisted)
		release()
		done <- settleResult{attempt: settled, err: err}
	}()

	return attempt, done, nil
}

// settle confirms the attempt and applies a success to the account. The
// returned error is only set when a confirmed payment could not be applied.
func (s *LifecycleService) settle(ctx context.Context, attempt entity.PaymentAttempt, persisted bool) (entity.PaymentAttempt, error) {
	attempt = s.poller.Confirm(ctx, attempt)
	if attempt.Status.IsTerminal() {
		completedAt := s.now()
		attempt.CompletedAt = &completedAt
	}

	var applyErr error
	if attempt.Status == entity.PaymentStatusSuccess {
		applyErr = s.applyPayment(ctx, attempt, persisted)
	} else {
		s.saveAttempt(ctx, &attempt, persisted)
	}

	s.registry.complete(attempt)

	details := map[string]interface{}{
		"account_id":          attempt.AccountId.String(),
		"checkout_request_id": attempt.CheckoutRequestId,
		"status":              string(attempt.Status),
		"attempts":            attempt.AttemptCount,
	}
	switch {
	case applyErr != nil:
		details["error"] = applyErr.Error()
		s.logger.Error("PAYMENT", "Confirmed payment could not be applied", details)
	case attempt.Status == entity.PaymentStatusSuccess:
		s.logger.Info("PAYMENT", "Payment confirmed", details)
	default:
		s.logger.Warn("PAYMENT", "Payment not confirmed", details)
	}

	s.publisher.PaymentSettled(ctx, attempt)
	return attempt, applyErr
}

func (s *LifecycleService) applyPayment(ctx context.Context, attempt entity.PaymentAttempt, persisted bool) error {
	var (
		from entity.SubscriptionState
		next entity.Subscription
	)
	err := s.withAccount(ctx, attempt.AccountId, func(ctx context.Context) error {
		uow := s.uowFactory.NewUnitOfWork(ctx)
		current, err := s.current(ctx, uow.SubscriptionRepository(), attempt.AccountId)
		if err != nil {
			return err
		}
		from = s.machine.CurrentState(current, s.now())

		applied, changed := s.machine.ApplyPaymentResult(current, attempt, s.now())
		if !changed {
			return nil
		}
		applied.AccountId = attempt.AccountId

		if persisted {
			s.keepCallbackMetadata(ctx, uow.PaymentAttemptRepository(), &attempt)
		} else if err := uow.PaymentAttemptRepository().Create(ctx, &attempt); err != nil {
			return fmt.Errorf("record payment attempt %s: %w", attempt.CheckoutRequestId, err)
		}
		if err := s.replace(ctx, current, &applied, &attempt); err != nil {
			return err
		}
		next = applied
		return nil
	})
	if err != nil {
		return err
	}

	s.publisher.StateChanged(ctx, from, next)
	return nil
}

func (s *LifecycleService) saveAttempt(ctx context.Context, attempt *entity.PaymentAttempt, persisted bool) {
	repo := s.uowFactory.NewUnitOfWork(ctx).PaymentAttemptRepository()
	var err error
	if persisted {
		s.keepCallbackMetadata(ctx, repo, attempt)
		err = repo.Update(ctx, attempt)
	} else {
		err = repo.Create(ctx, attempt)
	}
	if err != nil {
		s.logger.Error("PAYMENT", "Failed to update payment attempt", map[string]interface{}{
			"checkout_request_id": attempt.CheckoutRequestId,
			"error":               err.Error(),
		})
	}
}

// keepCallbackMetadata copies receipt details a callback stored while the
// attempt was being polled, so the settled attempt reports them.
func (s *LifecycleService) keepCallbackMetadata(ctx context.Context, repo contract.PaymentAttemptRepository, attempt *entity.PaymentAttempt) {
	stored, err := repo.FindOne(ctx, specification.ByID{ID: attempt.Id})
	if err != nil || stored == nil || len(stored.Metadata) == 0 {
		return
	}
	if attempt.Metadata == nil {
		attempt.Metadata = make(map[string]interface{}, len(stored.Metadata))
	}
	for k, v := range stored.Metadata {
		if _, ok := attempt.Metadata[k]; !ok {
			attempt.Metadata[k] = v
		}
	}
}

// PaymentStatus reports an attempt's status without mutating anything. A
// non-terminal attempt no longer being polled gets one live gateway query.
func (s *LifecycleService) PaymentStatus(ctx context.Context, accountId uuid.UUID, checkoutRequestId string) (*dto.PaymentStatusResponse, error) {
	attempt, err := s.findAttempt(ctx, accountId, checkoutRequestId)
	if err != nil {
		return nil, err
	}

	status := attempt.Status
	if !status.IsTerminal() && s.registry.inflightFor(accountId) != checkoutRequestId {
		live, err := s.gateway.QueryStatus(ctx, checkoutRequestId)
		if err != nil {
			s.logger.Warn("PAYMENT", "Live status query failed", map[string]interface{}{
				"checkout_request_id": checkoutRequestId,
				"error":               err.Error(),
			})
		} else {
			status = live
		}
	}

	return &dto.PaymentStatusResponse{
		CheckoutRequestId: checkoutRequestId,
		Status:            string(status),
		Terminal:          status.IsTerminal(),
		Guidance:          payment.Guidance(status),
	}, nil
}

func (s *LifecycleService) findAttempt(ctx context.Context, accountId uuid.UUID, checkoutRequestId string) (entity.PaymentAttempt, error) {
	if attempt, ok := s.registry.get(checkoutRequestId); ok {
		if attempt.AccountId != accountId {
			return entity.PaymentAttempt{}, payment.ErrAttemptNotFound
		}
		return attempt, nil
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	attempt, err := uow.PaymentAttemptRepository().FindOne(ctx,
		specification.ByCheckoutRequestID{CheckoutRequestID: checkoutRequestId},
	)
	if err != nil {
		return entity.PaymentAttempt{}, fmt.Errorf("load payment attempt: %w", err)
	}
	if attempt == nil || attempt.AccountId != accountId {
		return entity.PaymentAttempt{}, payment.ErrAttemptNotFound
	}
	return *attempt, nil
}

func (s *LifecycleService) PaymentHistory(ctx context.Context, accountId uuid.UUID) ([]*dto.PaymentAttemptResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	attempts, err := uow.PaymentAttemptRepository().FindAll(ctx,
		specification.ByAccount{AccountID: accountId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: 50},
	)
	if err != nil {
		return nil, fmt.Errorf("list payment attempts: %w", err)
	}

	res := make([]*dto.PaymentAttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		res = append(res, toAttemptResponse(*a))
	}
	return res, nil
}

// HandleMpesaCallback records a Daraja push. The receipt details land on
// the attempt and the poller is woken for an early status query; the
// outcome itself still comes from the gateway.
func (s *LifecycleService) HandleMpesaCallback(ctx context.Context, body []byte) error {
	result, err := mpesa.ParseCallback(body, s.now())
	if err != nil {
		return err
	}

	attempt, persisted, err := s.callbackAttempt(ctx, result.CheckoutRequestId)
	if err != nil {
		return err
	}
	if attempt == nil {
		s.logger.Warn("PAYMENT", "Callback for unknown checkout request", map[string]interface{}{
			"checkout_request_id": result.CheckoutRequestId,
			"result_code":         result.ResultCode,
		})
		return nil
	}

	if result.Status == entity.PaymentStatusSuccess && math.Abs(result.Amount-attempt.Amount) >= 0.01 {
		s.logger.Warn("PAYMENT", "Callback amount differs from charge", map[string]interface{}{
			"checkout_request_id": result.CheckoutRequestId,
			"callback_amount":     result.Amount,
			"charged_amount":      attempt.Amount,
		})
		return fmt.Errorf("%w: amount %.2f, charged %.2f", payment.ErrCallbackMismatch, result.Amount, attempt.Amount)
	}

	if persisted {
		err := s.withAccount(ctx, attempt.AccountId, func(ctx context.Context) error {
			return s.recordCallbackMetadata(ctx, attempt.Id, result)
		})
		if err != nil {
			return err
		}
	}
	if s.callbacks != nil {
		s.callbacks.Record(result)
	}

	s.logger.Info("PAYMENT", "Callback received", map[string]interface{}{
		"checkout_request_id": result.CheckoutRequestId,
		"status":              string(result.Status),
		"result_code":         result.ResultCode,
	})
	return nil
}

// callbackAttempt finds the attempt a push refers to. An attempt the log
// failed to record is still known to the registry while it is polled.
func (s *LifecycleService) callbackAttempt(ctx context.Context, checkoutRequestId string) (*entity.PaymentAttempt, bool, error) {
	repo := s.uowFactory.NewUnitOfWork(ctx).PaymentAttemptRepository()
	attempt, err := repo.FindOne(ctx, specification.ByCheckoutRequestID{CheckoutRequestID: checkoutRequestId})
	if err != nil {
		return nil, false, fmt.Errorf("load payment attempt: %w", err)
	}
	if attempt != nil {
		return attempt, true, nil
	}
	if tracked, ok := s.registry.get(checkoutRequestId); ok {
		return &tracked, false, nil
	}
	return nil, false, nil
}

// recordCallbackMetadata merges the push into the stored metadata. It runs
// under the account lock so two pushes for one attempt cannot interleave.
func (s *LifecycleService) recordCallbackMetadata(ctx context.Context, attemptId uuid.UUID, result payment.CallbackResult) error {
	repo := s.uowFactory.NewUnitOfWork(ctx).PaymentAttemptRepository()
	stored, err := repo.FindOne(ctx, specification.ByID{ID: attemptId})
	if err != nil {
		return fmt.Errorf("load payment attempt: %w", err)
	}
	if stored == nil {
		return payment.ErrAttemptNotFound
	}

	metadata := make(map[string]interface{}, len(stored.Metadata)+3)
	for k, v := range stored.Metadata {
		metadata[k] = v
	}
	metadata["result_code"] = result.ResultCode
	metadata["result_desc"] = result.ResultDesc
	if result.ReceiptNumber != "" {
		metadata["receipt_number"] = result.ReceiptNumber
	}

	if err := repo.UpdateMetadata(ctx, attemptId, metadata); err != nil {
		return fmt.Errorf("update payment attempt metadata: %w", err)
	}
	return nil
}

func purposeRef(tier entity.Tier, cycle entity.BillingCycle) string {
	return fmt.Sprintf("%s %s", tier.Name, cycle)
}

// IsTimedOut reports whether a sync payment ended without confirmation.
func IsTimedOut(res *dto.PaymentAttemptResponse) bool {
	return res != nil && res.Status == string(entity.PaymentStatusTimedOut)
}

var _ ISubscriptionService = (*LifecycleService)(nil)
var _ IPaymentService = (*LifecycleService)(nil)
