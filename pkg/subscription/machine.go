package subscription

import (
	"time"

	"propman-be/internal/entity"
)

const (
	// TrialLength is how long a free trial grants full tier access.
	TrialLength = 45 * 24 * time.Hour

	// DefaultWarningWindow is how long before an end date the state turns *Expiring.
	DefaultWarningWindow = 3 * 24 * time.Hour

	// GracePeriod is shown to users after a paid cycle ends. It is display
	// only: the state is PaidExpired throughout.
	GracePeriod = 7 * 24 * time.Hour
)

// Banner is the presentation hint derived from a state.
type Banner string

const (
	BannerNone            Banner = "none"
	BannerTrialEnding     Banner = "trial_ending"
	BannerRenewSoon       Banner = "renew_soon"
	BannerPaymentRequired Banner = "payment_required"
	BannerUpgrade         Banner = "upgrade"
)

// Machine computes subscription lifecycle states from stored dates and
// applies the allowed transitions. All methods are pure.
type Machine struct {
	catalog       *Catalog
	warningWindow time.Duration
}

func NewMachine(catalog *Catalog, warningWindow time.Duration) *Machine {
	if warningWindow <= 0 {
		warningWindow = DefaultWarningWindow
	}
	return &Machine{
		catalog:       catalog,
		warningWindow: warningWindow,
	}
}

func (m *Machine) Catalog() *Catalog {
	return m.catalog
}

// CurrentState derives the lifecycle state at now. A paid cycle takes
// precedence over trial dates on the same record.
func (m *Machine) CurrentState(sub *entity.Subscription, now time.Time) entity.SubscriptionState {
	if sub == nil {
		return entity.StateNoSubscription
	}
	if tier, ok := m.catalog.Lookup(sub.TierName); ok && tier.IsFree() && !sub.HasPaidCycle() && !sub.IsFreeTrial {
		return entity.StateFree
	}

	if sub.HasPaidCycle() {
		return m.phase(*sub.CycleEndDate, now,
			entity.StatePaidActive, entity.StatePaidExpiring, entity.StatePaidExpired)
	}
	if sub.TrialEndDate != nil {
		if !sub.IsFreeTrial {
			return entity.StateTrialExpired
		}
		return m.phase(*sub.TrialEndDate, now,
			entity.StateTrialActive, entity.StateTrialExpiring, entity.StateTrialExpired)
	}
	return entity.StateNoSubscription
}

func (m *Machine) phase(end, now time.Time, active, expiring, expired entity.SubscriptionState) entity.SubscriptionState {
	if !now.Before(end) {
		return expired
	}
	if end.Sub(now) <= m.warningWindow {
		return expiring
	}
	return active
}

// RequiresPayment reports whether the account must pay before getting paid
// tier access again.
func RequiresPayment(state entity.SubscriptionState) bool {
	switch state {
	case entity.StateTrialExpired, entity.StatePaidExpired, entity.StateNoSubscription:
		return true
	}
	return false
}

// IsLive reports whether the state grants paid or trial access.
func IsLive(state entity.SubscriptionState) bool {
	switch state {
	case entity.StateTrialActive, entity.StateTrialExpiring, entity.StatePaidActive, entity.StatePaidExpiring:
		return true
	}
	return false
}

// IsActive reports whether the state grants any access at all.
func IsActive(state entity.SubscriptionState) bool {
	return state == entity.StateFree || IsLive(state)
}

func BannerFor(state entity.SubscriptionState) Banner {
	switch state {
	case entity.StateTrialExpiring:
		return BannerTrialEnding
	case entity.StatePaidExpiring:
		return BannerRenewSoon
	case entity.StateTrialExpired, entity.StatePaidExpired:
		return BannerPaymentRequired
	case entity.StateFree, entity.StateNoSubscription:
		return BannerUpgrade
	}
	return BannerNone
}

// StartTrial opens a free trial on tier. The account must not hold an
// unexpired trial or paid cycle and must not have consumed its trial.
func (m *Machine) StartTrial(current *entity.Subscription, tier entity.Tier, now time.Time) (entity.Subscription, error) {
	if !tier.TrialEligible {
		return entity.Subscription{}, &InvalidTierError{Tier: tier.Name, Reason: "tier is not eligible for a free trial"}
	}
	if current != nil {
		if IsLive(m.CurrentState(current, now)) {
			return entity.Subscription{}, ErrAlreadySubscribed
		}
		if current.TrialEndDate != nil {
			return entity.Subscription{}, ErrTrialAlreadyUsed
		}
	}

	trialEnd := now.Add(TrialLength)
	sub := entity.Subscription{
		TierName:     tier.Name,
		BillingCycle: entity.BillingCycleMonthly,
		IsFreeTrial:  true,
		TrialEndDate: &trialEnd,
		IsCurrent:    true,
	}
	if current != nil {
		sub.AccountId = current.AccountId
		if current.BillingCycle.IsValid() {
			sub.BillingCycle = current.BillingCycle
		}
	}
	return m.snapshot(sub, now), nil
}

// AwaitsPayment reports whether current is an expired trial or paid cycle
// and tier is a paid one. The expired record then stays current until a
// payment succeeds.
func (m *Machine) AwaitsPayment(current *entity.Subscription, tier entity.Tier, now time.Time) bool {
	if current == nil || tier.IsFree() {
		return false
	}
	switch m.CurrentState(current, now) {
	case entity.StateTrialExpired, entity.StatePaidExpired:
		return true
	}
	return false
}

// SelectTier records a tier choice without a trial. The free tier is active
// immediately; a paid tier waits for payment. An expired record is returned
// as is when a paid tier is chosen (see AwaitsPayment).
func (m *Machine) SelectTier(current *entity.Subscription, tier entity.Tier, cycle entity.BillingCycle, now time.Time) (entity.Subscription, error) {
	if !cycle.IsValid() {
		return entity.Subscription{}, ErrInvalidCycle
	}
	if current != nil && IsLive(m.CurrentState(current, now)) {
		return entity.Subscription{}, ErrAlreadySubscribed
	}
	if m.AwaitsPayment(current, tier, now) {
		return m.snapshot(*current, now), nil
	}

	sub := entity.Subscription{
		TierName:     tier.Name,
		BillingCycle: cycle,
		IsCurrent:    true,
	}
	if current != nil {
		sub.AccountId = current.AccountId
	}
	return m.snapshot(sub, now), nil
}

// ApplyPaymentResult starts a new paid cycle when the attempt succeeded. Any
// other outcome returns the subscription untouched and changed=false.
func (m *Machine) ApplyPaymentResult(sub *entity.Subscription, attempt entity.PaymentAttempt, now time.Time) (entity.Subscription, bool) {
	if attempt.Status != entity.PaymentStatusSuccess {
		if sub == nil {
			return entity.Subscription{}, false
		}
		return *sub, false
	}

	cycle := attempt.BillingCycle
	if !cycle.IsValid() {
		cycle = entity.BillingCycleMonthly
	}
	start := now
	end := CycleEnd(start, cycle)
	attemptId := attempt.Id

	next := entity.Subscription{
		AccountId:            attempt.AccountId,
		TierName:             attempt.TierName,
		BillingCycle:         cycle,
		IsFreeTrial:          false,
		CycleStartDate:       &start,
		CycleEndDate:         &end,
		IsCurrent:            true,
		LastPaymentAttemptId: &attemptId,
	}
	if next.TierName == "" && sub != nil {
		next.TierName = sub.TierName
	}
	return m.snapshot(next, now), true
}

// Reconcile refreshes the stored state snapshot. changed is false when the
// stored snapshot already matches now.
func (m *Machine) Reconcile(sub entity.Subscription, now time.Time) (entity.Subscription, bool) {
	state := m.CurrentState(&sub, now)
	active := IsActive(state)
	if sub.State == state && sub.IsActive == active {
		return sub, false
	}
	sub.State = state
	sub.IsActive = active
	return sub, true
}

// Entitlements returns the quotas the account may use right now.
func (m *Machine) Entitlements(sub *entity.Subscription, now time.Time) entity.Quotas {
	if sub == nil || !IsLive(m.CurrentState(sub, now)) {
		return m.catalog.Free().Quotas
	}
	tier, ok := m.catalog.Lookup(sub.TierName)
	if !ok {
		return m.catalog.Free().Quotas
	}
	return tier.Quotas
}

// EndDate returns the date governing the current state, if any.
func EndDate(sub *entity.Subscription) *time.Time {
	if sub == nil {
		return nil
	}
	if sub.HasPaidCycle() {
		return sub.CycleEndDate
	}
	return sub.TrialEndDate
}

// Remaining is the time left until the governing end date, never negative.
func Remaining(sub *entity.Subscription, now time.Time) time.Duration {
	end := EndDate(sub)
	if end == nil || !now.Before(*end) {
		return 0
	}
	return end.Sub(now)
}

// GraceEnd is the display-only end of the grace window after a paid cycle.
func GraceEnd(sub *entity.Subscription) *time.Time {
	if sub == nil || !sub.HasPaidCycle() {
		return nil
	}
	g := sub.CycleEndDate.Add(GracePeriod)
	return &g
}

// CycleEnd returns the end of a billing cycle starting at start.
func CycleEnd(start time.Time, cycle entity.BillingCycle) time.Time {
	if cycle == entity.BillingCycleYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

func (m *Machine) snapshot(sub entity.Subscription, now time.Time) entity.Subscription {
	sub.State = m.CurrentState(&sub, now)
	sub.IsActive = IsActive(sub.State)
	return sub
}
