package quota

import (
	"time"

	"github.com/fgb-andu/muse-api/pkg/domain"
)

const (
	DefaultDailyAllowance = 20
	DefaultTrialUses      = 5
	DefaultTrialPeriod    = 30 * 24 * time.Hour
)

// Rules is the pure entitlement policy. It owns the day-rollover and
// trial-expiry semantics; stores own atomicity.
type Rules struct {
	DailyAllowance int
	TrialUses      int
	TrialPeriod    time.Duration
}

func DefaultRules() Rules {
	return Rules{
		DailyAllowance: DefaultDailyAllowance,
		TrialUses:      DefaultTrialUses,
		TrialPeriod:    DefaultTrialPeriod,
	}
}

// sameDay compares calendar dates in UTC, the fixed reference timezone for
// daily resets.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// ConsumeDaily applies one use against a. It mutates a in place and returns
// the remaining allowance, or a deny reason. Order matters: the lazy daily
// reset runs first, then trial expiry, then the allowance floor. An expired
// unsubscribed account is denied even with allowance remaining.
func (r Rules) ConsumeDaily(a *domain.Account, now time.Time) (int, error) {
	if !sameDay(a.LastUseDate, now) {
		a.DailyUses = r.DailyAllowance
		a.LastUseDate = now
	}
	if !a.Subscribed && now.Sub(a.TrialStart) > r.TrialPeriod {
		return 0, domain.ErrTrialExpired
	}
	if a.DailyUses <= 0 {
		return 0, domain.ErrDailyLimitReached
	}
	a.DailyUses--
	return a.DailyUses, nil
}

// RefundDaily credits back one use after a failed generation, capped at the
// full allowance so a refund racing a reset cannot overfill the counter.
func (r Rules) RefundDaily(a *domain.Account) {
	if a.DailyUses < r.DailyAllowance {
		a.DailyUses++
	}
}

// ConsumeTrial applies one use against an anonymous visitor's counter.
// A mismatched origin denies without mutating the counter.
func (r Rules) ConsumeTrial(t *domain.VisitorTrial, origin string) (int, error) {
	if t.BoundOrigin != origin {
		return 0, domain.ErrOriginMismatch
	}
	if t.Count <= 0 {
		return 0, domain.ErrTrialLimitReached
	}
	t.Count--
	return t.Count, nil
}

// PeekTrial reports the remaining trial uses without consuming one.
func (r Rules) PeekTrial(t *domain.VisitorTrial, origin string) (int, error) {
	if t.BoundOrigin != origin {
		return 0, domain.ErrOriginMismatch
	}
	return t.Count, nil
}
