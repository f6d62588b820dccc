// Package quota implements the usage ledger: per-account daily allowances
// with a 30-day trial window, and per-session trial counters for anonymous
// visitors. Policy (rules.go) is pure; stores provide per-key atomicity.
package quota

import (
	"context"
	"time"

	"github.com/fgb-andu/muse-api/pkg/domain"
)

// AccountStore applies an update to one account as a single atomic unit.
// The apply callback receives the current row and mutates it; if apply
// returns an error the mutation is discarded. Implementations must not
// interleave two updates for the same account.
type AccountStore interface {
	UpdateAccount(ctx context.Context, accountID int64, apply func(*domain.Account) error) (*domain.Account, error)
}

// TrialStore holds anonymous visitor counters keyed by session id. Update
// creates the counter lazily via the init callback before applying.
type TrialStore interface {
	UpdateTrial(ctx context.Context, sessionID string, init func() *domain.VisitorTrial, apply func(*domain.VisitorTrial) error) (*domain.VisitorTrial, error)
}

// Engine is the quota ledger's consume entry point for both identity kinds.
type Engine struct {
	accounts AccountStore
	trials   TrialStore
	rules    Rules
	now      func() time.Time
}

func NewEngine(accounts AccountStore, trials TrialStore, rules Rules) *Engine {
	return &Engine{
		accounts: accounts,
		trials:   trials,
		rules:    rules,
		now:      time.Now,
	}
}

// WithClock overrides the engine's time source. Used by tests to simulate
// day rollover and trial expiry.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Consume spends one use for the given identity and returns the remaining
// allowance. Denials are one of the domain sentinel errors.
func (e *Engine) Consume(ctx context.Context, id domain.Identity) (int, error) {
	if id.Authenticated() {
		return e.consumeDaily(ctx, id.AccountID)
	}
	return e.consumeTrial(ctx, id)
}

func (e *Engine) consumeDaily(ctx context.Context, accountID int64) (int, error) {
	var remaining int
	_, err := e.accounts.UpdateAccount(ctx, accountID, func(a *domain.Account) error {
		var err error
		remaining, err = e.rules.ConsumeDaily(a, e.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (e *Engine) consumeTrial(ctx context.Context, id domain.Identity) (int, error) {
	var remaining int
	_, err := e.trials.UpdateTrial(ctx, id.SessionID,
		func() *domain.VisitorTrial {
			return &domain.VisitorTrial{SessionID: id.SessionID, Count: e.rules.TrialUses, BoundOrigin: id.Origin}
		},
		func(t *domain.VisitorTrial) error {
			var err error
			remaining, err = e.rules.ConsumeTrial(t, id.Origin)
			return err
		})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// Refund credits back the use taken by a Consume whose follow-up work
// failed, so a storage failure never leaves a decrement with no artifact.
func (e *Engine) Refund(ctx context.Context, id domain.Identity) error {
	if id.Authenticated() {
		_, err := e.accounts.UpdateAccount(ctx, id.AccountID, func(a *domain.Account) error {
			e.rules.RefundDaily(a)
			return nil
		})
		return err
	}
	_, err := e.trials.UpdateTrial(ctx, id.SessionID,
		func() *domain.VisitorTrial {
			return &domain.VisitorTrial{SessionID: id.SessionID, Count: e.rules.TrialUses, BoundOrigin: id.Origin}
		},
		func(t *domain.VisitorTrial) error {
			if t.BoundOrigin == id.Origin && t.Count < e.rules.TrialUses {
				t.Count++
			}
			return nil
		})
	return err
}

// TrialRemaining reports an anonymous visitor's remaining trial uses without
// consuming one. The counter is created lazily at the full allowance.
func (e *Engine) TrialRemaining(ctx context.Context, id domain.Identity) (int, error) {
	var remaining int
	_, err := e.trials.UpdateTrial(ctx, id.SessionID,
		func() *domain.VisitorTrial {
			return &domain.VisitorTrial{SessionID: id.SessionID, Count: e.rules.TrialUses, BoundOrigin: id.Origin}
		},
		func(t *domain.VisitorTrial) error {
			var err error
			remaining, err = e.rules.PeekTrial(t, id.Origin)
			return err
		})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}
