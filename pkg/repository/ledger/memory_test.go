package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fgb-andu/muse-api/pkg/domain"
)

func TestMemoryAccountsCreate(t *testing.T) {
	store := NewMemoryAccounts()
	ctx := context.Background()

	a, err := store.Create(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, 20, a.DailyUses)

	_, err = store.Create(ctx, "a@x.com")
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	b, err := store.Create(ctx, "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.ID)
}

func TestMemoryAccountsUpdateIsolation(t *testing.T) {
	store := NewMemoryAccounts()
	ctx := context.Background()

	a, err := store.Create(ctx, "a@x.com")
	require.NoError(t, err)

	// a failing apply must leave the stored row untouched
	_, err = store.UpdateAccount(ctx, a.ID, func(acc *domain.Account) error {
		acc.DailyUses = 0
		return domain.ErrTrialExpired
	})
	assert.ErrorIs(t, err, domain.ErrTrialExpired)

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.DailyUses)
}

func TestMemoryTrialsLazyInit(t *testing.T) {
	store := NewMemoryTrials()
	ctx := context.Background()

	initCalls := 0
	init := func() *domain.VisitorTrial {
		initCalls++
		return &domain.VisitorTrial{SessionID: "s1", Count: 5, BoundOrigin: "10.0.0.1"}
	}

	trial, err := store.UpdateTrial(ctx, "s1", init, func(tr *domain.VisitorTrial) error {
		tr.Count--
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, trial.Count)

	trial, err = store.UpdateTrial(ctx, "s1", init, func(tr *domain.VisitorTrial) error {
		tr.Count--
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, trial.Count)
	assert.Equal(t, 1, initCalls, "init runs only on first touch")
}

func TestMemoryTrialsFailedApply(t *testing.T) {
	store := NewMemoryTrials()
	ctx := context.Background()

	init := func() *domain.VisitorTrial {
		return &domain.VisitorTrial{SessionID: "s1", Count: 5, BoundOrigin: "10.0.0.1"}
	}

	_, err := store.UpdateTrial(ctx, "s1", init, func(tr *domain.VisitorTrial) error {
		tr.Count = 0
		return domain.ErrOriginMismatch
	})
	assert.ErrorIs(t, err, domain.ErrOriginMismatch)

	trial, err := store.UpdateTrial(ctx, "s1", init, func(*domain.VisitorTrial) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 5, trial.Count)
}
