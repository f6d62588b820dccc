// Package ledger holds the persistent quota state: registered accounts and
// anonymous visitor trial counters. Account state is durable (sqlite);
// trial counters are session-scoped and live in memory or redis.
package ledger

import (
	"context"

	"github.com/fgb-andu/muse-api/pkg/domain"
)

// Accounts is the account side of the ledger. UpdateAccount is the atomic
// read-modify-write primitive the quota engine runs its policy through.
type Accounts interface {
	Create(ctx context.Context, email string) (*domain.Account, error)
	Get(ctx context.Context, id int64) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	UpdateAccount(ctx context.Context, accountID int64, apply func(*domain.Account) error) (*domain.Account, error)
}

// Trials is the visitor side of the ledger, keyed by session id. UpdateTrial
// creates the counter lazily via init before applying.
type Trials interface {
	UpdateTrial(ctx context.Context, sessionID string, init func() *domain.VisitorTrial, apply func(*domain.VisitorTrial) error) (*domain.VisitorTrial, error)
}
