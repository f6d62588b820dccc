package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/fgb-andu/muse-api/pkg/domain"
	"github.com/fgb-andu/muse-api/pkg/quota"
)

// MemoryAccounts is an in-process Accounts implementation guarded by a
// single mutex. Used in tests and as a fallback when no database is
// configured.
type MemoryAccounts struct {
	mu       sync.Mutex
	accounts map[int64]*domain.Account
	byEmail  map[string]*domain.Account
	nextID   int64
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{
		accounts: make(map[int64]*domain.Account),
		byEmail:  make(map[string]*domain.Account),
		nextID:   1,
	}
}

func (s *MemoryAccounts) Create(ctx context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return nil, domain.ErrEmailTaken
	}

	now := time.Now().UTC()
	a := &domain.Account{
		ID:          s.nextID,
		Email:       email,
		TrialStart:  now,
		DailyUses:   quota.DefaultDailyAllowance,
		LastUseDate: now,
		CreatedAt:   now,
	}
	s.nextID++
	s.accounts[a.ID] = a
	s.byEmail[email] = a

	cp := *a
	return &cp, nil
}

func (s *MemoryAccounts) Get(ctx context.Context, id int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.accounts[id]
	if !exists {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryAccounts) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.byEmail[email]
	if !exists {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryAccounts) UpdateAccount(ctx context.Context, accountID int64, apply func(*domain.Account) error) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.accounts[accountID]
	if !exists {
		return nil, domain.ErrAccountNotFound
	}

	// Apply against a copy so a denying policy leaves the row untouched.
	cp := *a
	if err := apply(&cp); err != nil {
		return nil, err
	}
	*a = cp

	out := cp
	return &out, nil
}

// MemoryTrials is the default session-scoped trial counter store.
type MemoryTrials struct {
	mu     sync.Mutex
	trials map[string]*domain.VisitorTrial
}

func NewMemoryTrials() *MemoryTrials {
	return &MemoryTrials{trials: make(map[string]*domain.VisitorTrial)}
}

func (s *MemoryTrials) UpdateTrial(ctx context.Context, sessionID string, init func() *domain.VisitorTrial, apply func(*domain.VisitorTrial) error) (*domain.VisitorTrial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.trials[sessionID]
	if !exists {
		t = init()
		s.trials[sessionID] = t
	}

	cp := *t
	if err := apply(&cp); err != nil {
		return nil, err
	}
	*t = cp

	out := cp
	return &out, nil
}
