package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fgb-andu/muse-api/pkg/domain"
	"github.com/fgb-andu/muse-api/pkg/quota"
)

// SQLiteAccounts is the durable Accounts implementation. UpdateAccount runs
// its read-modify-write inside a transaction; the store-level mutex keeps
// two consumes for the same node from ever racing past the allowance check.
type SQLiteAccounts struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLiteAccounts(db *sql.DB) *SQLiteAccounts {
	return &SQLiteAccounts{db: db}
}

func (s *SQLiteAccounts) Create(ctx context.Context, email string) (*domain.Account, error) {
	now := time.Now().UTC()

	query := `INSERT INTO accounts (email, trial_start, daily_uses, last_use_date, subscribed, created_at)
	          VALUES (?, ?, ?, ?, 0, ?)`

	res, err := s.db.ExecContext(ctx, query, email, now, quota.DefaultDailyAllowance, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrEmailTaken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &domain.Account{
		ID:          id,
		Email:       email,
		TrialStart:  now,
		DailyUses:   quota.DefaultDailyAllowance,
		LastUseDate: now,
		CreatedAt:   now,
	}, nil
}

func (s *SQLiteAccounts) Get(ctx context.Context, id int64) (*domain.Account, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT id, email, trial_start, daily_uses, last_use_date, subscribed, created_at
		 FROM accounts WHERE id = ?`, id))
}

func (s *SQLiteAccounts) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT id, email, trial_start, daily_uses, last_use_date, subscribed, created_at
		 FROM accounts WHERE email = ?`, email))
}

func (s *SQLiteAccounts) UpdateAccount(ctx context.Context, accountID int64, apply func(*domain.Account) error) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer tx.Rollback()

	a, err := s.scanOne(tx.QueryRowContext(ctx,
		`SELECT id, email, trial_start, daily_uses, last_use_date, subscribed, created_at
		 FROM accounts WHERE id = ?`, accountID))
	if err != nil {
		return nil, err
	}

	if err := apply(a); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE accounts SET daily_uses = ?, last_use_date = ?, subscribed = ? WHERE id = ?`,
		a.DailyUses, a.LastUseDate, a.Subscribed, a.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (s *SQLiteAccounts) scanOne(row *sql.Row) (*domain.Account, error) {
	a := &domain.Account{}
	err := row.Scan(&a.ID, &a.Email, &a.TrialStart, &a.DailyUses, &a.LastUseDate, &a.Subscribed, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
