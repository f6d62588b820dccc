// Package contentstore records generated artifacts and their ownership.
package contentstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/fgb-andu/muse-api/pkg/domain"
)

// Store persists artifact records. Previews are recorded too; only final
// artifacts appear in an account's works listing.
type Store interface {
	Create(ctx context.Context, a *domain.Artifact) error
	ListFinal(ctx context.Context, accountID int64) ([]domain.Artifact, error)
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Create(ctx context.Context, a *domain.Artifact) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO artifacts (account_id, media_type, description, file_path, is_final, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, query, a.AccountID, a.MediaType, a.Description, a.FilePath, a.Final, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	a.ID = id
	return nil
}

func (s *SQLiteStore) ListFinal(ctx context.Context, accountID int64) ([]domain.Artifact, error) {
	query := `SELECT id, account_id, media_type, description, file_path, is_final, created_at
	          FROM artifacts WHERE account_id = ? AND is_final = 1
	          ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []domain.Artifact
	for rows.Next() {
		var a domain.Artifact
		if err := rows.Scan(&a.ID, &a.AccountID, &a.MediaType, &a.Description, &a.FilePath, &a.Final, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// MemoryStore is the in-process Store used in tests.
type MemoryStore struct {
	mu        sync.Mutex
	artifacts []domain.Artifact
	nextID    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Create(ctx context.Context, a *domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.ID = s.nextID
	s.nextID++
	s.artifacts = append(s.artifacts, *a)
	return nil
}

func (s *MemoryStore) ListFinal(ctx context.Context, accountID int64) ([]domain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Artifact
	for i := len(s.artifacts) - 1; i >= 0; i-- {
		a := s.artifacts[i]
		if a.Final && a.AccountID != nil && *a.AccountID == accountID {
			out = append(out, a)
		}
	}
	return out, nil
}
