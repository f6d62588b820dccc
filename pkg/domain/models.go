package domain

import (
	"errors"
	"time"
)

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeAudio MediaType = "audio"
)

// ValidMediaType reports whether t is one of the renderable media types.
func ValidMediaType(t MediaType) bool {
	return t == MediaTypeImage || t == MediaTypeAudio
}

// Account is a registered, email-identified user with persistent quota state.
// DailyUses is the allowance remaining for the calendar day of LastUseDate;
// it is reset lazily on the first consume observed on a new day.
type Account struct {
	ID          int64     `json:"id" db:"id"`
	Email       string    `json:"email" db:"email"`
	TrialStart  time.Time `json:"trial_start" db:"trial_start"`
	DailyUses   int       `json:"daily_uses" db:"daily_uses"`
	LastUseDate time.Time `json:"last_use_date" db:"last_use_date"`
	Subscribed  bool      `json:"subscribed" db:"subscribed"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// VisitorTrial is the session-scoped counter for unauthenticated callers.
// BoundOrigin is the network address observed when the counter was created;
// a request from a different origin is denied without touching Count.
type VisitorTrial struct {
	SessionID   string `json:"session_id"`
	Count       int    `json:"count"`
	BoundOrigin string `json:"bound_origin"`
}

// Artifact is a generated piece of content. Previews (Final=false) have no
// quota cost and never appear in an account's works listing.
type Artifact struct {
	ID          int64     `json:"id" db:"id"`
	AccountID   *int64    `json:"account_id,omitempty" db:"account_id"`
	MediaType   MediaType `json:"media_type" db:"media_type"`
	Description string    `json:"description" db:"description"`
	FilePath    string    `json:"file_path" db:"file_path"`
	Final       bool      `json:"is_final" db:"is_final"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Identity is the resolved caller of a request: either an authenticated
// account (AccountID != 0) or an anonymous visitor tracked by SessionID.
type Identity struct {
	AccountID int64
	SessionID string
	Origin    string
}

func (i Identity) Authenticated() bool { return i.AccountID != 0 }

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")

	// Quota denial reasons. The API layer maps each to a 403 with a
	// reason-specific message.
	ErrTrialExpired      = errors.New("trial period expired")
	ErrDailyLimitReached = errors.New("daily limit reached")
	ErrTrialLimitReached = errors.New("trial uses exhausted")
	ErrOriginMismatch    = errors.New("trial bound to a different origin")
)
