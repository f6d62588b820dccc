// Package sessiontoken issues and verifies the signed cookie tokens that
// carry a caller's identity between requests.
package sessiontoken

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

const (
	KindAccount = "account"
	KindVisitor = "visitor"
)

var ErrInvalidToken = errors.New("invalid session token")

// Claims is what a session cookie carries: the token kind plus either an
// account id or an anonymous session id in the subject.
type Claims struct {
	Kind    string
	Subject string
}

type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("session secret must not be empty")
	}
	return &Signer{secret: []byte(secret), ttl: ttl}, nil
}

// IssueAccount signs a token for a registered account.
func (s *Signer) IssueAccount(accountID int64) (string, error) {
	return s.issue(KindAccount, strconv.FormatInt(accountID, 10))
}

// IssueVisitor signs a token for an anonymous session id.
func (s *Signer) IssueVisitor(sessionID string) (string, error) {
	return s.issue(KindVisitor, sessionID)
}

func (s *Signer) issue(kind, subject string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"kind": kind,
		"sub":  subject,
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry and returns the claims.
func (s *Signer) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.NewValidationError("unexpected signing method", jwt.ValidationErrorSignatureInvalid)
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	kind, _ := claims["kind"].(string)
	subject, _ := claims["sub"].(string)
	if (kind != KindAccount && kind != KindVisitor) || subject == "" {
		return nil, ErrInvalidToken
	}
	return &Claims{Kind: kind, Subject: subject}, nil
}

// AccountID parses the subject of an account token.
func (c *Claims) AccountID() (int64, error) {
	if c.Kind != KindAccount {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}
