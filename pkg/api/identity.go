package api

import (
	"context"
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/fgb-andu/muse-api/internal/sessiontoken"
	"github.com/fgb-andu/muse-api/pkg/domain"
)

const sessionCookie = "muse_session"

type ctxKey int

const identityKey ctxKey = iota

// withIdentity resolves every request to an Identity. A valid account cookie
// yields an authenticated identity; anything else (no cookie, expired,
// tampered) yields an anonymous one, minting a fresh session id and setting
// the cookie on the response.
func (h *Handler) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := h.resolveIdentity(w, r)
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) resolveIdentity(w http.ResponseWriter, r *http.Request) domain.Identity {
	origin := originAddress(r)

	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if claims, err := h.signer.Parse(cookie.Value); err == nil {
			switch claims.Kind {
			case sessiontoken.KindAccount:
				if accountID, err := claims.AccountID(); err == nil {
					return domain.Identity{AccountID: accountID, Origin: origin}
				}
			case sessiontoken.KindVisitor:
				return domain.Identity{SessionID: claims.Subject, Origin: origin}
			}
		}
	}

	sessionID := uuid.NewString()
	if token, err := h.signer.IssueVisitor(sessionID); err == nil {
		h.setSessionCookie(w, token)
	} else {
		h.logger.Error("issue visitor token", "error", err)
	}
	return domain.Identity{SessionID: sessionID, Origin: origin}
}

func identityFrom(r *http.Request) domain.Identity {
	id, _ := r.Context().Value(identityKey).(domain.Identity)
	return id
}

// originAddress is the caller's network address with any port stripped.
// middleware.RealIP has already folded proxy headers into RemoteAddr.
func originAddress(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
