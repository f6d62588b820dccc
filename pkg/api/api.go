// Package api exposes the HTTP surface: account registration and login,
// quota consumption, preview and final generation, works listing, and
// static serving of generated files.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fgb-andu/muse-api/internal/metrics"
	"github.com/fgb-andu/muse-api/internal/sessiontoken"
	"github.com/fgb-andu/muse-api/pkg/domain"
	"github.com/fgb-andu/muse-api/pkg/quota"
	"github.com/fgb-andu/muse-api/pkg/repository/contentstore"
	"github.com/fgb-andu/muse-api/pkg/repository/ledger"
	"github.com/fgb-andu/muse-api/pkg/service/render"
	"github.com/fgb-andu/muse-api/pkg/service/translate"
)

type Handler struct {
	accounts   ledger.Accounts
	engine     *quota.Engine
	artifacts  contentstore.Store
	renderer   render.Renderer
	translator translate.Service
	signer     *sessiontoken.Signer
	logger     *slog.Logger

	uploadDir  string
	worksDir   string
	baseURL    string
	sessionTTL time.Duration
}

type Config struct {
	UploadDir  string
	WorksDir   string
	BaseURL    string
	SessionTTL time.Duration
}

func NewHandler(
	accounts ledger.Accounts,
	engine *quota.Engine,
	artifacts contentstore.Store,
	renderer render.Renderer,
	translator translate.Service,
	signer *sessiontoken.Signer,
	logger *slog.Logger,
	cfg Config,
) *Handler {
	return &Handler{
		accounts:   accounts,
		engine:     engine,
		artifacts:  artifacts,
		renderer:   renderer,
		translator: translator,
		signer:     signer,
		logger:     logger,
		uploadDir:  cfg.UploadDir,
		worksDir:   cfg.WorksDir,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		sessionTTL: cfg.SessionTTL,
	}
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.withIdentity)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.HandleRegister)
		r.Post("/login", h.HandleLogin)
		r.Post("/logout", h.HandleLogout)
		r.Post("/subscribe", h.HandleSubscribe)

		r.Post("/use", h.HandleUse)
		r.Get("/trial", h.HandleTrial)

		r.Post("/adjust", h.HandleAdjust)
		r.Post("/generate", h.HandleGenerate)
		r.Get("/my-works", h.HandleMyWorks)

		r.Post("/translate", h.HandleTranslate)
	})

	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.uploadDir))))
	r.Handle("/works/*", http.StripPrefix("/works/", http.FileServer(http.Dir(h.worksDir))))
	r.Handle("/metrics", metrics.Handler())

	return r
}

type AuthRequest struct {
	Email string `json:"email"`
}

type AuthResponse struct {
	Message string          `json:"message"`
	Account *domain.Account `json:"account,omitempty"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validEmail(req.Email) {
		respondWithError(w, http.StatusBadRequest, "A valid email is required")
		return
	}

	account, err := h.accounts.Create(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmailTaken):
			respondWithError(w, http.StatusBadRequest, "Email already registered")
		default:
			h.logger.Error("create account", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	if err := h.startAccountSession(w, account.ID); err != nil {
		h.logger.Error("issue account token", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, AuthResponse{Message: "Registration successful", Account: account})
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" {
		respondWithError(w, http.StatusBadRequest, "email is required")
		return
	}

	account, err := h.accounts.GetByEmail(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAccountNotFound):
			respondWithError(w, http.StatusNotFound, "Account not found")
		default:
			h.logger.Error("login lookup", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	if err := h.startAccountSession(w, account.ID); err != nil {
		h.logger.Error("issue account token", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, AuthResponse{Message: "Login successful", Account: account})
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if !identityFrom(r).Authenticated() {
		respondWithError(w, http.StatusUnauthorized, "Login required")
		return
	}
	h.clearSessionCookie(w)
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

type SubscribeRequest struct {
	Subscribed bool `json:"subscribed"`
}

// HandleSubscribe flips the opaque subscription flag. Payment processing
// happens elsewhere; this is the hook that external system calls.
func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if !id.Authenticated() {
		respondWithError(w, http.StatusUnauthorized, "Login required")
		return
	}

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	_, err := h.accounts.UpdateAccount(r.Context(), id.AccountID, func(a *domain.Account) error {
		a.Subscribed = req.Subscribed
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAccountNotFound):
			respondWithError(w, http.StatusNotFound, "Account not found")
		default:
			h.logger.Error("update subscription", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Subscription updated"})
}

type UseResponse struct {
	Message   string `json:"message"`
	Remaining int    `json:"remaining"`
}

func (h *Handler) HandleUse(w http.ResponseWriter, r *http.Request) {
	remaining, err := h.engine.Consume(r.Context(), identityFrom(r))
	metrics.ConsumeOutcomes.WithLabelValues(consumeOutcome(err)).Inc()
	if err != nil {
		h.respondQuotaError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, UseResponse{Message: "Use recorded", Remaining: remaining})
}

func (h *Handler) HandleTrial(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if id.Authenticated() {
		respondWithError(w, http.StatusBadRequest, "Registered accounts have a daily allowance, not a trial counter")
		return
	}

	remaining, err := h.engine.TrialRemaining(r.Context(), id)
	if err != nil {
		h.respondQuotaError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, UseResponse{Message: "Trial status", Remaining: remaining})
}

type TranslateRequest struct {
	Text       string `json:"text"`
	TargetLang string `json:"target_lang"`
}

type TranslateResponse struct {
	Translation string `json:"translation"`
}

func (h *Handler) HandleTranslate(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Text == "" || req.TargetLang == "" {
		respondWithError(w, http.StatusBadRequest, "text and target_lang are required")
		return
	}

	translation, err := h.translator.Translate(r.Context(), req.Text, req.TargetLang)
	if err != nil {
		h.logger.Error("translate", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Translation failed")
		return
	}
	respondWithJSON(w, http.StatusOK, TranslateResponse{Translation: translation})
}

func (h *Handler) startAccountSession(w http.ResponseWriter, accountID int64) error {
	token, err := h.signer.IssueAccount(accountID)
	if err != nil {
		return err
	}
	h.setSessionCookie(w, token)
	return nil
}

func (h *Handler) respondQuotaError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTrialExpired):
		respondWithError(w, http.StatusForbidden, "Trial period expired, please subscribe")
	case errors.Is(err, domain.ErrDailyLimitReached):
		respondWithError(w, http.StatusForbidden, "Daily usage limit reached")
	case errors.Is(err, domain.ErrTrialLimitReached):
		respondWithError(w, http.StatusForbidden, "Trial uses exhausted, please register")
	case errors.Is(err, domain.ErrOriginMismatch):
		respondWithError(w, http.StatusForbidden, "Trial session is bound to a different network origin")
	case errors.Is(err, domain.ErrAccountNotFound):
		respondWithError(w, http.StatusNotFound, "Account not found")
	default:
		h.logger.Error("quota consume", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func consumeOutcome(err error) string {
	switch {
	case err == nil:
		return "allowed"
	case errors.Is(err, domain.ErrTrialExpired):
		return "trial_expired"
	case errors.Is(err, domain.ErrDailyLimitReached):
		return "daily_limit"
	case errors.Is(err, domain.ErrTrialLimitReached):
		return "trial_limit"
	case errors.Is(err, domain.ErrOriginMismatch):
		return "origin_mismatch"
	default:
		return "error"
	}
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && len(email) <= 120
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorResponse{Error: message})
}
