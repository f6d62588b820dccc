package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/fgb-andu/muse-api/internal/metrics"
	"github.com/fgb-andu/muse-api/pkg/domain"
	"github.com/fgb-andu/muse-api/pkg/service/render"
)

type GenerateRequest struct {
	MediaType   domain.MediaType `json:"media_type"`
	Description string           `json:"description"`
	Width       int              `json:"width,omitempty"`
	Height      int              `json:"height,omitempty"`
}

type GenerateResponse struct {
	FileURL   string `json:"file_url"`
	Remaining *int   `json:"remaining,omitempty"`
}

// HandleAdjust renders a watermarked preview. It never touches the quota
// ledger and is open to anonymous callers; the artifact is recorded as
// non-final with a nullable owner.
func (h *Handler) HandleAdjust(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	result, err := h.renderer.Render(render.Request{
		MediaType:   req.MediaType,
		Description: req.Description,
		Preview:     true,
		Width:       req.Width,
		Height:      req.Height,
	})
	if err != nil {
		h.logger.Error("render preview", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Rendering failed")
		return
	}

	filename := uuid.NewString() + "_preview" + result.Ext
	if err := writeFile(filepath.Join(h.uploadDir, filename), result.Data); err != nil {
		h.logger.Error("write preview", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Storage failure")
		return
	}

	artifact := &domain.Artifact{
		MediaType:   req.MediaType,
		Description: req.Description,
		FilePath:    filename,
	}
	if id := identityFrom(r); id.Authenticated() {
		artifact.AccountID = &id.AccountID
	}
	if err := h.artifacts.Create(r.Context(), artifact); err != nil {
		os.Remove(filepath.Join(h.uploadDir, filename))
		h.logger.Error("record preview", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Storage failure")
		return
	}

	metrics.ArtifactsRendered.WithLabelValues(string(req.MediaType), "false").Inc()
	respondWithJSON(w, http.StatusOK, GenerateResponse{FileURL: h.baseURL + "/uploads/" + filename})
}

// HandleGenerate renders a final artifact for an authenticated account.
// The quota decrement and the artifact record form one logical unit: a
// denial writes nothing, and a storage failure refunds the decrement.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if !id.Authenticated() {
		respondWithError(w, http.StatusForbidden, "Login required to generate final content")
		return
	}

	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	result, err := h.renderer.Render(render.Request{
		MediaType:   req.MediaType,
		Description: req.Description,
		Width:       req.Width,
		Height:      req.Height,
	})
	if err != nil {
		h.logger.Error("render artifact", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Rendering failed")
		return
	}

	remaining, err := h.engine.Consume(r.Context(), id)
	metrics.ConsumeOutcomes.WithLabelValues(consumeOutcome(err)).Inc()
	if err != nil {
		h.respondQuotaError(w, err)
		return
	}

	relPath := filepath.Join(strconv.FormatInt(id.AccountID, 10), string(req.MediaType), uuid.NewString()+result.Ext)
	fullPath := filepath.Join(h.worksDir, relPath)
	if err := writeFile(fullPath, result.Data); err != nil {
		h.refund(r, id)
		h.logger.Error("write artifact", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Storage failure")
		return
	}

	artifact := &domain.Artifact{
		AccountID:   &id.AccountID,
		MediaType:   req.MediaType,
		Description: req.Description,
		FilePath:    filepath.ToSlash(relPath),
		Final:       true,
	}
	if err := h.artifacts.Create(r.Context(), artifact); err != nil {
		os.Remove(fullPath)
		h.refund(r, id)
		h.logger.Error("record artifact", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Storage failure")
		return
	}

	metrics.ArtifactsRendered.WithLabelValues(string(req.MediaType), "true").Inc()
	respondWithJSON(w, http.StatusOK, GenerateResponse{
		FileURL:   h.baseURL + "/works/" + artifact.FilePath,
		Remaining: &remaining,
	})
}

type WorkItem struct {
	ID          int64            `json:"id"`
	MediaType   domain.MediaType `json:"media_type"`
	Description string           `json:"description"`
	FileURL     string           `json:"file_url"`
}

type MyWorksResponse struct {
	Works []WorkItem `json:"works"`
}

func (h *Handler) HandleMyWorks(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	if !id.Authenticated() {
		respondWithError(w, http.StatusUnauthorized, "Login required")
		return
	}

	artifacts, err := h.artifacts.ListFinal(r.Context(), id.AccountID)
	if err != nil {
		h.logger.Error("list works", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	works := make([]WorkItem, 0, len(artifacts))
	for _, a := range artifacts {
		works = append(works, WorkItem{
			ID:          a.ID,
			MediaType:   a.MediaType,
			Description: a.Description,
			FileURL:     h.baseURL + "/works/" + a.FilePath,
		})
	}
	respondWithJSON(w, http.StatusOK, MyWorksResponse{Works: works})
}

func decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (GenerateRequest, bool) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	if req.Description == "" {
		respondWithError(w, http.StatusBadRequest, "description is required")
		return req, false
	}
	if !domain.ValidMediaType(req.MediaType) {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("media_type must be %q or %q", domain.MediaTypeImage, domain.MediaTypeAudio))
		return req, false
	}
	return req, true
}

func (h *Handler) refund(r *http.Request, id domain.Identity) {
	if err := h.engine.Refund(r.Context(), id); err != nil {
		h.logger.Error("refund quota", "error", err, "account_id", id.AccountID)
	}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
