package settings

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"selflearning/apps/worker/internal/middleware"
)

// Handler serves the embedding settings. The API key never leaves masked.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, logger: slog.With("component", "settings_handler")}
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	s, err := h.svc.Get(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load embedding settings", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to load settings", http.StatusInternalServerError)
		return
	}
	h.writeSettings(ctx, w, s)
}

// UpdateSettings applies a partial update. Sending back the masked key from
// GET keeps the stored key.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var p Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid request body", http.StatusBadRequest)
		return
	}

	s, err := h.svc.Update(ctx, p)
	if err != nil {
		if errors.Is(err, ErrInvalidSettings) {
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(ctx, "failed to update embedding settings", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to update settings", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "embedding settings updated",
		"embedding_model", s.EmbeddingModel, "key_source", s.KeySource)
	h.writeSettings(ctx, w, s)
}

func (h *Handler) writeSettings(ctx context.Context, w http.ResponseWriter, s *Settings) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": s.Masked()}); err != nil {
		h.logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}
