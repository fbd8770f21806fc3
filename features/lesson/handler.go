package lesson

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"selflearning/apps/worker/internal/middleware"
	"selflearning/apps/worker/internal/retrieval"
)

type Retriever interface {
	Retrieve(ctx context.Context, lessonID, question string, topK int) (*retrieval.Context, error)
}

type Handler struct {
	retriever Retriever
}

func NewHandler(r Retriever) *Handler {
	return &Handler{retriever: r}
}

// Context answers GET /lessons/{id}/context?q=...&k=... with the lesson
// chunks closest to the question.
func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lessonID := r.PathValue("id")
	q := r.URL.Query()

	topK := 0
	if raw := q.Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k < 1 {
			h.writeError(ctx, w, "VALIDATION_ERROR", "k must be a positive integer", http.StatusBadRequest)
			return
		}
		topK = k
	}

	out, err := h.retriever.Retrieve(ctx, lessonID, q.Get("q"), topK)
	if err != nil {
		if errors.Is(err, retrieval.ErrEmptyQuestion) {
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "failed to retrieve lesson context", "lesson_id", lessonID, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to retrieve lesson context", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": out}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
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
		slog.Error("failed to encode error response", "error", err)
	}
}
