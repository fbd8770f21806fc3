package worker

import (
	"context"
	"encoding/json"
	"log/slog"
)

// LessonRemover deletes every stored chunk of a lesson.
type LessonRemover struct {
	store VectorStore
}

func NewLessonRemover(s VectorStore) *LessonRemover {
	return &LessonRemover{store: s}
}

func (h *LessonRemover) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	p, err := decodeLessonPayload(payload)
	if err != nil {
		return nil, err
	}
	if err := h.store.DeleteLessonChunks(ctx, p.LessonID); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "lesson chunks removed", "lesson_id", p.LessonID)
	return json.Marshal(map[string]string{"lesson_id": p.LessonID})
}
