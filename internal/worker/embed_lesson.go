package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"selflearning/apps/worker/internal/text"
)

const DefaultEmbedTimeout = 60 * time.Second

var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrNoChunks       = errors.New("no content chunks were created, check lesson content")
)

// EmbedResult is returned by embedLesson jobs.
type EmbedResult struct {
	LessonID      string `json:"lesson_id"`
	ChunksCreated int    `json:"chunks_created"`
}

// LessonEmbedder replaces the stored vectors of a lesson with freshly
// embedded chunks of its article content.
type LessonEmbedder struct {
	source       LessonSource
	embedder     Embedder
	store        VectorStore
	chunking     text.Options
	embedTimeout time.Duration
}

func NewLessonEmbedder(source LessonSource, e Embedder, s VectorStore, chunking text.Options) *LessonEmbedder {
	return &LessonEmbedder{
		source:       source,
		embedder:     e,
		store:        s,
		chunking:     chunking,
		embedTimeout: DefaultEmbedTimeout,
	}
}

func (h *LessonEmbedder) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	p, err := decodeLessonPayload(payload)
	if err != nil {
		return nil, err
	}

	l, err := h.source.GetLesson(ctx, p.LessonID)
	if err != nil {
		return nil, err
	}

	// Re-embedding must not leave stale chunks behind.
	if err := h.store.DeleteLessonChunks(ctx, l.ID); err != nil {
		return nil, err
	}

	index := 0
	for _, article := range l.Articles {
		for _, content := range text.Chunk(article, h.chunking) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := h.embedChunk(ctx, Chunk{
				LessonID:    l.ID,
				LessonTitle: l.Title,
				Content:     content,
				ChunkIndex:  index,
				SourceType:  "article",
			}); err != nil {
				return nil, err
			}
			index++
		}
	}

	if index == 0 {
		return nil, ErrNoChunks
	}

	slog.InfoContext(ctx, "lesson embedded", "lesson_id", l.ID, "chunks_created", index)
	return json.Marshal(EmbedResult{LessonID: l.ID, ChunksCreated: index})
}

func (h *LessonEmbedder) embedChunk(ctx context.Context, chunk Chunk) error {
	embedCtx, cancel := context.WithTimeout(ctx, h.embedTimeout)
	defer cancel()

	vector, err := h.embedder.Embed(embedCtx, contextualize(chunk))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err, "lesson_id", chunk.LessonID, "chunk_index", chunk.ChunkIndex)
		return fmt.Errorf("embed chunk %d: %w", chunk.ChunkIndex, err)
	}
	chunk.Vector = vector

	return h.store.StoreChunk(embedCtx, chunk)
}

// contextualize prefixes a chunk with its lesson metadata so the embedding
// carries the lesson context:
//
//	Title: <lesson title>
//	Lesson: <lesson id>
//	Type: <source type>
//	---
//	<chunk content>
func contextualize(c Chunk) string {
	return fmt.Sprintf("Title: %s\nLesson: %s\nType: %s\n---\n%s", c.LessonTitle, c.LessonID, c.SourceType, c.Content)
}

func decodeLessonPayload(payload json.RawMessage) (LessonPayload, error) {
	var p LessonPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.LessonID == "" {
		return p, fmt.Errorf("%w: lesson_id is required", ErrInvalidPayload)
	}
	return p, nil
}
