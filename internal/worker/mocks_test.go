package worker_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"selflearning/apps/worker/features/lesson"
	"selflearning/apps/worker/internal/worker"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockVectorStore struct{ mock.Mock }

func (m *MockVectorStore) StoreChunk(ctx context.Context, chunk worker.Chunk) error {
	return m.Called(ctx, chunk).Error(0)
}

func (m *MockVectorStore) DeleteLessonChunks(ctx context.Context, lessonID string) error {
	return m.Called(ctx, lessonID).Error(0)
}

type MockLessonSource struct{ mock.Mock }

func (m *MockLessonSource) GetLesson(ctx context.Context, lessonID string) (*lesson.Lesson, error) {
	args := m.Called(ctx, lessonID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lesson.Lesson), args.Error(1)
}

type countingTrigger struct {
	mu sync.Mutex
	n  int
}

func (c *countingTrigger) Trigger() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingTrigger) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
