package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"selflearning/apps/worker/features/job"
	"selflearning/apps/worker/internal/pool"
)

type MockJobCounter struct{ mock.Mock }

func (m *MockJobCounter) Counts(ctx context.Context) (job.Counts, error) {
	args := m.Called(ctx)
	return args.Get(0).(job.Counts), args.Error(1)
}

type MockChunkCounter struct{ mock.Mock }

func (m *MockChunkCounter) CountChunks(ctx context.Context, lessonID string) (int, error) {
	args := m.Called(ctx, lessonID)
	return args.Int(0), args.Error(1)
}

type fixedPools map[pool.Category]*pool.Stats

func (f fixedPools) Stats() map[pool.Category]*pool.Stats { return f }

func TestHandler_GetStats_Table(t *testing.T) {
	tests := []struct {
		name       string
		pools      PoolStats
		setupMocks func(*MockJobCounter, *MockChunkCounter)
		wantStatus int
		checkBody  func(*testing.T, map[string]interface{})
	}{
		{
			name: "Success",
			pools: fixedPools{
				pool.CategoryEmbedding: {Total: 2, Busy: 1, Idle: 1, MinWorkers: 1, MaxWorkers: 4},
				pool.CategoryGeneral:   nil,
			},
			setupMocks: func(j *MockJobCounter, c *MockChunkCounter) {
				j.On("Counts", mock.Anything).Return(job.Counts{Queued: 4, Failed: 2, Dead: 1}, nil)
				c.On("CountChunks", mock.Anything, "").Return(100, nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				jobs := data["jobs"].(map[string]interface{})
				assert.EqualValues(t, 4, jobs["queued"])
				assert.EqualValues(t, 2, jobs["failed"])
				assert.EqualValues(t, 1, jobs["dead"])
				assert.EqualValues(t, 100, data["chunks"])

				pools := data["pools"].(map[string]interface{})
				embedding := pools["embedding"].(map[string]interface{})
				assert.EqualValues(t, 1, embedding["busy"])
				assert.Nil(t, pools["general"])
			},
		},
		{
			name: "APIOnlyProcess",
			setupMocks: func(j *MockJobCounter, c *MockChunkCounter) {
				j.On("Counts", mock.Anything).Return(job.Counts{}, nil)
				c.On("CountChunks", mock.Anything, "").Return(0, nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				_, ok := data["pools"]
				assert.False(t, ok)
			},
		},
		{
			name: "JobCountError",
			setupMocks: func(j *MockJobCounter, c *MockChunkCounter) {
				j.On("Counts", mock.Anything).Return(job.Counts{}, errors.New("db down"))
			},
			wantStatus: http.StatusInternalServerError,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				errObj := body["error"].(map[string]interface{})
				assert.Equal(t, "INTERNAL_ERROR", errObj["code"])
				assert.Equal(t, "failed to count jobs", errObj["message"])
			},
		},
		{
			name: "ChunkCountError",
			setupMocks: func(j *MockJobCounter, c *MockChunkCounter) {
				j.On("Counts", mock.Anything).Return(job.Counts{}, nil)
				c.On("CountChunks", mock.Anything, "").Return(0, errors.New("weaviate down"))
			},
			wantStatus: http.StatusInternalServerError,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				errObj := body["error"].(map[string]interface{})
				assert.Equal(t, "failed to count chunks", errObj["message"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := new(MockJobCounter)
			chunks := new(MockChunkCounter)
			tt.setupMocks(jobs, chunks)

			h := NewHandler(jobs, tt.pools, chunks)
			w := httptest.NewRecorder()
			h.GetStats(w, httptest.NewRequest(http.MethodGet, "/stats", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			tt.checkBody(t, body)

			jobs.AssertExpectations(t)
			chunks.AssertExpectations(t)
		})
	}
}
