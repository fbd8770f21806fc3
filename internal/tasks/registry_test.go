package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selflearning/apps/worker/internal/pool"
	"selflearning/apps/worker/internal/tasks"
)

func echo() tasks.Handler {
	return tasks.HandlerFunc(func(_ context.Context, payload json.RawMessage) (json.RawMessage, error) {
		return payload, nil
	})
}

func TestRegistry_Register(t *testing.T) {
	r := tasks.NewRegistry()
	require.NoError(t, r.Register("embedLesson", pool.CategoryEmbedding, echo()))

	err := r.Register("embedLesson", pool.CategoryGeneral, echo())
	assert.ErrorIs(t, err, tasks.ErrDuplicateType)

	assert.Error(t, r.Register("", pool.CategoryGeneral, echo()))
	assert.Error(t, r.Register("noop", pool.CategoryGeneral, nil))
}

func TestRegistry_Lookup(t *testing.T) {
	r := tasks.NewRegistry()
	require.NoError(t, r.Register("removeLesson", pool.CategoryEmbedding, echo()))
	require.NoError(t, r.Register("helloWorld", pool.CategoryGeneral, echo()))

	assert.True(t, r.Has("helloWorld"))
	assert.False(t, r.Has("renderVideo"))

	assert.Equal(t, pool.CategoryEmbedding, r.CategoryFor("removeLesson"))
	assert.Equal(t, pool.CategoryGeneral, r.CategoryFor("helloWorld"))
	assert.Equal(t, pool.CategoryGeneral, r.CategoryFor("renderVideo"))

	assert.Equal(t, []string{"helloWorld", "removeLesson"}, r.Types())
}

func TestRegistry_Execute(t *testing.T) {
	r := tasks.NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, r.Register("echo", pool.CategoryGeneral, echo()))
	require.NoError(t, r.Register("fail", pool.CategoryGeneral, tasks.HandlerFunc(func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, boom
	})))

	tests := []struct {
		name    string
		task    pool.Task
		want    string
		wantErr error
	}{
		{name: "Registered", task: pool.Task{JobID: "J1", Type: "echo", Payload: json.RawMessage(`{"a":1}`)}, want: `{"a":1}`},
		{name: "HandlerError", task: pool.Task{JobID: "J2", Type: "fail"}, wantErr: boom},
		{name: "Unknown", task: pool.Task{JobID: "J3", Type: "renderVideo"}, wantErr: tasks.ErrUnknownJobType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Execute(context.Background(), tt.task)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestRegistry_RunsOnManager(t *testing.T) {
	r := tasks.NewRegistry()
	require.NoError(t, r.Register("embedLesson", pool.CategoryEmbedding, echo()))

	m := pool.NewManager(r, map[pool.Category]pool.Config{
		pool.CategoryEmbedding: {MinWorkers: 1, MaxWorkers: 1},
		pool.CategoryGeneral:   {MinWorkers: 0, MaxWorkers: 1},
	}, r.CategoryFor)
	defer func() { _ = m.Terminate(context.Background()) }()

	out, err := m.RunTask(context.Background(), pool.Task{JobID: "J1", Type: "embedLesson", Payload: json.RawMessage(`{"lesson_id":"L1"}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"lesson_id":"L1"}`, string(out))

	stats := m.Stats()
	assert.NotNil(t, stats[pool.CategoryEmbedding])
	assert.Nil(t, stats[pool.CategoryGeneral])
}
