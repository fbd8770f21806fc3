package pool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCategories() map[Category]Config {
	return map[Category]Config{
		CategoryEmbedding: {MinWorkers: 1, MaxWorkers: 4},
		CategoryGeneral:   {MinWorkers: 2, MaxWorkers: 6},
	}
}

func routeByType(jobType string) Category {
	if jobType == "embedLesson" {
		return CategoryEmbedding
	}
	return CategoryGeneral
}

func TestManager_LazyConstruction(t *testing.T) {
	m := NewManager(echo(), testCategories(), routeByType)
	defer func() { _ = m.Terminate(context.Background()) }()

	stats := m.Stats()
	require.Len(t, stats, 2)
	assert.Nil(t, stats[CategoryEmbedding])
	assert.Nil(t, stats[CategoryGeneral])

	p1, err := m.Pool(CategoryEmbedding)
	require.NoError(t, err)
	p2, err := m.Pool(CategoryEmbedding)
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	stats = m.Stats()
	require.NotNil(t, stats[CategoryEmbedding])
	assert.Equal(t, 1, stats[CategoryEmbedding].Total)
	assert.Nil(t, stats[CategoryGeneral])
}

func TestManager_UnknownCategory(t *testing.T) {
	m := NewManager(echo(), testCategories(), routeByType)

	_, err := m.Pool("video")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestManager_RunTaskRoutesByType(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, task Task) (json.RawMessage, error) {
		return json.RawMessage(`"` + task.Type + `"`), nil
	})
	m := NewManager(exec, testCategories(), routeByType)
	defer func() { _ = m.Terminate(context.Background()) }()

	out, err := m.RunTask(context.Background(), Task{JobID: "j1", Type: "embedLesson"})
	require.NoError(t, err)
	assert.Equal(t, `"embedLesson"`, string(out))

	stats := m.Stats()
	assert.NotNil(t, stats[CategoryEmbedding])
	assert.Nil(t, stats[CategoryGeneral])

	_, err = m.RunTask(context.Background(), Task{JobID: "j2", Type: "sendDigest"})
	require.NoError(t, err)
	assert.NotNil(t, m.Stats()[CategoryGeneral])
}

func TestManager_DefaultRouteIsGeneral(t *testing.T) {
	m := NewManager(echo(), testCategories(), nil)
	defer func() { _ = m.Terminate(context.Background()) }()

	_, err := m.RunTask(context.Background(), Task{JobID: "j1", Type: "embedLesson"})
	require.NoError(t, err)
	assert.Nil(t, m.Stats()[CategoryEmbedding])
	assert.NotNil(t, m.Stats()[CategoryGeneral])
}

func TestManager_TerminateClearsPools(t *testing.T) {
	m := NewManager(echo(), testCategories(), routeByType)

	p, err := m.Pool(CategoryGeneral)
	require.NoError(t, err)

	require.NoError(t, m.Terminate(context.Background()))
	require.NoError(t, m.Terminate(context.Background()))

	assert.Nil(t, m.Stats()[CategoryGeneral])
	assert.Equal(t, 0, p.Stats().Total)

	_, err = p.RunTask(context.Background(), Task{JobID: "late"})
	assert.ErrorIs(t, err, ErrPoolClosed)

	fresh, err := m.Pool(CategoryGeneral)
	require.NoError(t, err)
	assert.NotSame(t, p, fresh)
	_ = m.Terminate(context.Background())
}
