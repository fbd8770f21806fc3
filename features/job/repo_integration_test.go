package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selflearning/apps/worker/features/job"
	"selflearning/apps/worker/internal/events"
	"selflearning/apps/worker/internal/orchestrator"
	"selflearning/apps/worker/internal/pool"
	"selflearning/apps/worker/internal/testutils"
)

func TestJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.SetupPostgres()
	defer s.Teardown()

	repo := job.NewPostgresRepo(s.DB, 2)
	ctx := context.Background()

	// 1. Enqueue keeps FIFO order
	var ids []string
	for i := 0; i < 3; i++ {
		j, err := repo.Enqueue(ctx, "helloWorld", json.RawMessage(`{"msg":"x"}`))
		require.NoError(t, err)
		assert.NotEmpty(t, j.ID)
		assert.Equal(t, job.StatusQueued, j.Status)
		assert.Equal(t, 0, j.Attempts)
		ids = append(ids, j.ID)
		time.Sleep(10 * time.Millisecond)
	}

	batch, err := repo.FetchBatch(ctx, 2, nil)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, ids[0], batch[0].ID, "oldest job first")
	assert.Equal(t, ids[1], batch[1].ID)
	assert.JSONEq(t, `{"msg":"x"}`, string(batch[0].Payload))

	// 2. Exclusion skips jobs already attempted in this drain
	batch, err = repo.FetchBatch(ctx, 10, []string{ids[0], ids[1]})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, ids[2], batch[0].ID)

	// 3. Commit deletes completed and marks failures
	require.NoError(t, repo.CommitBatch(ctx, []string{ids[0]}, []job.Failure{{ID: ids[1], Cause: "boom"}}))

	_, err = repo.Get(ctx, ids[0])
	assert.ErrorIs(t, err, job.ErrNotFound)

	failed, err := repo.Get(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, failed.Status)
	assert.Equal(t, 1, failed.Attempts)
	assert.Equal(t, "boom", failed.Cause)

	// 4. A failed job with attempts left is still fetched
	batch, err = repo.FetchBatch(ctx, 10, nil)
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	// 5. Exhausting attempts dead-letters it
	require.NoError(t, repo.CommitBatch(ctx, nil, []job.Failure{{ID: ids[1], Cause: "boom again"}}))
	batch, err = repo.FetchBatch(ctx, 10, nil)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, ids[2], batch[0].ID)

	dead, err := repo.List(ctx, job.DeadOnly())
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, ids[1], dead[0].ID)
	assert.True(t, dead[0].Dead(repo.MaxAttempts()))

	n, err := repo.Count(ctx, job.Filter{Status: job.StatusQueued})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// 6. Reset gives the job a fresh budget
	require.NoError(t, repo.Reset(ctx, ids[1]))
	reset, err := repo.Get(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, reset.Status)
	assert.Equal(t, 0, reset.Attempts)
	assert.Empty(t, reset.Cause)
	assert.ErrorIs(t, repo.Reset(ctx, "missing"), job.ErrNotFound)

	// 7. Purge removes only dead jobs
	require.NoError(t, repo.CommitBatch(ctx, nil, []job.Failure{{ID: ids[1], Cause: "x"}, {ID: ids[2], Cause: "y"}}))
	require.NoError(t, repo.CommitBatch(ctx, nil, []job.Failure{{ID: ids[1], Cause: "x"}}))
	purged, err := repo.PurgeDead(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	remaining, err := repo.Count(ctx, job.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

func TestJobRepo_CommitBatchIsAtomic_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.SetupPostgres()
	defer s.Teardown()

	repo := job.NewPostgresRepo(s.DB, 3)
	ctx := context.Background()

	ok, err := repo.Enqueue(ctx, "helloWorld", json.RawMessage(`{}`))
	require.NoError(t, err)
	bad, err := repo.Enqueue(ctx, "helloWorld", json.RawMessage(`{}`))
	require.NoError(t, err)

	// Postgres rejects NUL bytes in text, failing the second statement.
	err = repo.CommitBatch(ctx, []string{ok.ID}, []job.Failure{{ID: bad.ID, Cause: "bad\x00cause"}})
	require.Error(t, err)

	_, err = repo.Get(ctx, ok.ID)
	assert.NoError(t, err, "completed job must survive a rolled back commit")
	stored, err := repo.Get(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Attempts)
}

func TestQueue_DrainWithOrchestrator_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.SetupPostgres()
	defer s.Teardown()

	ctx := context.Background()
	repo := job.NewPostgresRepo(s.DB, 3)
	hub := events.NewHub()

	exec := pool.ExecutorFunc(func(ctx context.Context, task pool.Task) (json.RawMessage, error) {
		if task.Type == "failing" {
			return nil, errors.New("always fails")
		}
		return json.RawMessage(`"ok"`), nil
	})
	manager := pool.NewManager(exec, map[pool.Category]pool.Config{pool.CategoryGeneral: {MaxWorkers: 2}}, nil)
	defer func() { _ = manager.Terminate(ctx) }()

	orch := orchestrator.New(repo, manager, hub, orchestrator.Config{BatchSize: 2})
	defer func() { _ = orch.Stop(ctx) }()

	good1, err := repo.Enqueue(ctx, "helloWorld", json.RawMessage(`{}`))
	require.NoError(t, err)
	bad, err := repo.Enqueue(ctx, "failing", json.RawMessage(`{}`))
	require.NoError(t, err)
	good2, err := repo.Enqueue(ctx, "helloWorld", json.RawMessage(`{}`))
	require.NoError(t, err)

	sum, err := orch.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.Summary{Batches: 2, Completed: 2, Failed: 1}, sum)

	for _, id := range []string{good1.ID, good2.ID} {
		_, err := repo.Get(ctx, id)
		assert.ErrorIs(t, err, job.ErrNotFound)
		ev, ok := hub.GetLast(id)
		require.True(t, ok)
		assert.Equal(t, events.TypeFinished, ev.Type)
	}

	for attempt := 2; attempt <= 3; attempt++ {
		sum, err = orch.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Failed)
	}

	stored, err := repo.Get(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Attempts)
	ev, _ := hub.GetLast(bad.ID)
	assert.Equal(t, events.Aborted(bad.ID, "always fails"), ev)

	// Dead-lettered jobs are left alone.
	sum, err = orch.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.Summary{}, sum)
}
