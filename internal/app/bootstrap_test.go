package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selflearning/apps/worker/internal/app"
	"selflearning/apps/worker/internal/config"
)

type schemaStub struct {
	calls     int
	failUntil int
	err       error
}

func (s *schemaStub) EnsureSchema(ctx context.Context) error {
	s.calls++
	if s.calls <= s.failUntil {
		return s.err
	}
	return nil
}

func TestEnsureSchemaWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		failUntil int
		attempts  int
		wantErr   bool
		wantCalls int
	}{
		{name: "Success", failUntil: 0, attempts: 1, wantCalls: 1},
		{name: "Retries", failUntil: 2, attempts: 5, wantCalls: 3},
		{name: "Fail", failUntil: 10, attempts: 3, wantErr: true, wantCalls: 3},
		{name: "ZeroAttemptsStillTries", failUntil: 0, attempts: 0, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &schemaStub{failUntil: tt.failUntil, err: errors.New("schema error")}
			err := app.EnsureSchemaWithRetry(context.Background(), stub, tt.attempts, time.Millisecond)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, stub.calls)
		})
	}
}

func TestEnsureSchemaWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stub := &schemaStub{failUntil: 100, err: errors.New("weaviate starting")}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := app.EnsureSchemaWithRetry(ctx, stub, 100, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stub.calls)
}

func TestOpenDatabase_DBDown(t *testing.T) {
	cfg := &config.Config{
		DBHost:                 "localhost",
		DBPort:                 54322,
		DBUser:                 "test",
		DBPass:                 "test",
		DBName:                 "test",
		BootstrapRetryAttempts: 1,
	}

	start := time.Now()
	db, err := app.OpenDatabase(context.Background(), cfg)

	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to ping db")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBootstrap_DBDown(t *testing.T) {
	cfg := &config.Config{
		DBHost:                 "localhost",
		DBPort:                 54322,
		DBUser:                 "test",
		DBName:                 "test",
		BootstrapRetryAttempts: 1,
	}
	deps, err := app.Bootstrap(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, deps)
}
