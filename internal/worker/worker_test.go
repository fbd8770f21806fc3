package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"selflearning/apps/worker/internal/pool"
	"selflearning/apps/worker/internal/tasks"
	"selflearning/apps/worker/internal/text"
	"selflearning/apps/worker/internal/worker"
)

func TestLessonRemover_Handle(t *testing.T) {
	store := new(MockVectorStore)
	store.On("DeleteLessonChunks", mock.Anything, "L1").Return(nil)

	out, err := worker.NewLessonRemover(store).Handle(context.Background(), json.RawMessage(`{"lesson_id":"L1"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"lesson_id":"L1"}`, string(out))
	store.AssertExpectations(t)

	_, err = worker.NewLessonRemover(store).Handle(context.Background(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, worker.ErrInvalidPayload)
}

func TestHelloWorld(t *testing.T) {
	out, err := worker.HelloWorld(context.Background(), json.RawMessage(`{"msg":"world"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `"Hello world"`, string(out))

	_, err = worker.HelloWorld(context.Background(), json.RawMessage(`[`))
	assert.ErrorIs(t, err, worker.ErrInvalidPayload)
}

func TestRegister(t *testing.T) {
	store := new(MockVectorStore)
	r := tasks.NewRegistry()
	require.NoError(t, worker.Register(r,
		worker.NewLessonEmbedder(new(MockLessonSource), new(MockEmbedder), store, text.Options{}),
		worker.NewLessonRemover(store),
	))

	assert.Equal(t, []string{worker.TypeEmbedLesson, worker.TypeHelloWorld, worker.TypeRemoveLesson}, r.Types())
	assert.Equal(t, pool.CategoryEmbedding, r.CategoryFor(worker.TypeEmbedLesson))
	assert.Equal(t, pool.CategoryEmbedding, r.CategoryFor(worker.TypeRemoveLesson))
	assert.Equal(t, pool.CategoryGeneral, r.CategoryFor(worker.TypeHelloWorld))

	for _, jobType := range r.Types() {
		assert.True(t, worker.KnownTypes{}.Has(jobType), "KnownTypes must cover %s", jobType)
	}
	assert.False(t, worker.KnownTypes{}.Has("renderVideo"))
}

func TestTriggerConsumer(t *testing.T) {
	trig := &countingTrigger{}
	c := worker.NewTriggerConsumer(trig)

	require.NoError(t, c.HandleMessage(&nsq.Message{Body: []byte("{}")}))
	require.NoError(t, c.HandleMessage(&nsq.Message{}))
	assert.Equal(t, 2, trig.count())
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	return m.Called(topic, body).Error(0)
}

func TestTriggerPublisher(t *testing.T) {
	p := new(MockPublisher)
	p.On("Publish", "jobs.trigger", []byte("{}")).Return(nil).Once()
	p.On("Publish", "jobs.trigger", []byte("{}")).Return(errors.New("nsqd down")).Once()

	tp := worker.NewTriggerPublisher(p, "jobs.trigger")
	tp.Trigger()
	tp.Trigger() // a publish failure is logged, not raised

	p.AssertExpectations(t)
}
