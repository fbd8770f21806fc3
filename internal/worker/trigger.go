package worker

import (
	"log/slog"

	"github.com/nsqio/go-nsq"
)

type Trigger interface {
	Trigger()
}

// TriggerConsumer wakes the local orchestrator for every message on the
// trigger topic. The message body is ignored.
type TriggerConsumer struct {
	target Trigger
}

func NewTriggerConsumer(t Trigger) *TriggerConsumer {
	return &TriggerConsumer{target: t}
}

func (c *TriggerConsumer) HandleMessage(_ *nsq.Message) error {
	c.target.Trigger()
	return nil
}

type Publisher interface {
	Publish(topic string, body []byte) error
}

// TriggerPublisher wakes worker processes through NSQ. API-only processes use
// it in place of a local orchestrator.
type TriggerPublisher struct {
	publisher Publisher
	topic     string
}

func NewTriggerPublisher(p Publisher, topic string) *TriggerPublisher {
	return &TriggerPublisher{publisher: p, topic: topic}
}

// Trigger is best effort; the workers' poll loop picks up a lost wake-up.
func (t *TriggerPublisher) Trigger() {
	if err := t.publisher.Publish(t.topic, []byte("{}")); err != nil {
		slog.Warn("failed to publish job trigger", "topic", t.topic, "error", err)
	}
}
