package events

import (
	"encoding/json"
	"log/slog"

	"github.com/nsqio/go-nsq"
)

type Producer interface {
	Publish(topic string, body []byte) error
}

// Relay publishes to a local sink and forwards every event to an NSQ topic,
// so hubs living in API processes see what the worker process publishes.
type Relay struct {
	local    Sink
	producer Producer
	topic    string
	logger   *slog.Logger
}

func NewRelay(local Sink, producer Producer, topic string) *Relay {
	return &Relay{
		local:    local,
		producer: producer,
		topic:    topic,
		logger:   slog.With("component", "event_relay", "topic", topic),
	}
}

func (r *Relay) Publish(jobID string, ev Event) {
	ev.JobID = jobID
	r.local.Publish(jobID, ev)

	body, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("failed to marshal job event", "error", err, "job_id", jobID)
		return
	}
	if err := r.producer.Publish(r.topic, body); err != nil {
		// Subscribers fall back to the next state change or a reconnect.
		r.logger.Warn("failed to relay job event", "error", err, "job_id", jobID, "type", ev.Type)
	}
}

// Forwarder consumes relayed events and publishes them into a local sink.
type Forwarder struct {
	sink Sink
}

func NewForwarder(sink Sink) *Forwarder {
	return &Forwarder{sink: sink}
}

func (f *Forwarder) HandleMessage(m *nsq.Message) error {
	var ev Event
	if err := json.Unmarshal(m.Body, &ev); err != nil {
		slog.Warn("dropping malformed job event", "error", err)
		return nil
	}
	if ev.JobID == "" {
		slog.Warn("dropping job event without job id", "type", ev.Type)
		return nil
	}
	f.sink.Publish(ev.JobID, ev)
	return nil
}
