package config

const (
	// TopicJobsTrigger wakes worker processes after a job is enqueued or retried.
	TopicJobsTrigger = "jobs.trigger"

	// TopicJobEvents carries job lifecycle events from workers to API processes.
	TopicJobEvents = "jobs.events"

	// ChannelWorkers is shared by all worker processes so one of them drains per trigger.
	ChannelWorkers = "workers"
)
