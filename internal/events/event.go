package events

type Type string

const (
	TypeQueued   Type = "queued"
	TypeStarted  Type = "started"
	TypeAborted  Type = "aborted"
	TypeFinished Type = "finished"
	// TypeReady is sent to a subscriber when nothing has been published for the job yet.
	TypeReady Type = "ready"
)

type Event struct {
	Type  Type   `json:"type"`
	JobID string `json:"jobId"`
	Cause string `json:"cause,omitempty"`
}

func Queued(jobID string) Event   { return Event{Type: TypeQueued, JobID: jobID} }
func Started(jobID string) Event  { return Event{Type: TypeStarted, JobID: jobID} }
func Finished(jobID string) Event { return Event{Type: TypeFinished, JobID: jobID} }
func Ready(jobID string) Event    { return Event{Type: TypeReady, JobID: jobID} }

func Aborted(jobID, cause string) Event {
	return Event{Type: TypeAborted, JobID: jobID, Cause: cause}
}
