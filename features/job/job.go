package job

import (
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusQueued Status = "queued"
	StatusFailed Status = "failed"
)

const DefaultMaxAttempts = 3

var (
	ErrNotFound   = errors.New("job not found")
	ErrInvalidJob = errors.New("invalid job")
)

type Job struct {
	ID        string          `json:"id"`
	JobType   string          `json:"job_type"`
	Status    Status          `json:"status"`
	Attempts  int             `json:"attempts"`
	Payload   json.RawMessage `json:"payload"`
	Cause     string          `json:"cause,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Dead reports whether the job exhausted its attempts and will not be fetched again.
func (j Job) Dead(maxAttempts int) bool {
	return j.Attempts >= maxAttempts
}

// Failure is a job that settled with an error during a drain.
type Failure struct {
	ID    string
	Cause string
}

// Filter narrows Count and List. A nil Dead matches both live and dead jobs.
type Filter struct {
	Status Status
	Dead   *bool
}

func DeadOnly() Filter {
	dead := true
	return Filter{Status: StatusFailed, Dead: &dead}
}

func Retryable() Filter {
	dead := false
	return Filter{Status: StatusFailed, Dead: &dead}
}
