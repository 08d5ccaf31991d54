// Package model contains the job and chat types shared across packages.
package model

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus describes the processing lifecycle of a job. A named string type
// keeps statuses from being mixed up with arbitrary strings.
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusSuccess    JobStatus = "SUCCESS"
	StatusFailed     JobStatus = "FAILED"
)

// ErrInvalidTransition is returned when a status change is not allowed by the
// job state machine.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Job is the durable record of one submitted document.
type Job struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
	// DocumentRef is the blob store key of the uploaded file; empty when the
	// submission carried no file.
	DocumentRef  string `json:"-"`
	DocumentName string `json:"-"`
	// Result holds the summary on SUCCESS or the failure description on FAILED.
	Result    string     `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	StartedAt *time.Time `json:"-"`
}

// IsTerminal reports whether the status is SUCCESS or FAILED.
func (s JobStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the job has finished processing.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// HasDocument reports whether a file was attached at submission.
func (j *Job) HasDocument() bool {
	return j.DocumentRef != ""
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to JobStatus) bool {
	switch to {
	case StatusProcessing:
		return from == StatusPending
	case StatusSuccess:
		return from == StatusProcessing
	case StatusFailed:
		return from == StatusPending || from == StatusProcessing
	}
	return false
}

// Transition moves the job to status to. Terminal statuses require a
// non-empty result; PROCESSING clears any result and stamps StartedAt.
func (j *Job) Transition(to JobStatus, result string, now time.Time) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	if to.IsTerminal() {
		if result == "" {
			return fmt.Errorf("%w: %s requires a result", ErrInvalidTransition, to)
		}
		j.Result = result
	} else {
		j.Result = ""
		started := now
		j.StartedAt = &started
	}
	j.Status = to
	return nil
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (j *Job) Clone() *Job {
	out := *j
	if j.StartedAt != nil {
		started := *j.StartedAt
		out.StartedAt = &started
	}
	return &out
}
