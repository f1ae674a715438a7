package model

import (
	"time"

	"github.com/google/uuid"
)

type JobState string

const (
	JobRunning   JobState = "running"
	JobVerifying JobState = "verifying"
	JobCommitted JobState = "committed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether state permits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobCommitted || s == JobFailed || s == JobCancelled
}

// LengthUnknown marks sources that do not report expected length up front.
const LengthUnknown int64 = -1

// IngestionJob tracks one object being pulled from an external source
// into the chunk store. Bound 1:1 to the object name it stages.
type IngestionJob struct {
	ID               uuid.UUID `json:"id"`
	ObjectName       string    `json:"object_name"`
	SourceDescriptor string    `json:"source_descriptor"`
	State            JobState  `json:"state"`
	BytesTransferred int64     `json:"bytes_transferred"`
	ExpectedBytes    int64     `json:"expected_bytes"`
	FailureReason    string    `json:"failure_reason,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at,omitempty"`
}
