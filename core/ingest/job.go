package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/babylonpiles/storaged/core/model"
)

// job wraps the externally visible IngestionJob record with the
// pipeline's mutable bookkeeping. Progress queries copy the record
// under the lock and never wait on transfer I/O.
type job struct {
	mu sync.Mutex

	record       model.IngestionJob
	cancel       context.CancelFunc
	lastProgress time.Time
	stalled      bool
	userCancel   bool
}

func newJob(name, descriptor string, cancel context.CancelFunc) *job {
	return &job{
		record: model.IngestionJob{
			ID:               uuid.New(),
			ObjectName:       name,
			SourceDescriptor: descriptor,
			State:            model.JobRunning,
			ExpectedBytes:    model.LengthUnknown,
			StartedAt:        time.Now().UTC(),
		},
		cancel:       cancel,
		lastProgress: time.Now(),
	}
}

func (j *job) snapshot() model.IngestionJob {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.record
}

func (j *job) setState(state model.JobState) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.record.State.Terminal() {
		return
	}

	j.record.State = state
	// a state transition counts as forward progress for the stall watchdog
	j.lastProgress = time.Now()
	if state.Terminal() {
		j.record.FinishedAt = time.Now().UTC()
	}
}

func (j *job) fail(reason string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.record.State.Terminal() {
		return
	}

	j.record.State = model.JobFailed
	j.record.FailureReason = reason
	j.record.FinishedAt = time.Now().UTC()
}

func (j *job) setExpectedBytes(n int64) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.record.ExpectedBytes = n
}

func (j *job) setBytesTransferred(n int64) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.record.BytesTransferred = n
	j.lastProgress = time.Now()
}

func (j *job) sinceProgress() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()

	return time.Since(j.lastProgress)
}

func (j *job) markStalled() {
	j.mu.Lock()
	j.stalled = true
	j.mu.Unlock()

	j.cancel()
}

func (j *job) markUserCancel() {
	j.mu.Lock()
	j.userCancel = true
	j.mu.Unlock()

	j.cancel()
}
