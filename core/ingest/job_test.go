package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/babylonpiles/storaged/core/model"
)

func TestStateTransitionResetsStallClock(t *testing.T) {
	j := newJob("large-object", "test:large-object", func() {})

	j.mu.Lock()
	j.lastProgress = time.Now().Add(-time.Hour)
	j.mu.Unlock()

	require.GreaterOrEqual(t, j.sinceProgress(), time.Hour)

	// entering verification must not look like a stalled transfer
	j.setState(model.JobVerifying)
	require.Less(t, j.sinceProgress(), time.Minute)
}

func TestTerminalStateIsSticky(t *testing.T) {
	j := newJob("done", "test:done", func() {})

	j.setState(model.JobCommitted)
	require.Equal(t, model.JobCommitted, j.snapshot().State)
	require.False(t, j.snapshot().FinishedAt.IsZero())

	j.setState(model.JobRunning)
	require.Equal(t, model.JobCommitted, j.snapshot().State)

	j.fail("late failure")
	require.Equal(t, model.JobCommitted, j.snapshot().State)
	require.Empty(t, j.snapshot().FailureReason)
}
