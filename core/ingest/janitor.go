package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StartJanitor prunes terminal job records once their retention window
// has passed. Terminal jobs stay queryable until then so callers can
// observe the outcome of finished ingestions.
func (p *Pipeline) StartJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("starting ingestion job janitor")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.pruneJobs()
		}
	}
}

func (p *Pipeline) pruneJobs() {
	cutoff := time.Now().UTC().Add(-p.cfg.RetentionWindow)

	expired := make([]uuid.UUID, 0)
	p.jobs.Range(func(k, v any) bool {
		j := v.(*job)
		record := j.snapshot()
		if record.State.Terminal() && record.FinishedAt.Before(cutoff) {
			expired = append(expired, record.ID)
		}

		return true
	})

	for _, id := range expired {
		p.jobs.Delete(id)
		log.Infow("pruned terminal ingestion job", "jobID", id)
	}
}

// ActiveCount returns the number of jobs not yet in a terminal state.
func (p *Pipeline) ActiveCount() int {
	count := 0
	p.jobs.Range(func(_, v any) bool {
		if !v.(*job).snapshot().State.Terminal() {
			count++
		}

		return true
	})

	return count
}
