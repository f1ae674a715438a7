package chunkstore

import (
	"context"
	"time"
)

// Scrubber periodically re-reads every stored chunk and verifies it
// against its recorded checksum. Mismatches are permanent data loss
// signals in a deployment without replication, so they are only
// logged loudly, never repaired silently.
type Scrubber struct {
	store *Store
}

func NewScrubber(store *Store) *Scrubber {
	return &Scrubber{store: store}
}

// Start runs a full verification pass on every tick until ctx is
// cancelled.
func (sc *Scrubber) Start(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("starting chunk scrubber")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sc.scrub(ctx)
		}
	}
}

func (sc *Scrubber) scrub(ctx context.Context) {
	objects, err := sc.store.metadata.All(ctx)
	if err != nil {
		log.Errorw("scrub pass failed to list objects", "error", err)
		return
	}

	for _, object := range objects {
		if ctx.Err() != nil {
			return
		}

		if err := sc.store.VerifyObject(ctx, object.Name); err != nil {
			log.Errorw("scrub found corrupt object", "name", object.Name, "error", err)
		}
	}
}
