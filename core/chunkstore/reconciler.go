package chunkstore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/babylonpiles/storaged/core/registry"
)

// Reconciler sweeps drives for chunk directories that no metadata
// record references. Such orphans are left behind by crashes between
// chunk writes and the metadata commit, or mid object deletion.
type Reconciler struct {
	store    *Store
	registry *registry.Registry

	// grace keeps the sweeper away from chunk directories of puts
	// that are still in flight and have not committed metadata yet.
	grace time.Duration
}

func NewReconciler(store *Store, reg *registry.Registry, grace time.Duration) *Reconciler {
	return &Reconciler{
		store:    store,
		registry: reg,
		grace:    grace,
	}
}

// Start runs the orphan sweep on every tick until ctx is cancelled.
func (rc *Reconciler) Start(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("starting orphan chunk reconciler")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := rc.Sweep(ctx); err != nil {
				log.Errorw("orphan sweep failed", "error", err)
			}
		}
	}
}

// Sweep removes chunk directories owned by no object record.
func (rc *Reconciler) Sweep(ctx context.Context) error {
	objects, err := rc.store.metadata.All(ctx)
	if err != nil {
		return err
	}

	known := make(map[string]struct{}, len(objects))
	for _, object := range objects {
		known[object.ID.String()] = struct{}{}
	}

	cutoff := time.Now().Add(-rc.grace)

	for _, drive := range rc.registry.Snapshot() {
		chunksRoot := filepath.Join(drive.MountPath, "chunks")
		entries, err := os.ReadDir(chunksRoot)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			log.Warnw("cannot read chunks dir", "driveID", drive.ID, "error", err)
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if _, ok := known[entry.Name()]; ok {
				continue
			}

			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}

			orphan := filepath.Join(chunksRoot, entry.Name())
			if err := os.RemoveAll(orphan); err != nil {
				log.Errorw("failed to remove orphan chunk dir", "path", orphan, "error", err)
				continue
			}

			log.Infow("removed orphan chunk dir", "driveID", drive.ID, "objectID", entry.Name())
		}
	}

	return nil
}
