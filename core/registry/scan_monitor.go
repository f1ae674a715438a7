package registry

import (
	"context"
	"time"
)

// StartScanMonitor starts loop refreshing capacity and health of all
// drives on every tick until ctx is cancelled.
func (r *Registry) StartScanMonitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("starting drive scan monitor")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.ScanAll()
		}
	}
}
