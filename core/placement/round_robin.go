package placement

import (
	"sync"

	"github.com/babylonpiles/storaged/core/model"
)

// RoundRobinPolicy cycles through eligible drives to spread chunks
// evenly regardless of free space skew.
type RoundRobinPolicy struct {
	mu   sync.Mutex
	next int
}

func (p *RoundRobinPolicy) Choose(drives []model.DriveInfo, sizeHint int64) (model.DriveID, error) {
	candidates := make([]model.DriveID, 0, len(drives))
	for _, d := range drives {
		if eligible(d, sizeHint) {
			candidates = append(candidates, d.ID)
		}
	}

	if len(candidates) == 0 {
		return "", ErrNoEligibleDrive
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id := candidates[p.next%len(candidates)]
	p.next++

	return id, nil
}
