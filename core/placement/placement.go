// Package placement decides which drive each chunk is written to.
// Policies are pure functions over a drive registry snapshot so they
// stay deterministic and swappable.
package placement

import (
	"errors"

	"github.com/babylonpiles/storaged/core/model"
)

var (
	ErrNoEligibleDrive = errors.New("no healthy drive with enough free space")
	ErrUnknownMode     = errors.New("unknown placement mode")
)

const (
	ModeMostFree   = "most-free"
	ModeRoundRobin = "round-robin"
	ModePinned     = "pinned"
)

// Policy chooses a drive for a chunk of sizeHint bytes out of a
// registry snapshot. Unreachable and draining drives are never chosen.
type Policy interface {
	Choose(drives []model.DriveInfo, sizeHint int64) (model.DriveID, error)
}

// New builds the policy for a configured placement mode. Pinned mode
// restricts all placement to one operator designated drive.
func New(mode string, pinned model.DriveID) (Policy, error) {
	switch mode {
	case "", ModeMostFree:
		return &MostFreePolicy{}, nil
	case ModeRoundRobin:
		return &RoundRobinPolicy{}, nil
	case ModePinned:
		return &PinnedPolicy{Drive: pinned}, nil
	default:
		return nil, ErrUnknownMode
	}
}

func eligible(d model.DriveInfo, sizeHint int64) bool {
	return d.Health == model.DriveHealthy && !d.Draining && d.FreeBytes >= uint64(sizeHint)
}
