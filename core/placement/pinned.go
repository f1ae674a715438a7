package placement

import "github.com/babylonpiles/storaged/core/model"

// PinnedPolicy places every chunk on one operator designated drive.
// Mirrors the single drive exclusive storage mode where content may
// only land on the location the operator picked.
type PinnedPolicy struct {
	Drive model.DriveID
}

func (p *PinnedPolicy) Choose(drives []model.DriveInfo, sizeHint int64) (model.DriveID, error) {
	for _, d := range drives {
		if d.ID == p.Drive && eligible(d, sizeHint) {
			return d.ID, nil
		}
	}

	return "", ErrNoEligibleDrive
}
