package placement

import "github.com/babylonpiles/storaged/core/model"

// MostFreePolicy picks the healthy drive with the most free space.
// Ties break on lowest drive id so placement stays deterministic.
type MostFreePolicy struct{}

func (p *MostFreePolicy) Choose(drives []model.DriveInfo, sizeHint int64) (model.DriveID, error) {
	var best *model.DriveInfo
	for i := range drives {
		d := drives[i]
		if !eligible(d, sizeHint) {
			continue
		}

		if best == nil || d.FreeBytes > best.FreeBytes || (d.FreeBytes == best.FreeBytes && d.ID < best.ID) {
			best = &drives[i]
		}
	}

	if best == nil {
		return "", ErrNoEligibleDrive
	}

	return best.ID, nil
}
