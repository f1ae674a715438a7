package registry

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/babylonpiles/storaged/core/model"
	"github.com/babylonpiles/storaged/lib/logger"
)

var log, _ = logger.New("registry")

var (
	ErrInvalidMount         = errors.New("mount path is not a writable directory")
	ErrDriveExists          = errors.New("drive already registered")
	ErrDriveNotFound        = errors.New("drive not found")
	ErrDriveNotEmpty        = errors.New("drive still owns chunks")
	ErrDriveUnavailable     = errors.New("drive not available for writes")
	ErrInsufficientCapacity = errors.New("insufficient free capacity")
)

type drive struct {
	info model.DriveInfo

	// reserved counts bytes promised to in-flight chunk writes,
	// committed counts bytes confirmed written since the last probe.
	// Both are subtracted from the probed free space so two concurrent
	// placements cannot promise the same bytes twice.
	reserved  uint64
	committed uint64
}

func (d *drive) free() uint64 {
	held := d.reserved + d.committed
	if held >= d.info.FreeBytes {
		return 0
	}

	return d.info.FreeBytes - held
}

// Registry tracks mounted drives, their capacity and health, and hands
// out atomic space reservations for chunk placement.
type Registry struct {
	mu     sync.RWMutex
	drives map[model.DriveID]*drive
	probe  CapacityProbe
}

func NewRegistry(probe CapacityProbe) *Registry {
	return &Registry{
		drives: map[model.DriveID]*drive{},
		probe:  probe,
	}
}

// Register adds a drive record for mountPath. The drive stays
// unreachable until its first successful capacity probe, which is
// attempted immediately.
func (r *Registry) Register(mountPath string) (model.DriveID, error) {
	mountPath = filepath.Clean(mountPath)
	if err := checkWritableDir(mountPath); err != nil {
		return "", err
	}

	id := model.NewDriveID(mountPath)

	r.mu.Lock()
	if _, exists := r.drives[id]; exists {
		r.mu.Unlock()
		return id, ErrDriveExists
	}

	r.drives[id] = &drive{
		info: model.DriveInfo{
			ID:        id,
			MountPath: mountPath,
			Health:    model.DriveUnreachable,
		},
	}
	r.mu.Unlock()

	r.RefreshCapacity(id)
	log.Infow("drive registered", "driveID", id, "mountPath", mountPath)

	return id, nil
}

// Deregister removes a drive record. Callers must evacuate the drive
// first; the engine refuses deregistration while chunks remain.
func (r *Registry) Deregister(id model.DriveID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.drives[id]; !exists {
		return ErrDriveNotFound
	}

	delete(r.drives, id)
	log.Infow("drive deregistered", "driveID", id)

	return nil
}

// RefreshCapacity re-reads total and free space for a drive. Probe
// errors mark the drive unreachable instead of propagating so capacity
// probing never blocks ingestion.
func (r *Registry) RefreshCapacity(id model.DriveID) {
	r.mu.RLock()
	d, exists := r.drives[id]
	r.mu.RUnlock()
	if !exists {
		return
	}

	total, free, err := r.probe.Probe(d.info.MountPath)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		if d.info.Health != model.DriveUnreachable {
			log.Warnw("capacity probe failed, marking drive unreachable", "driveID", id, "error", err)
		}
		d.info.Health = model.DriveUnreachable
		return
	}

	d.info.TotalBytes = total
	d.info.FreeBytes = free
	d.info.UsedBytes = total - free
	d.info.Health = model.DriveHealthy
	d.committed = 0
}

// ScanAll refreshes capacity and health of every registered drive.
func (r *Registry) ScanAll() {
	for _, id := range r.ids() {
		r.RefreshCapacity(id)
	}
}

// Reserve holds size bytes on a drive ahead of a chunk write. Every
// successful Reserve must be paired with Commit or Release.
func (r *Registry) Reserve(id model.DriveID, size int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.drives[id]
	if !exists {
		return ErrDriveNotFound
	}

	if d.info.Health != model.DriveHealthy || d.info.Draining {
		return ErrDriveUnavailable
	}

	if d.free() < uint64(size) {
		return ErrInsufficientCapacity
	}

	d.reserved += uint64(size)
	return nil
}

// Commit converts a reservation into committed usage. Committed bytes
// keep reducing reported free space until the next successful probe
// observes them on disk.
func (r *Registry) Commit(id model.DriveID, size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.drives[id]
	if !exists {
		return
	}

	d.reserved -= min(d.reserved, uint64(size))
	d.committed += uint64(size)
}

// Release drops a reservation without committing it.
func (r *Registry) Release(id model.DriveID, size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.drives[id]
	if !exists {
		return
	}

	d.reserved -= min(d.reserved, uint64(size))
}

// SetDraining excludes a drive from placement while keeping its chunks
// readable. Used for the duration of an evacuation.
func (r *Registry) SetDraining(id model.DriveID, draining bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.drives[id]
	if !exists {
		return ErrDriveNotFound
	}

	d.info.Draining = draining
	return nil
}

// MountPath resolves the mount path of a drive. Unreachable drives
// still resolve so their existing chunks stay addressable for reads.
func (r *Registry) MountPath(id model.DriveID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.drives[id]
	if !exists {
		return "", ErrDriveNotFound
	}

	return d.info.MountPath, nil
}

// Snapshot returns a point in time view of all drives with reservation
// adjusted free space, ordered by drive id. Callers must tolerate
// staleness up to one refresh interval.
func (r *Registry) Snapshot() []model.DriveInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	drives := make([]model.DriveInfo, 0, len(r.drives))
	for _, d := range r.drives {
		info := d.info
		info.FreeBytes = d.free()
		info.UsedBytes = info.TotalBytes - info.FreeBytes
		drives = append(drives, info)
	}

	sort.Slice(drives, func(i, j int) bool { return drives[i].ID < drives[j].ID })

	return drives
}

func (r *Registry) ids() []model.DriveID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]model.DriveID, 0, len(r.drives))
	for id := range r.drives {
		ids = append(ids, id)
	}

	return ids
}

func checkWritableDir(path string) error {
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		return ErrInvalidMount
	}

	probeFile, err := os.CreateTemp(path, ".storaged-probe-*")
	if err != nil {
		return ErrInvalidMount
	}
	probeFile.Close()
	os.Remove(probeFile.Name())

	return nil
}

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}

	return b
}
