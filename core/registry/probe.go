package registry

import "golang.org/x/sys/unix"

// CapacityProbe reports total and free bytes for a mount path. The
// probe is injectable so the engine stays decoupled from any one OS
// mechanism and tests can run with fakes.
type CapacityProbe interface {
	Probe(mountPath string) (total, free uint64, err error)
}

// StatfsProbe reads capacity from the filesystem backing the mount.
type StatfsProbe struct{}

func (StatfsProbe) Probe(mountPath string) (uint64, uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(mountPath, &st); err != nil {
		return 0, 0, err
	}

	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, st.Bavail * bsize, nil
}
