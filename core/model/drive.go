package model

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

type DriveID string

// NewDriveID derives stable drive identity from its mount path. Volume
// labels can be renamed so identity is bound to the mount path instead.
func NewDriveID(mountPath string) DriveID {
	sum := sha256.Sum256([]byte(filepath.Clean(mountPath)))
	return DriveID(hex.EncodeToString(sum[:8]))
}

func (id DriveID) String() string {
	return string(id)
}

type DriveHealth string

const (
	DriveHealthy     DriveHealth = "healthy"
	DriveUnreachable DriveHealth = "unreachable"
)

type DriveInfo struct {
	ID         DriveID     `json:"id"`
	MountPath  string      `json:"mount_path"`
	TotalBytes uint64      `json:"total_bytes"`
	FreeBytes  uint64      `json:"free_bytes"`
	UsedBytes  uint64      `json:"used_bytes"`
	Health     DriveHealth `json:"health"`
	Draining   bool        `json:"draining"`
}
