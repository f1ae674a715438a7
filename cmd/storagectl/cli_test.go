package main

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/babylonpiles/storaged/core/model"
)

func TestPrintDrives(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)

	orig := os.Stdout
	os.Stdout = w

	printDrives([]model.DriveInfo{
		{
			ID:         "11aa22bb",
			MountPath:  "/mnt/hdd1",
			TotalBytes: 1000,
			FreeBytes:  400,
			Health:     model.DriveHealthy,
		},
		{
			ID:         "33cc44dd",
			MountPath:  "/mnt/hdd2",
			TotalBytes: 2000,
			FreeBytes:  0,
			Health:     model.DriveUnreachable,
			Draining:   true,
		},
	})

	os.Stdout = orig
	require.NoError(t, w.Close())

	out, err := io.ReadAll(r)
	require.NoError(t, err)

	require.Contains(t, string(out), "11aa22bb")
	require.Contains(t, string(out), "/mnt/hdd1")
	require.Contains(t, string(out), "healthy")
	require.Contains(t, string(out), "unreachable,draining")
}
