package main

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/babylonpiles/storaged/core/chunkstore"
	"github.com/babylonpiles/storaged/core/engine"
	storageRPC "github.com/babylonpiles/storaged/rpc/storage"
)

const testChunkSize = 1024

type fixedProbe struct{}

func (fixedProbe) Probe(mountPath string) (uint64, uint64, error) {
	return 1 << 30, 1 << 30, nil
}

func newTestAPI(t *testing.T) (*StorageAPI, []string) {
	t.Helper()

	mounts := []string{t.TempDir(), t.TempDir()}

	cfg := engine.Config{
		MountPaths:            mounts,
		MetadataDir:           t.TempDir(),
		ScratchDir:            t.TempDir(),
		ChunkSizeBytes:        testChunkSize,
		PlacementMode:         "most-free",
		ProgressIntervalBytes: 1,
		JobRetention:          time.Hour,
	}

	eng, err := engine.New(cfg, fixedProbe{})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	return NewStorageAPI(eng), mounts
}

func TestReadObjectStreamsToEOF(t *testing.T) {
	api, _ := newTestAPI(t)

	data := make([]byte, 2*testChunkSize)
	rand.New(rand.NewSource(11)).Read(data)

	_, err := api.Engine.Store.PutObject(context.Background(), "whole", bytes.NewReader(data))
	require.NoError(t, err)

	var openReply storageRPC.OpenObjectReply
	require.NoError(t, api.OpenObject(&storageRPC.OpenObjectArgs{Name: "whole"}, &openReply))
	require.Equal(t, int64(len(data)), openReply.Size)

	var got []byte
	for {
		var readReply storageRPC.ReadObjectReply
		args := &storageRPC.ReadObjectArgs{Handle: openReply.Handle, MaxBytes: testChunkSize / 2}
		require.NoError(t, api.ReadObject(args, &readReply))

		got = append(got, readReply.Data...)
		if readReply.EOF {
			break
		}
	}

	require.Equal(t, data, got)

	// EOF released the handle
	_, exists := api.readers.Get(openReply.Handle)
	require.False(t, exists)
}

func TestReadObjectErrorReleasesHandle(t *testing.T) {
	api, mounts := newTestAPI(t)

	data := make([]byte, testChunkSize)
	rand.New(rand.NewSource(12)).Read(data)

	object, err := api.Engine.Store.PutObject(context.Background(), "tainted", bytes.NewReader(data))
	require.NoError(t, err)

	for _, mount := range mounts {
		path := chunkstore.ChunkPath(mount, object.ID, 0)
		if _, err := os.Stat(path); err == nil {
			require.NoError(t, os.WriteFile(path, []byte("flipped bits"), 0644))
		}
	}

	var openReply storageRPC.OpenObjectReply
	require.NoError(t, api.OpenObject(&storageRPC.OpenObjectArgs{Name: "tainted"}, &openReply))

	var readReply storageRPC.ReadObjectReply
	err = api.ReadObject(&storageRPC.ReadObjectArgs{Handle: openReply.Handle}, &readReply)
	require.ErrorIs(t, err, chunkstore.ErrChecksumMismatch)

	// the failed stream was closed and deregistered
	_, exists := api.readers.Get(openReply.Handle)
	require.False(t, exists)

	require.ErrorIs(t, api.ReadObject(&storageRPC.ReadObjectArgs{Handle: openReply.Handle}, &readReply), errReadHandleNotFound)
}
