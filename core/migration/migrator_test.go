package migration

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/babylonpiles/storaged/core/chunkstore"
	"github.com/babylonpiles/storaged/core/model"
	"github.com/babylonpiles/storaged/core/placement"
	"github.com/babylonpiles/storaged/core/registry"
)

const testChunkSize = 1024

type fixedProbe struct{}

func (fixedProbe) Probe(mountPath string) (uint64, uint64, error) {
	return 1 << 30, 1 << 30, nil
}

func newTestMigrator(t *testing.T, driveCount int) (*Migrator, *chunkstore.Store, *registry.Registry) {
	t.Helper()

	reg := registry.NewRegistry(fixedProbe{})
	for i := 0; i < driveCount; i++ {
		_, err := reg.Register(t.TempDir())
		require.NoError(t, err)
	}

	metadata, err := chunkstore.NewMetadataStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { metadata.Close() })

	policy := &placement.MostFreePolicy{}
	store := chunkstore.NewStore(reg, policy, metadata, testChunkSize)

	return NewMigrator(store, reg, policy), store, reg
}

func putObject(t *testing.T, store *chunkstore.Store, name string, size int) ([]byte, *model.ObjectMetadata) {
	t.Helper()

	data := make([]byte, size)
	rand.New(rand.NewSource(int64(size))).Read(data)

	object, err := store.PutObject(context.Background(), name, bytes.NewReader(data))
	require.NoError(t, err)

	return data, object
}

func readObject(t *testing.T, store *chunkstore.Store, name string) []byte {
	t.Helper()

	r, err := store.OpenObject(context.Background(), name)
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)

	return data
}

func TestEvacuateMovesAllChunks(t *testing.T) {
	m, store, reg := newTestMigrator(t, 2)

	data, _ := putObject(t, store, "cargo", 4*testChunkSize)

	sourceDrive := reg.Snapshot()[0].ID
	before, err := store.ChunksOnDrive(context.Background(), sourceDrive)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	task, err := m.Evacuate(context.Background(), sourceDrive)
	require.NoError(t, err)
	require.Equal(t, model.MigrationCompleted, task.State)
	require.Equal(t, len(before), task.ChunksTotal)
	require.Equal(t, len(before), task.ChunksMoved)
	require.False(t, task.CompletedAt.IsZero())

	after, err := store.ChunksOnDrive(context.Background(), sourceDrive)
	require.NoError(t, err)
	require.Empty(t, after)

	mountPath, err := reg.MountPath(sourceDrive)
	require.NoError(t, err)
	entries, err := os.ReadDir(mountPath + "/chunks")
	if err == nil {
		require.Empty(t, entries)
	}

	require.Equal(t, data, readObject(t, store, "cargo"))
	require.NoError(t, store.VerifyObject(context.Background(), "cargo"))

	// the drive leaves draining mode once the evacuation finished
	require.NoError(t, reg.Reserve(sourceDrive, 1))
}

func TestEvacuateEmptyDrive(t *testing.T) {
	m, _, reg := newTestMigrator(t, 2)

	task, err := m.Evacuate(context.Background(), reg.Snapshot()[0].ID)
	require.NoError(t, err)
	require.Equal(t, model.MigrationCompleted, task.State)
	require.Zero(t, task.ChunksTotal)
	require.Zero(t, task.ChunksMoved)
}

func TestEvacuateUnknownDrive(t *testing.T) {
	m, _, _ := newTestMigrator(t, 1)

	_, err := m.Evacuate(context.Background(), "nonexistent")
	require.ErrorIs(t, err, registry.ErrDriveNotFound)
}

func TestEvacuateWithoutDestinationFails(t *testing.T) {
	m, store, reg := newTestMigrator(t, 1)

	data, _ := putObject(t, store, "stuck", 2*testChunkSize)

	sourceDrive := reg.Snapshot()[0].ID
	task, err := m.Evacuate(context.Background(), sourceDrive)
	require.ErrorIs(t, err, placement.ErrNoEligibleDrive)
	require.Equal(t, model.MigrationFailed, task.State)
	require.NotEmpty(t, task.Error)

	// nothing moved, the object stays intact on the source drive
	require.Equal(t, data, readObject(t, store, "stuck"))
	require.NoError(t, store.VerifyObject(context.Background(), "stuck"))
}

func TestEvacuateSkipsAlreadyMovedChunks(t *testing.T) {
	m, store, reg := newTestMigrator(t, 2)

	data, object := putObject(t, store, "resumed", 2*testChunkSize)

	drives := reg.Snapshot()
	sourceDrive, destDrive := drives[0].ID, drives[1].ID

	sourceMount, err := reg.MountPath(sourceDrive)
	require.NoError(t, err)
	destMount, err := reg.MountPath(destDrive)
	require.NoError(t, err)

	// replay an interrupted run: one chunk copied and repointed to the
	// destination, its stale source copy left behind
	var stalePath string
	for _, chunk := range object.Chunks {
		if chunk.DriveID != sourceDrive {
			continue
		}

		src := chunkstore.ChunkPath(sourceMount, object.ID, chunk.Index)
		dst := chunkstore.ChunkPath(destMount, object.ID, chunk.Index)

		b, err := os.ReadFile(src)
		require.NoError(t, err)
		require.NoError(t, os.MkdirAll(chunkstore.ChunkDir(destMount, object.ID), 0750))
		require.NoError(t, os.WriteFile(dst, b, 0644))
		require.NoError(t, store.RepointChunk(context.Background(), "resumed", chunk.Index, destDrive))

		stalePath = src
		break
	}
	require.NotEmpty(t, stalePath)

	task, err := m.Evacuate(context.Background(), sourceDrive)
	require.NoError(t, err)
	require.Equal(t, model.MigrationCompleted, task.State)

	// nothing was copied again for the already repointed chunk
	require.Zero(t, task.ChunksMoved)

	// the stale source copy was swept
	_, err = os.Stat(stalePath)
	require.True(t, os.IsNotExist(err))

	after, err := store.ChunksOnDrive(context.Background(), sourceDrive)
	require.NoError(t, err)
	require.Empty(t, after)

	require.Equal(t, data, readObject(t, store, "resumed"))
	require.NoError(t, store.VerifyObject(context.Background(), "resumed"))
}

func TestMoveChunkCountsOnlyActualMoves(t *testing.T) {
	m, store, reg := newTestMigrator(t, 2)

	_, _ = putObject(t, store, "ledger", 2*testChunkSize)

	sourceDrive := reg.Snapshot()[0].ID
	require.NoError(t, reg.SetDraining(sourceDrive, true))

	refs, err := store.ChunksOnDrive(context.Background(), sourceDrive)
	require.NoError(t, err)
	require.Len(t, refs, 1)

	didMove, err := m.moveChunk(context.Background(), sourceDrive, refs[0])
	require.NoError(t, err)
	require.True(t, didMove)

	// the chunk was repointed already, a second move is not counted
	didMove, err = m.moveChunk(context.Background(), sourceDrive, refs[0])
	require.NoError(t, err)
	require.False(t, didMove)
}

func TestEvacuateDetectsCorruptSource(t *testing.T) {
	m, store, reg := newTestMigrator(t, 2)

	_, object := putObject(t, store, "rotten", 2*testChunkSize)

	sourceDrive := reg.Snapshot()[0].ID
	sourceMount, err := reg.MountPath(sourceDrive)
	require.NoError(t, err)

	refs, err := store.ChunksOnDrive(context.Background(), sourceDrive)
	require.NoError(t, err)
	require.NotEmpty(t, refs)

	corrupted := chunkstore.ChunkPath(sourceMount, object.ID, refs[0].Chunk.Index)
	require.NoError(t, os.WriteFile(corrupted, []byte("bit rot"), 0644))

	task, err := m.Evacuate(context.Background(), sourceDrive)
	require.ErrorIs(t, err, ErrSourceCorrupt)
	require.Equal(t, model.MigrationFailed, task.State)
}

func TestTaskTracking(t *testing.T) {
	m, _, reg := newTestMigrator(t, 2)

	_, err := m.Task(uuid.New())
	require.ErrorIs(t, err, ErrTaskNotFound)

	task, err := m.Evacuate(context.Background(), reg.Snapshot()[0].ID)
	require.NoError(t, err)

	got, err := m.Task(task.ID)
	require.NoError(t, err)
	require.Equal(t, task.ID, got.ID)
	require.Equal(t, model.MigrationCompleted, got.State)
	require.Len(t, m.Tasks(), 1)
}
