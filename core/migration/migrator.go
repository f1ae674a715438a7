package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/babylonpiles/storaged/core/chunkstore"
	"github.com/babylonpiles/storaged/core/model"
	"github.com/babylonpiles/storaged/core/placement"
	"github.com/babylonpiles/storaged/core/registry"
	"github.com/babylonpiles/storaged/lib/checksum"
	"github.com/babylonpiles/storaged/lib/cmap"
	"github.com/babylonpiles/storaged/lib/logger"
)

var log, _ = logger.New("migration")

var (
	ErrTaskNotFound      = errors.New("migration task not found")
	ErrEvacuateSelf      = errors.New("no destination drive besides the evacuating one")
	ErrSourceCorrupt     = errors.New("source chunk failed checksum before move")
	ErrAlreadyEvacuating = errors.New("drive is already being evacuated")
)

// concurrent objects moved at once during an evacuation
const moveParallelism = 4

// Migrator relocates chunks off a drive so it can be deregistered,
// without taking the engine down. Chunks are copied, verified at the
// destination, atomically repointed in metadata and only then removed
// from the source, so readers never observe a half moved chunk.
type Migrator struct {
	store    *chunkstore.Store
	registry *registry.Registry
	policy   placement.Policy

	tasks cmap.Map[uuid.UUID, model.MigrationTask]
}

func NewMigrator(store *chunkstore.Store, reg *registry.Registry, policy placement.Policy) *Migrator {
	return &Migrator{
		store:    store,
		registry: reg,
		policy:   policy,
		tasks:    cmap.NewMap[uuid.UUID, model.MigrationTask](),
	}
}

// Task returns the record of a migration task.
func (m *Migrator) Task(id uuid.UUID) (model.MigrationTask, error) {
	task, exists := m.tasks.Get(id)
	if !exists {
		return model.MigrationTask{}, ErrTaskNotFound
	}

	return *task, nil
}

// Tasks returns all tracked migration task records.
func (m *Migrator) Tasks() []model.MigrationTask {
	return m.tasks.Values()
}

// Evacuate moves every chunk owned by driveID onto other drives. The
// operation is idempotent per chunk: a chunk already copied and
// repointed by an interrupted earlier run is not copied again, so
// re-running after a crash completes the remainder.
func (m *Migrator) Evacuate(ctx context.Context, driveID model.DriveID) (model.MigrationTask, error) {
	for _, task := range m.tasks.Values() {
		if task.SourceDrive == driveID && task.State == model.MigrationRunning {
			return model.MigrationTask{}, ErrAlreadyEvacuating
		}
	}

	task := model.MigrationTask{
		ID:          uuid.New(),
		SourceDrive: driveID,
		State:       model.MigrationRunning,
		StartedAt:   time.Now().UTC(),
	}

	if err := m.registry.SetDraining(driveID, true); err != nil {
		return task, err
	}
	defer m.registry.SetDraining(driveID, false)

	refs, err := m.store.ChunksOnDrive(ctx, driveID)
	if err != nil {
		return task, err
	}

	task.ChunksTotal = len(refs)
	m.tasks.Set(task.ID, task)

	log.Infow("evacuation started", "taskID", task.ID, "driveID", driveID, "chunks", len(refs))

	// chunks are grouped per object and moved sequentially within it,
	// so concurrent metadata repoints never race on the same record
	byObject := make(map[string][]chunkstore.ChunkRef)
	for _, ref := range refs {
		byObject[ref.ObjectName] = append(byObject[ref.ObjectName], ref)
	}

	moved := make(chan int, len(refs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(moveParallelism)

	for name := range byObject {
		objectRefs := byObject[name]
		group.Go(func() error {
			for _, ref := range objectRefs {
				didMove, err := m.moveChunk(groupCtx, driveID, ref)
				if err != nil {
					return fmt.Errorf("move chunk %d of %s: %w", ref.Chunk.Index, ref.ObjectName, err)
				}
				if didMove {
					moved <- 1
				}
			}

			return nil
		})
	}

	err = group.Wait()
	close(moved)

	for range moved {
		task.ChunksMoved++
	}

	if err != nil {
		task.State = model.MigrationFailed
		task.Error = err.Error()
		task.CompletedAt = time.Now().UTC()
		m.tasks.Set(task.ID, task)
		log.Errorw("evacuation failed", "taskID", task.ID, "driveID", driveID, "error", err)
		return task, err
	}

	m.sweepStale(ctx, driveID)

	task.State = model.MigrationCompleted
	task.CompletedAt = time.Now().UTC()
	m.tasks.Set(task.ID, task)

	log.Infow("evacuation completed", "taskID", task.ID, "driveID", driveID, "chunksMoved", task.ChunksMoved)

	return task, nil
}

// moveChunk copies one chunk to a freshly placed destination, verifies
// the copy, repoints metadata and deletes the source file. Returns
// whether a copy actually happened: chunks an interrupted earlier run
// already repointed are skipped and not counted as moved.
func (m *Migrator) moveChunk(ctx context.Context, sourceDrive model.DriveID, ref chunkstore.ChunkRef) (bool, error) {
	current, err := m.store.StatObject(ctx, ref.ObjectName)
	if err != nil {
		return false, err
	}
	if ref.Chunk.Index >= len(current.Chunks) || current.Chunks[ref.Chunk.Index].DriveID != sourceDrive {
		return false, nil
	}

	destDrive, err := m.placeChunk(ref.Chunk.Size, sourceDrive)
	if err != nil {
		return false, err
	}

	sourceMount, err := m.registry.MountPath(sourceDrive)
	if err != nil {
		m.registry.Release(destDrive, ref.Chunk.Size)
		return false, err
	}
	destMount, err := m.registry.MountPath(destDrive)
	if err != nil {
		m.registry.Release(destDrive, ref.Chunk.Size)
		return false, err
	}

	sourcePath := chunkstore.ChunkPath(sourceMount, ref.ObjectID, ref.Chunk.Index)
	destPath := chunkstore.ChunkPath(destMount, ref.ObjectID, ref.Chunk.Index)

	if err := copyVerified(sourcePath, destPath, ref.Chunk.Checksum); err != nil {
		m.registry.Release(destDrive, ref.Chunk.Size)
		os.Remove(destPath)
		return false, err
	}

	if err := m.store.RepointChunk(ctx, ref.ObjectName, ref.Chunk.Index, destDrive); err != nil {
		m.registry.Release(destDrive, ref.Chunk.Size)
		os.Remove(destPath)
		return false, err
	}

	m.registry.Commit(destDrive, ref.Chunk.Size)

	if err := os.Remove(sourcePath); err != nil && !os.IsNotExist(err) {
		log.Warnw("failed to remove source chunk copy", "path", sourcePath, "error", err)
	}
	os.Remove(chunkstore.ChunkDir(sourceMount, ref.ObjectID))

	log.Infow("chunk moved", "object", ref.ObjectName, "chunkIndex", ref.Chunk.Index, "from", sourceDrive, "to", destDrive)

	return true, nil
}

func (m *Migrator) placeChunk(size int64, exclude model.DriveID) (model.DriveID, error) {
	attempts := len(m.registry.Snapshot()) + 1
	for i := 0; i < attempts; i++ {
		destDrive, err := m.policy.Choose(m.registry.Snapshot(), size)
		if err != nil {
			return "", err
		}
		if destDrive == exclude {
			return "", ErrEvacuateSelf
		}

		if err := m.registry.Reserve(destDrive, size); err == nil {
			return destDrive, nil
		}
	}

	return "", placement.ErrNoEligibleDrive
}

// sweepStale removes chunk files left on the drive by interrupted
// earlier runs that repointed metadata but crashed before deleting
// the source copy.
func (m *Migrator) sweepStale(ctx context.Context, driveID model.DriveID) {
	mountPath, err := m.registry.MountPath(driveID)
	if err != nil {
		return
	}

	objects, err := m.store.ListObjects(ctx)
	if err != nil {
		return
	}

	for _, object := range objects {
		for _, chunk := range object.Chunks {
			if chunk.DriveID == driveID {
				continue
			}

			stale := chunkstore.ChunkPath(mountPath, object.ID, chunk.Index)
			if _, err := os.Stat(stale); err == nil {
				os.Remove(stale)
				os.Remove(filepath.Dir(stale))
			}
		}
	}
}

// copyVerified streams src into dst while hashing, compares against
// the expected checksum and fsyncs the destination.
func copyVerified(src, dst, expected string) error {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return chunkstore.ErrChunkMissing
		}
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	h := checksum.NewHash()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		out.Close()
		return err
	}

	if checksum.Encode(h) != expected {
		out.Close()
		return ErrSourceCorrupt
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}
