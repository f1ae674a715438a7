package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/babylonpiles/storaged/core/model"
	"github.com/babylonpiles/storaged/core/placement"
	"github.com/babylonpiles/storaged/core/registry"
	"github.com/babylonpiles/storaged/lib/checksum"
	"github.com/babylonpiles/storaged/lib/logger"
)

var log, _ = logger.New("chunkstore")

var (
	ErrNotFound         = errors.New("object not found")
	ErrAlreadyExists    = errors.New("object already exists")
	ErrChunkMissing     = errors.New("chunk file missing")
	ErrChecksumMismatch = errors.New("chunk checksum mismatch")
	ErrChunkOutOfRange  = errors.New("chunk index out of range")
)

// ChunkRef identifies one stored chunk together with its owning object.
type ChunkRef struct {
	ObjectName string
	ObjectID   uuid.UUID
	Chunk      model.Chunk
}

// Store splits objects into fixed maximum size chunks spread across
// drives and reassembles them on read. It exclusively owns on-disk
// chunk files and their metadata records.
type Store struct {
	registry  *registry.Registry
	policy    placement.Policy
	metadata  *MetadataStore
	chunkSize int64
}

func NewStore(reg *registry.Registry, policy placement.Policy, metadata *MetadataStore, chunkSize int64) *Store {
	return &Store{
		registry:  reg,
		policy:    policy,
		metadata:  metadata,
		chunkSize: chunkSize,
	}
}

func (s *Store) ChunkSize() int64 {
	return s.chunkSize
}

// ChunkDir returns the directory holding an object's chunks on a drive.
func ChunkDir(mountPath string, objectID uuid.UUID) string {
	return filepath.Join(mountPath, "chunks", objectID.String())
}

// ChunkPath returns the deterministic path of a chunk file.
func ChunkPath(mountPath string, objectID uuid.UUID, index int) string {
	return filepath.Join(ChunkDir(mountPath, objectID), fmt.Sprintf("%d.chunk", index))
}

type reservation struct {
	driveID model.DriveID
	size    int64
}

// PutObject consumes r, writes it out as placed chunks and registers
// the object with a single atomic metadata put. The object is never
// visible in a partially written state: on any failure all chunk files
// written so far are removed and reservations released.
func (s *Store) PutObject(ctx context.Context, name string, r io.Reader) (*model.ObjectMetadata, error) {
	exists, err := s.metadata.Has(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyExists
	}

	object := model.NewObjectMetadata(name)
	reservations := make([]reservation, 0)

	fail := func(cause error) (*model.ObjectMetadata, error) {
		for _, res := range reservations {
			s.registry.Release(res.driveID, res.size)
		}
		s.removeChunkFiles(object)
		return nil, cause
	}

	buf := make([]byte, s.chunkSize)
	for index := 0; ; index++ {
		n, readErr := io.ReadFull(r, buf)
		if readErr == io.EOF {
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			return fail(readErr)
		}

		data := buf[:n]
		driveID, err := s.placeChunk(int64(n))
		if err != nil {
			return fail(err)
		}
		reservations = append(reservations, reservation{driveID: driveID, size: int64(n)})

		mountPath, err := s.registry.MountPath(driveID)
		if err != nil {
			return fail(err)
		}

		if err := writeChunkFile(ChunkPath(mountPath, object.ID, index), data); err != nil {
			return fail(err)
		}

		object.Chunks = append(object.Chunks, model.Chunk{
			Index:    index,
			DriveID:  driveID,
			Size:     int64(n),
			Checksum: checksum.Sum(data),
		})
		object.Size += int64(n)

		if readErr == io.ErrUnexpectedEOF {
			break
		}
	}

	object.State = model.ObjectAvailable
	if err := s.metadata.Put(ctx, object); err != nil {
		return fail(err)
	}

	for _, res := range reservations {
		s.registry.Commit(res.driveID, res.size)
	}

	log.Infow("object stored", "name", name, "objectID", object.ID, "size", object.Size, "chunks", len(object.Chunks))

	return &object, nil
}

// placeChunk asks the policy for a drive and reserves the chunk's bytes
// on it. Reservation can lose a race against a concurrent placement, so
// the snapshot is retaken and the choice retried a bounded number of
// times before the capacity error surfaces.
func (s *Store) placeChunk(size int64) (model.DriveID, error) {
	attempts := len(s.registry.Snapshot()) + 1
	for i := 0; i < attempts; i++ {
		driveID, err := s.policy.Choose(s.registry.Snapshot(), size)
		if err != nil {
			return "", err
		}

		if err := s.registry.Reserve(driveID, size); err == nil {
			return driveID, nil
		}
	}

	return "", placement.ErrNoEligibleDrive
}

// ObjectExists reports whether a metadata record exists for name.
func (s *Store) ObjectExists(ctx context.Context, name string) (bool, error) {
	return s.metadata.Has(ctx, name)
}

// StatObject returns the metadata record of an available object.
func (s *Store) StatObject(ctx context.Context, name string) (*model.ObjectMetadata, error) {
	return s.metadata.Get(ctx, name)
}

// ListObjects returns metadata for every stored object.
func (s *Store) ListObjects(ctx context.Context) ([]*model.ObjectMetadata, error) {
	return s.metadata.All(ctx)
}

// OpenObject opens a verified byte stream over the object's chunks in
// index order. Checksum or missing chunk failures surface as stream
// errors at the point of failure; bytes already yielded are not
// retracted, so callers must discard everything read on error.
func (s *Store) OpenObject(ctx context.Context, name string) (io.ReadCloser, error) {
	object, err := s.metadata.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	return newObjectReader(ctx, s, object), nil
}

// DeleteObject removes chunk files first and the metadata record last,
// so a crash mid delete leaves orphan files for the reconciler instead
// of a record pointing at missing data.
func (s *Store) DeleteObject(ctx context.Context, name string) error {
	object, err := s.metadata.Get(ctx, name)
	if err != nil {
		return err
	}

	s.removeChunkFiles(*object)

	if err := s.metadata.Delete(ctx, name); err != nil {
		return err
	}

	log.Infow("object deleted", "name", name, "objectID", object.ID)

	return nil
}

// ChunksOnDrive lists every chunk currently placed on the given drive.
func (s *Store) ChunksOnDrive(ctx context.Context, driveID model.DriveID) ([]ChunkRef, error) {
	objects, err := s.metadata.All(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]ChunkRef, 0)
	for _, object := range objects {
		for _, chunk := range object.Chunks {
			if chunk.DriveID == driveID {
				refs = append(refs, ChunkRef{ObjectName: object.Name, ObjectID: object.ID, Chunk: chunk})
			}
		}
	}

	return refs, nil
}

// RepointChunk atomically rebinds one chunk to a new drive. Already
// repointed chunks are left untouched so migration stays idempotent.
func (s *Store) RepointChunk(ctx context.Context, name string, index int, newDrive model.DriveID) error {
	object, err := s.metadata.Get(ctx, name)
	if err != nil {
		return err
	}

	if index < 0 || index >= len(object.Chunks) {
		return ErrChunkOutOfRange
	}

	if object.Chunks[index].DriveID == newDrive {
		return nil
	}

	object.Chunks[index].DriveID = newDrive
	return s.metadata.Put(ctx, *object)
}

// VerifyObject re-reads every chunk of an object and checks it against
// the recorded checksum. Used by the scrubber and after migrations.
func (s *Store) VerifyObject(ctx context.Context, name string) error {
	object, err := s.metadata.Get(ctx, name)
	if err != nil {
		return err
	}

	for _, chunk := range object.Chunks {
		mountPath, err := s.registry.MountPath(chunk.DriveID)
		if err != nil {
			return err
		}

		if err := verifyChunkFile(ChunkPath(mountPath, object.ID, chunk.Index), chunk.Checksum); err != nil {
			return fmt.Errorf("object %s chunk %d on drive %s: %w", name, chunk.Index, chunk.DriveID, err)
		}
	}

	return nil
}

func (s *Store) removeChunkFiles(object model.ObjectMetadata) {
	for _, chunk := range object.Chunks {
		mountPath, err := s.registry.MountPath(chunk.DriveID)
		if err != nil {
			continue
		}

		if err := os.Remove(ChunkPath(mountPath, object.ID, chunk.Index)); err != nil && !os.IsNotExist(err) {
			log.Errorw("failed to remove chunk file", "objectID", object.ID, "chunkIndex", chunk.Index, "error", err)
		}
		// removes the per object dir once its last chunk is gone
		os.Remove(ChunkDir(mountPath, object.ID))
	}
}

func writeChunkFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	return syncDir(filepath.Dir(path))
}

func verifyChunkFile(path string, expected string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrChunkMissing
		}
		return err
	}
	defer f.Close()

	sum, _, err := checksum.SumReader(f)
	if err != nil {
		return err
	}

	if sum != expected {
		return ErrChecksumMismatch
	}

	return nil
}

func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Sync()
}
