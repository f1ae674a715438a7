package chunkstore

import (
	"context"
	"hash"
	"io"
	"os"

	"github.com/babylonpiles/storaged/core/model"
	"github.com/babylonpiles/storaged/lib/checksum"
)

// objectReader streams an object back by walking its chunks in index
// order, hashing each chunk as it is read and verifying the recorded
// checksum at every chunk boundary.
//
// Chunk locations are resolved from the metadata record at chunk open
// time, not once up front, so a read overlapping a migration observes
// either the pre or the post move location, never a half moved chunk.
type objectReader struct {
	ctx       context.Context
	store     *Store
	object    model.ObjectMetadata
	index     int
	current   *os.File
	hash      hash.Hash
	expected  string
	chunkRead int64
}

func newObjectReader(ctx context.Context, store *Store, object *model.ObjectMetadata) *objectReader {
	return &objectReader{
		ctx:    ctx,
		store:  store,
		object: *object,
	}
}

func (r *objectReader) Read(p []byte) (int, error) {
	for {
		if r.current == nil {
			if r.index >= len(r.object.Chunks) {
				return 0, io.EOF
			}
			if err := r.openChunk(); err != nil {
				return 0, err
			}
		}

		n, err := r.current.Read(p)
		if n > 0 {
			r.hash.Write(p[:n])
			r.chunkRead += int64(n)
		}

		if err == io.EOF {
			if verr := r.finishChunk(); verr != nil {
				return n, verr
			}
			if n > 0 {
				return n, nil
			}
			continue
		}

		return n, err
	}
}

// openChunk resolves the chunk's current drive and opens its file.
// A chunk file can disappear between the metadata fetch and the open
// when a migration repoints it, so a missing file is retried once with
// freshly fetched metadata before surfacing ErrChunkMissing.
func (r *objectReader) openChunk() error {
	for attempt := 0; attempt < 2; attempt++ {
		object, err := r.store.metadata.Get(r.ctx, r.object.Name)
		if err != nil {
			return err
		}
		if r.index >= len(object.Chunks) {
			return ErrChunkMissing
		}

		chunk := object.Chunks[r.index]
		mountPath, err := r.store.registry.MountPath(chunk.DriveID)
		if err != nil {
			return err
		}

		f, err := os.Open(ChunkPath(mountPath, object.ID, chunk.Index))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		r.current = f
		r.hash = checksum.NewHash()
		r.expected = chunk.Checksum
		r.chunkRead = 0

		return nil
	}

	log.Errorw("chunk file missing on read", "name", r.object.Name, "chunkIndex", r.index)

	return ErrChunkMissing
}

func (r *objectReader) finishChunk() error {
	sum := checksum.Encode(r.hash)
	r.current.Close()
	r.current = nil

	if sum != r.expected {
		log.Errorw("chunk checksum mismatch on read",
			"name", r.object.Name, "chunkIndex", r.index, "expected", r.expected, "got", sum)
		return ErrChecksumMismatch
	}

	r.index++

	return nil
}

func (r *objectReader) Close() error {
	if r.current != nil {
		err := r.current.Close()
		r.current = nil
		return err
	}

	return nil
}
