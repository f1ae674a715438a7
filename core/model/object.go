package model

import (
	"time"

	"github.com/google/uuid"
)

type ObjectState string

const (
	ObjectStaging   ObjectState = "staging"
	ObjectAvailable ObjectState = "available"
	ObjectDeleted   ObjectState = "deleted"
)

// Chunk is one contiguous slice of an object stored as a single
// file on a single drive. Identity is (object id, index).
type Chunk struct {
	Index    int     `json:"index"`
	DriveID  DriveID `json:"drive_id"`
	Size     int64   `json:"size"`
	Checksum string  `json:"checksum"`
}

type ObjectMetadata struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Size      int64       `json:"size"`
	State     ObjectState `json:"state"`
	Chunks    []Chunk     `json:"chunks"`
	CreatedAt time.Time   `json:"created_at"`
}

func NewObjectMetadata(name string) ObjectMetadata {
	return ObjectMetadata{
		ID:        uuid.New(),
		Name:      name,
		State:     ObjectStaging,
		Chunks:    []Chunk{},
		CreatedAt: time.Now().UTC(),
	}
}
