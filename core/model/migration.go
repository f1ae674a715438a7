package model

import (
	"time"

	"github.com/google/uuid"
)

type MigrationState string

const (
	MigrationRunning   MigrationState = "running"
	MigrationCompleted MigrationState = "completed"
	MigrationFailed    MigrationState = "failed"
)

// MigrationTask tracks evacuation of a single drive.
type MigrationTask struct {
	ID           uuid.UUID      `json:"id"`
	SourceDrive  DriveID        `json:"source_drive"`
	State        MigrationState `json:"state"`
	ChunksTotal  int            `json:"chunks_total"`
	ChunksMoved  int            `json:"chunks_moved"`
	Error        string         `json:"error,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  time.Time      `json:"completed_at,omitempty"`
}
