package storage

import (
	"github.com/google/uuid"

	"github.com/babylonpiles/storaged/core/engine"
	"github.com/babylonpiles/storaged/core/model"
)

type StartIngestionArgs struct {
	Name             string
	SourceDescriptor string
}

type StartIngestionReply struct {
	JobID uuid.UUID
}

type IngestionStatusArgs struct {
	JobID uuid.UUID
}

type IngestionStatusReply struct {
	Job model.IngestionJob
}

type ListIngestionsArgs struct {
}

type ListIngestionsReply struct {
	Jobs []model.IngestionJob
}

type CancelIngestionArgs struct {
	JobID uuid.UUID
}

type CancelIngestionReply struct {
}

type OpenObjectArgs struct {
	Name string
}

type OpenObjectReply struct {
	Handle uuid.UUID
	Size   int64
}

type ReadObjectArgs struct {
	Handle   uuid.UUID
	MaxBytes int
}

type ReadObjectReply struct {
	Data []byte
	EOF  bool
}

type CloseObjectArgs struct {
	Handle uuid.UUID
}

type CloseObjectReply struct {
}

type StatObjectArgs struct {
	Name string
}

type StatObjectReply struct {
	Object model.ObjectMetadata
}

type ListObjectsArgs struct {
}

type ListObjectsReply struct {
	Objects []model.ObjectMetadata
}

type DeleteObjectArgs struct {
	Name string
}

type DeleteObjectReply struct {
}

type ListDrivesArgs struct {
}

type ListDrivesReply struct {
	Drives []model.DriveInfo
}

type ScanDrivesArgs struct {
}

type ScanDrivesReply struct {
	Drives []model.DriveInfo
}

type RegisterDriveArgs struct {
	MountPath string
}

type RegisterDriveReply struct {
	DriveID model.DriveID
}

type DeregisterDriveArgs struct {
	DriveID model.DriveID
}

type DeregisterDriveReply struct {
}

type EvacuateDriveArgs struct {
	DriveID model.DriveID
}

type EvacuateDriveReply struct {
	Task model.MigrationTask
}

type StatusArgs struct {
}

type StatusReply struct {
	Status engine.EngineStatus
}
