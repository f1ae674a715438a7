package main

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"

	"github.com/babylonpiles/storaged/core/engine"
	"github.com/babylonpiles/storaged/lib/cmap"
	storageRPC "github.com/babylonpiles/storaged/rpc/storage"
)

const readChunkBytes = 1 << 20

var errReadHandleNotFound = errors.New("read handle not found")

// StorageAPI exposes the engine over net/rpc. It is thin glue: every
// method delegates straight to the engine.
type StorageAPI struct {
	Engine  *engine.Engine
	readers cmap.Map[uuid.UUID, io.ReadCloser]
}

func NewStorageAPI(eng *engine.Engine) *StorageAPI {
	return &StorageAPI{
		Engine:  eng,
		readers: cmap.NewMap[uuid.UUID, io.ReadCloser](),
	}
}

func (a *StorageAPI) StartIngestion(args *storageRPC.StartIngestionArgs, reply *storageRPC.StartIngestionReply) error {
	log.Infow("rpc", "event", "StorageAPI.StartIngestion", "name", args.Name, "source", args.SourceDescriptor)

	jobID, err := a.Engine.StartIngestion(context.Background(), args.Name, args.SourceDescriptor)
	if err != nil {
		return err
	}

	reply.JobID = jobID
	return nil
}

func (a *StorageAPI) GetIngestionStatus(args *storageRPC.IngestionStatusArgs, reply *storageRPC.IngestionStatusReply) error {
	job, err := a.Engine.GetIngestionStatus(args.JobID)
	if err != nil {
		return err
	}

	reply.Job = job
	return nil
}

func (a *StorageAPI) ListIngestions(_ *storageRPC.ListIngestionsArgs, reply *storageRPC.ListIngestionsReply) error {
	reply.Jobs = a.Engine.ListIngestions()
	return nil
}

func (a *StorageAPI) CancelIngestion(args *storageRPC.CancelIngestionArgs, _ *storageRPC.CancelIngestionReply) error {
	log.Infow("rpc", "event", "StorageAPI.CancelIngestion", "jobID", args.JobID)
	return a.Engine.CancelIngestion(args.JobID)
}

func (a *StorageAPI) OpenObject(args *storageRPC.OpenObjectArgs, reply *storageRPC.OpenObjectReply) error {
	log.Infow("rpc", "event", "StorageAPI.OpenObject", "name", args.Name)

	object, err := a.Engine.StatObject(context.Background(), args.Name)
	if err != nil {
		return err
	}

	r, err := a.Engine.OpenObject(context.Background(), args.Name)
	if err != nil {
		return err
	}

	handle := uuid.New()
	a.readers.Set(handle, r)

	reply.Handle = handle
	reply.Size = object.Size
	return nil
}

func (a *StorageAPI) ReadObject(args *storageRPC.ReadObjectArgs, reply *storageRPC.ReadObjectReply) error {
	r, exists := a.readers.Get(args.Handle)
	if !exists {
		return errReadHandleNotFound
	}

	maxBytes := args.MaxBytes
	if maxBytes <= 0 || maxBytes > readChunkBytes {
		maxBytes = readChunkBytes
	}

	buf := make([]byte, maxBytes)
	n, err := io.ReadFull(*r, buf)
	reply.Data = buf[:n]

	if err == io.EOF || err == io.ErrUnexpectedEOF {
		reply.EOF = true
		(*r).Close()
		a.readers.Delete(args.Handle)
		return nil
	}

	// stream errors terminate the handle; the client cannot resume a
	// verified read mid chunk
	if err != nil {
		(*r).Close()
		a.readers.Delete(args.Handle)
	}

	return err
}

func (a *StorageAPI) CloseObject(args *storageRPC.CloseObjectArgs, _ *storageRPC.CloseObjectReply) error {
	r, exists := a.readers.Get(args.Handle)
	if !exists {
		return nil
	}

	(*r).Close()
	a.readers.Delete(args.Handle)
	return nil
}

func (a *StorageAPI) StatObject(args *storageRPC.StatObjectArgs, reply *storageRPC.StatObjectReply) error {
	object, err := a.Engine.StatObject(context.Background(), args.Name)
	if err != nil {
		return err
	}

	reply.Object = *object
	return nil
}

func (a *StorageAPI) ListObjects(_ *storageRPC.ListObjectsArgs, reply *storageRPC.ListObjectsReply) error {
	objects, err := a.Engine.ListObjects(context.Background())
	if err != nil {
		return err
	}

	for _, object := range objects {
		reply.Objects = append(reply.Objects, *object)
	}
	return nil
}

func (a *StorageAPI) DeleteObject(args *storageRPC.DeleteObjectArgs, _ *storageRPC.DeleteObjectReply) error {
	log.Infow("rpc", "event", "StorageAPI.DeleteObject", "name", args.Name)
	return a.Engine.DeleteObject(context.Background(), args.Name)
}

func (a *StorageAPI) ListDrives(_ *storageRPC.ListDrivesArgs, reply *storageRPC.ListDrivesReply) error {
	reply.Drives = a.Engine.ListDrives()
	return nil
}

func (a *StorageAPI) ScanDrives(_ *storageRPC.ScanDrivesArgs, reply *storageRPC.ScanDrivesReply) error {
	log.Infow("rpc", "event", "StorageAPI.ScanDrives")
	a.Engine.ScanDrives()
	reply.Drives = a.Engine.ListDrives()
	return nil
}

func (a *StorageAPI) RegisterDrive(args *storageRPC.RegisterDriveArgs, reply *storageRPC.RegisterDriveReply) error {
	log.Infow("rpc", "event", "StorageAPI.RegisterDrive", "mountPath", args.MountPath)

	driveID, err := a.Engine.RegisterDrive(args.MountPath)
	if err != nil {
		return err
	}

	reply.DriveID = driveID
	return nil
}

func (a *StorageAPI) DeregisterDrive(args *storageRPC.DeregisterDriveArgs, _ *storageRPC.DeregisterDriveReply) error {
	log.Infow("rpc", "event", "StorageAPI.DeregisterDrive", "driveID", args.DriveID)
	return a.Engine.DeregisterDrive(context.Background(), args.DriveID)
}

func (a *StorageAPI) EvacuateDrive(args *storageRPC.EvacuateDriveArgs, reply *storageRPC.EvacuateDriveReply) error {
	log.Infow("rpc", "event", "StorageAPI.EvacuateDrive", "driveID", args.DriveID)

	task, err := a.Engine.EvacuateDrive(context.Background(), args.DriveID)
	if err != nil {
		return err
	}

	reply.Task = task
	return nil
}

func (a *StorageAPI) Status(_ *storageRPC.StatusArgs, reply *storageRPC.StatusReply) error {
	status, err := a.Engine.Status(context.Background())
	if err != nil {
		return err
	}

	reply.Status = status
	return nil
}
