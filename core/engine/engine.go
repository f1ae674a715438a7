package engine

import (
	"context"
	"io"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/babylonpiles/storaged/core/chunkstore"
	"github.com/babylonpiles/storaged/core/ingest"
	"github.com/babylonpiles/storaged/core/migration"
	"github.com/babylonpiles/storaged/core/model"
	"github.com/babylonpiles/storaged/core/placement"
	"github.com/babylonpiles/storaged/core/registry"
	"github.com/babylonpiles/storaged/core/source"
	"github.com/babylonpiles/storaged/lib/logger"
)

var log, _ = logger.New("engine")

// Engine wires the drive registry, placement policy, chunk store,
// ingestion pipeline and migrator into the storage surface exposed to
// external collaborators such as the HTTP API layer.
type Engine struct {
	cfg Config

	Registry *registry.Registry
	Store    *chunkstore.Store
	Pipeline *ingest.Pipeline
	Migrator *migration.Migrator

	metadata   *chunkstore.MetadataStore
	reconciler *chunkstore.Reconciler
	scrubber   *chunkstore.Scrubber
}

func New(cfg Config, probe registry.CapacityProbe) (*Engine, error) {
	reg := registry.NewRegistry(probe)

	for _, mountPath := range cfg.MountPaths {
		if _, err := reg.Register(mountPath); err != nil {
			return nil, err
		}
	}

	var pinned model.DriveID
	if cfg.PinnedDrivePath != "" {
		pinned = model.NewDriveID(cfg.PinnedDrivePath)
	}

	policy, err := placement.New(cfg.PlacementMode, pinned)
	if err != nil {
		return nil, err
	}

	metadata, err := chunkstore.NewMetadataStore(cfg.MetadataDir)
	if err != nil {
		return nil, err
	}

	store := chunkstore.NewStore(reg, policy, metadata, cfg.ChunkSizeBytes)

	pipeline := ingest.NewPipeline(store, ingest.Config{
		ScratchDir:       cfg.ScratchDir,
		ProgressInterval: cfg.ProgressIntervalBytes,
		StallTimeout:     cfg.StallTimeout,
		SourceRetries:    cfg.SourceRetries,
		RetentionWindow:  cfg.JobRetention,
	})

	return &Engine{
		cfg:        cfg,
		Registry:   reg,
		Store:      store,
		Pipeline:   pipeline,
		Migrator:   migration.NewMigrator(store, reg, policy),
		metadata:   metadata,
		reconciler: chunkstore.NewReconciler(store, reg, cfg.ReconcileGrace),
		scrubber:   chunkstore.NewScrubber(store),
	}, nil
}

// Run starts the background monitors and blocks until ctx is
// cancelled. In-flight ingestion jobs are bound to ctx as well.
func (e *Engine) Run(ctx context.Context) error {
	e.Pipeline.SetBaseContext(ctx)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return e.Registry.StartScanMonitor(groupCtx, e.cfg.RefreshInterval)
	})
	group.Go(func() error {
		return e.reconciler.Start(groupCtx, e.cfg.ReconcileInterval)
	})
	group.Go(func() error {
		return e.Pipeline.StartJanitor(groupCtx, e.cfg.JanitorInterval)
	})
	if e.cfg.ScrubInterval > 0 {
		group.Go(func() error {
			return e.scrubber.Start(groupCtx, e.cfg.ScrubInterval)
		})
	}

	log.Infow("engine running", "drives", len(e.Registry.Snapshot()), "chunkSize", e.cfg.ChunkSizeBytes)

	return group.Wait()
}

// Close releases the metadata store.
func (e *Engine) Close() error {
	return e.metadata.Close()
}

// StartIngestion begins pulling name from the descriptor's source.
func (e *Engine) StartIngestion(ctx context.Context, name, descriptor string) (uuid.UUID, error) {
	src, err := source.FromDescriptor(descriptor)
	if err != nil {
		return uuid.Nil, err
	}

	return e.Pipeline.Start(ctx, name, descriptor, src)
}

// StartIngestionFrom begins an ingestion from a caller supplied
// source implementation, for transfer clients living outside the
// engine.
func (e *Engine) StartIngestionFrom(ctx context.Context, name, descriptor string, src source.Source) (uuid.UUID, error) {
	return e.Pipeline.Start(ctx, name, descriptor, src)
}

func (e *Engine) GetIngestionStatus(jobID uuid.UUID) (model.IngestionJob, error) {
	return e.Pipeline.Status(jobID)
}

func (e *Engine) ListIngestions() []model.IngestionJob {
	return e.Pipeline.List()
}

func (e *Engine) CancelIngestion(jobID uuid.UUID) error {
	return e.Pipeline.Cancel(jobID)
}

// OpenObject streams a stored object back, verified chunk by chunk.
func (e *Engine) OpenObject(ctx context.Context, name string) (io.ReadCloser, error) {
	return e.Store.OpenObject(ctx, name)
}

func (e *Engine) StatObject(ctx context.Context, name string) (*model.ObjectMetadata, error) {
	return e.Store.StatObject(ctx, name)
}

func (e *Engine) ListObjects(ctx context.Context) ([]*model.ObjectMetadata, error) {
	return e.Store.ListObjects(ctx)
}

func (e *Engine) DeleteObject(ctx context.Context, name string) error {
	return e.Store.DeleteObject(ctx, name)
}

func (e *Engine) ListDrives() []model.DriveInfo {
	return e.Registry.Snapshot()
}

// ScanDrives forces an immediate capacity and health refresh of all
// registered drives.
func (e *Engine) ScanDrives() {
	e.Registry.ScanAll()
}

func (e *Engine) RegisterDrive(mountPath string) (model.DriveID, error) {
	return e.Registry.Register(mountPath)
}

// DeregisterDrive removes a drive record. It refuses while any chunk
// still references the drive; evacuate first.
func (e *Engine) DeregisterDrive(ctx context.Context, id model.DriveID) error {
	refs, err := e.Store.ChunksOnDrive(ctx, id)
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		return registry.ErrDriveNotEmpty
	}

	return e.Registry.Deregister(id)
}

// EvacuateDrive moves all chunks off a drive onto the remaining ones.
// Blocks until the evacuation finishes or fails.
func (e *Engine) EvacuateDrive(ctx context.Context, id model.DriveID) (model.MigrationTask, error) {
	return e.Migrator.Evacuate(ctx, id)
}

// EngineStatus aggregates storage wide totals for observability.
type EngineStatus struct {
	TotalDrives      int    `json:"total_drives"`
	HealthyDrives    int    `json:"healthy_drives"`
	TotalBytes       uint64 `json:"total_bytes"`
	FreeBytes        uint64 `json:"free_bytes"`
	UsedBytes        uint64 `json:"used_bytes"`
	TotalObjects     int    `json:"total_objects"`
	TotalChunks      int    `json:"total_chunks"`
	ActiveIngestions int    `json:"active_ingestions"`
}

func (e *Engine) Status(ctx context.Context) (EngineStatus, error) {
	var status EngineStatus

	for _, drive := range e.Registry.Snapshot() {
		status.TotalDrives++
		if drive.Health == model.DriveHealthy {
			status.HealthyDrives++
		}
		status.TotalBytes += drive.TotalBytes
		status.FreeBytes += drive.FreeBytes
		status.UsedBytes += drive.UsedBytes
	}

	objects, err := e.Store.ListObjects(ctx)
	if err != nil {
		return status, err
	}

	status.TotalObjects = len(objects)
	for _, object := range objects {
		status.TotalChunks += len(object.Chunks)
	}
	status.ActiveIngestions = e.Pipeline.ActiveCount()

	return status, nil
}
