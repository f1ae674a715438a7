package engine

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config carries all engine tunables explicitly instead of process
// wide state. Loaded from STORAGED_* environment variables by the
// daemon; tests construct it directly.
type Config struct {
	MountPaths  []string `envconfig:"MOUNT_PATHS"`
	MetadataDir string   `envconfig:"METADATA_DIR" default:"/var/lib/storaged/metadata"`
	ScratchDir  string   `envconfig:"SCRATCH_DIR" default:"/var/lib/storaged/scratch"`

	ChunkSizeBytes        int64  `envconfig:"CHUNK_SIZE_BYTES" default:"104857600"`
	PlacementMode         string `envconfig:"PLACEMENT_MODE" default:"most-free"`
	PinnedDrivePath       string `envconfig:"PINNED_DRIVE_PATH"`
	ProgressIntervalBytes int64  `envconfig:"PROGRESS_INTERVAL_BYTES" default:"524288"`
	SourceRetries         uint64 `envconfig:"SOURCE_RETRIES" default:"3"`

	StallTimeout      time.Duration `envconfig:"STALL_TIMEOUT" default:"1h"`
	RefreshInterval   time.Duration `envconfig:"REFRESH_INTERVAL" default:"60s"`
	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"5m"`
	ReconcileGrace    time.Duration `envconfig:"RECONCILE_GRACE" default:"1h"`
	ScrubInterval     time.Duration `envconfig:"SCRUB_INTERVAL" default:"24h"`
	JobRetention      time.Duration `envconfig:"JOB_RETENTION" default:"1h"`
	JanitorInterval   time.Duration `envconfig:"JANITOR_INTERVAL" default:"1m"`
}

func GetConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process("storaged", &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
