package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/babylonpiles/storaged/core/chunkstore"
	"github.com/babylonpiles/storaged/core/model"
	"github.com/babylonpiles/storaged/core/placement"
	"github.com/babylonpiles/storaged/core/source"
	"github.com/babylonpiles/storaged/lib/cmap"
	"github.com/babylonpiles/storaged/lib/logger"
)

var log, _ = logger.New("ingest")

var (
	ErrAlreadyInProgress = errors.New("ingestion already in progress for object")
	ErrJobNotFound       = errors.New("ingestion job not found")
	ErrSizeMismatch      = errors.New("transferred bytes do not match expected length")
	ErrStalledTransfer   = errors.New("transfer made no progress within stall timeout")
)

// Failure reasons reported on terminal jobs.
const (
	ReasonSourceUnreachable = "source_unreachable"
	ReasonSizeMismatch      = "size_mismatch"
	ReasonNoEligibleDrive   = "no_eligible_drive"
	ReasonStalledTransfer   = "stalled_transfer"
	ReasonTimeout           = "timeout"
)

const copyBufferSize = 128 * 1024

type Config struct {
	ScratchDir       string
	ProgressInterval int64
	StallTimeout     time.Duration
	SourceRetries    uint64
	RetentionWindow  time.Duration
}

// Pipeline pulls bytes from sources into a staging area and promotes
// completed, verified transfers into the chunk store. Each job owns
// its staging file exclusively until promotion hands the bytes over.
type Pipeline struct {
	store *chunkstore.Store
	cfg   Config

	jobs cmap.Map[uuid.UUID, *job]

	mu       sync.Mutex
	inFlight map[string]uuid.UUID

	baseCtx context.Context
}

func NewPipeline(store *chunkstore.Store, cfg Config) *Pipeline {
	return &Pipeline{
		store:    store,
		cfg:      cfg,
		jobs:     cmap.NewMap[uuid.UUID, *job](),
		inFlight: map[string]uuid.UUID{},
		baseCtx:  context.Background(),
	}
}

// SetBaseContext rebinds job lifetimes to ctx so engine shutdown stops
// in-flight transfers. Jobs are otherwise detached from caller contexts.
func (p *Pipeline) SetBaseContext(ctx context.Context) {
	p.baseCtx = ctx
}

// Start begins ingesting name from src. A second request for an
// in-flight name fails fast with ErrAlreadyInProgress rather than
// queuing; a name that already stores an object is refused outright.
func (p *Pipeline) Start(ctx context.Context, name, descriptor string, src source.Source) (uuid.UUID, error) {
	exists, err := p.store.ObjectExists(ctx, name)
	if err != nil {
		return uuid.Nil, err
	}
	if exists {
		return uuid.Nil, chunkstore.ErrAlreadyExists
	}

	jobCtx, cancel := context.WithCancel(p.baseCtx)
	j := newJob(name, descriptor, cancel)

	p.mu.Lock()
	if _, busy := p.inFlight[name]; busy {
		p.mu.Unlock()
		cancel()
		return uuid.Nil, ErrAlreadyInProgress
	}
	p.inFlight[name] = j.record.ID
	p.mu.Unlock()

	p.jobs.Set(j.record.ID, j)

	log.Infow("ingestion started", "jobID", j.record.ID, "name", name, "source", descriptor)

	go p.run(jobCtx, j, src)

	return j.record.ID, nil
}

// Status returns a copy of the job record. Terminal jobs stay
// queryable until the janitor prunes them after the retention window.
func (p *Pipeline) Status(jobID uuid.UUID) (model.IngestionJob, error) {
	j, exists := p.jobs.Get(jobID)
	if !exists {
		return model.IngestionJob{}, ErrJobNotFound
	}

	return (*j).snapshot(), nil
}

// List returns records of all tracked jobs.
func (p *Pipeline) List() []model.IngestionJob {
	records := make([]model.IngestionJob, 0)
	for _, j := range p.jobs.Values() {
		records = append(records, j.snapshot())
	}

	return records
}

// Cancel requests cooperative cancellation of a job. In-flight disk
// writes are not killed; the pipeline abandons the transfer at its
// next check point and removes staging artifacts.
func (p *Pipeline) Cancel(jobID uuid.UUID) error {
	j, exists := p.jobs.Get(jobID)
	if !exists {
		return ErrJobNotFound
	}

	(*j).markUserCancel()

	return nil
}

func (p *Pipeline) run(ctx context.Context, j *job, src source.Source) {
	defer src.Close()

	record := j.snapshot()
	stagingPath := filepath.Join(p.cfg.ScratchDir, record.ID.String()+".staging")

	defer func() {
		os.Remove(stagingPath)
		p.mu.Lock()
		delete(p.inFlight, record.ObjectName)
		p.mu.Unlock()
	}()

	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go p.watchStall(j, watchdogDone)

	written, err := p.transfer(ctx, j, src, stagingPath)
	if err != nil {
		p.finishFailed(j, err)
		return
	}

	j.setState(model.JobVerifying)

	if expected, known := src.ExpectedLength(); known && written != expected {
		log.Errorw("size mismatch after transfer", "jobID", record.ID, "expected", expected, "got", written)
		p.finishFailed(j, ErrSizeMismatch)
		return
	}

	if err := p.promote(ctx, j, stagingPath); err != nil {
		p.finishFailed(j, err)
		return
	}

	j.setState(model.JobCommitted)
	log.Infow("ingestion committed", "jobID", record.ID, "name", record.ObjectName, "bytes", written)
}

// transfer streams source bytes into the staging file, reporting
// progress every ProgressInterval bytes. Transient source errors
// restart the whole transfer with exponential backoff, bounded by
// SourceRetries.
func (p *Pipeline) transfer(ctx context.Context, j *job, src source.Source, stagingPath string) (int64, error) {
	if err := os.MkdirAll(p.cfg.ScratchDir, 0750); err != nil {
		return 0, err
	}

	var written int64

	attempt := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		stream, err := src.Open(ctx)
		if err != nil {
			if errors.Is(err, source.ErrInvalidSource) {
				return backoff.Permanent(err)
			}
			return err
		}
		defer stream.Close()

		if expected, known := src.ExpectedLength(); known {
			j.setExpectedBytes(expected)
		}

		f, err := os.OpenFile(stagingPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer f.Close()

		written, err = p.copyWithProgress(ctx, j, f, stream)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		return f.Sync()
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.cfg.SourceRetries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return written, err
	}

	return written, nil
}

func (p *Pipeline) copyWithProgress(ctx context.Context, j *job, dst io.Writer, stream io.Reader) (int64, error) {
	buf := make([]byte, copyBufferSize)

	var written, lastReport int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)

			if written-lastReport >= p.cfg.ProgressInterval {
				j.setBytesTransferred(written)
				lastReport = written
			}
		}

		if err == io.EOF {
			j.setBytesTransferred(written)
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// promote re-streams the staging file through the chunk store. Only
// after this succeeds does the object become visible as available.
func (p *Pipeline) promote(ctx context.Context, j *job, stagingPath string) error {
	record := j.snapshot()

	f, err := os.Open(stagingPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = p.store.PutObject(ctx, record.ObjectName, f)
	return err
}

// watchStall forces a job to fail when no forward progress happens
// within the stall timeout, so dead transfers do not hold their
// object name forever.
func (p *Pipeline) watchStall(j *job, done <-chan struct{}) {
	if p.cfg.StallTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(p.cfg.StallTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if j.sinceProgress() >= p.cfg.StallTimeout {
				record := j.snapshot()
				log.Warnw("transfer stalled, aborting", "jobID", record.ID, "name", record.ObjectName)
				j.markStalled()
				return
			}
		}
	}
}

// finishFailed resolves the terminal state and typed failure reason of
// an unsuccessful job. Cancellation is reported distinctly from
// failure but cleaned up identically.
func (p *Pipeline) finishFailed(j *job, cause error) {
	j.mu.Lock()
	stalled, userCancel := j.stalled, j.userCancel
	j.mu.Unlock()

	record := j.snapshot()

	switch {
	case userCancel:
		j.setState(model.JobCancelled)
		log.Infow("ingestion cancelled", "jobID", record.ID, "name", record.ObjectName)
		return
	case stalled:
		j.fail(ReasonStalledTransfer)
	case errors.Is(cause, source.ErrUnreachable), errors.Is(cause, source.ErrInvalidSource):
		j.fail(ReasonSourceUnreachable)
	case errors.Is(cause, ErrSizeMismatch):
		j.fail(ReasonSizeMismatch)
	case errors.Is(cause, placement.ErrNoEligibleDrive):
		j.fail(ReasonNoEligibleDrive)
	case errors.Is(cause, context.DeadlineExceeded):
		j.fail(ReasonTimeout)
	default:
		j.fail(fmt.Sprintf("io error: %v", cause))
	}

	log.Errorw("ingestion failed", "jobID", record.ID, "name", record.ObjectName, "error", cause)
}
