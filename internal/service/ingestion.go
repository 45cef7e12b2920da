package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/timmy/recipe-ingest/internal/domain"
	"github.com/timmy/recipe-ingest/internal/inbox"
	"github.com/timmy/recipe-ingest/internal/logger"
	"github.com/timmy/recipe-ingest/internal/repository"
)

// ErrAlreadyQueued is returned when a file is already being processed.
var ErrAlreadyQueued = errors.New("file is already queued or processing")

// IngestionConfig holds configuration for the ingestion service.
type IngestionConfig struct {
	Workers        int
	QueueSize      int
	SettleDelay    time.Duration
	StaleAfter     time.Duration
	SweepInterval  time.Duration
	ProcessTimeout time.Duration
	DrainOnStart   bool
}

// IngestionService feeds files from the inbox to a fixed pool of workers.
// The watcher and the startup drain enqueue paths; retried jobs are
// re-enqueued after their backoff delay; a sweeper recovers jobs left in
// PROCESSING by a crash.
type IngestionService struct {
	processor *Processor
	dirs      *inbox.Manager
	watcher   *inbox.Watcher
	cfg       IngestionConfig

	queue   chan string
	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	runCtx context.Context
	timers sync.WaitGroup
}

// NewIngestionService creates a service. Zero config values get defaults.
func NewIngestionService(processor *Processor, dirs *inbox.Manager, supported func(string) bool, cfg IngestionConfig) *IngestionService {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 5 * time.Minute
	}
	return &IngestionService{
		processor: processor,
		dirs:      dirs,
		watcher:   inbox.NewWatcher(dirs.Dir(inbox.AreaInbox), cfg.SettleDelay, supported),
		cfg:       cfg,
		queue:     make(chan string, cfg.QueueSize),
	}
}

// Processor returns the underlying processor.
func (s *IngestionService) Processor() *Processor {
	return s.processor
}

// Start launches the workers, the watcher and the sweeper in the background.
func (s *IngestionService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return fmt.Errorf("ingestion service already running")
	}
	if err := s.dirs.Setup(); err != nil {
		return err
	}

	ctx = logger.SetComponent(ctx, "ingestion")
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.runCtx = runCtx
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)
		defer s.running.Store(false)
		if err := s.run(runCtx); err != nil {
			logger.FromContext(runCtx).WithError(err).Error("Ingestion service stopped with error")
		}
	}()

	logger.With(logger.Fields{"workers": s.cfg.Workers}).Info(ctx, "Ingestion service started")
	return nil
}

// Stop cancels the workers and the watcher and waits for them to exit.
// A job cut off mid-flight stays PROCESSING until the stale sweep sees it.
func (s *IngestionService) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.timers.Wait()

	s.mu.Lock()
	s.cancel, s.runCtx = nil, nil
	s.mu.Unlock()
	logger.CtxInfo(context.Background(), "Ingestion service stopped")
}

func (s *IngestionService) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < s.cfg.Workers; i++ {
		name := fmt.Sprintf("worker-%d", i)
		g.Go(func() error {
			s.worker(logger.SetWorker(ctx, name))
			return nil
		})
	}

	g.Go(func() error {
		return s.watcher.Run(ctx, func(path string) { s.enqueue(ctx, path) })
	})

	g.Go(func() error {
		s.sweep(ctx)
		return nil
	})

	if s.cfg.DrainOnStart {
		g.Go(func() error {
			return s.drain(ctx)
		})
	}

	return g.Wait()
}

// drain enqueues files that were already in the inbox at startup.
func (s *IngestionService) drain(ctx context.Context) error {
	paths, err := s.dirs.ListInbox()
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to list inbox")
		return nil
	}
	queued := 0
	for _, path := range paths {
		if !s.watcher.Claim(path) {
			continue
		}
		if !s.enqueue(ctx, path) {
			s.watcher.Release(path)
			break
		}
		queued++
	}
	logger.With(logger.Fields{logger.FieldCount: queued}).Info(ctx, "Queued existing inbox files")
	return nil
}

// enqueue hands a claimed path to the workers. It blocks while the queue is
// full and gives up when ctx is done.
func (s *IngestionService) enqueue(ctx context.Context, path string) bool {
	select {
	case s.queue <- path:
		logger.CtxDebug(ctx, "Queued %s", path)
		return true
	case <-ctx.Done():
		return false
	}
}

// requeueAfter enqueues a claimed path once delay has passed.
func (s *IngestionService) requeueAfter(ctx context.Context, path string, delay time.Duration) {
	s.timers.Add(1)
	go func() {
		defer s.timers.Done()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
			if !s.enqueue(ctx, path) {
				s.watcher.Release(path)
			}
		case <-ctx.Done():
			s.watcher.Release(path)
		}
	}()
}

func (s *IngestionService) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-s.queue:
			s.handle(ctx, path)
		}
	}
}

// handle processes one queued path and decides whether it comes back.
func (s *IngestionService) handle(ctx context.Context, path string) {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProcessTimeout)
	res := s.processor.ProcessFile(pctx, path)
	cancel()

	if ctx.Err() != nil {
		s.watcher.Release(path)
		return
	}
	s.logResult(ctx, path, res)

	if res.Status == domain.JobStatusPending && res.RetryAfter > 0 {
		s.requeueAfter(ctx, path, res.RetryAfter)
		return
	}
	s.watcher.Release(path)
}

func (s *IngestionService) logResult(ctx context.Context, path string, res domain.ProcessingResult) {
	entry := logger.With(logger.Fields{
		logger.FieldJobID:  res.JobID,
		logger.FieldStatus: string(res.Status),
	})
	name := filepath.Base(path)
	switch {
	case res.Skipped:
		entry.Debug(ctx, "Skipped %s", name)
	case res.IsDuplicate:
		entry.Info(ctx, "Completed (duplicate): %s", name)
	case res.NeedsReview:
		entry.Info(ctx, "Completed (needs review): %s", name)
	case res.Success:
		entry.Info(ctx, "Completed: %s", name)
	case res.ErrorMessage != nil:
		entry.Warn(ctx, "Failed: %s: %s", name, *res.ErrorMessage)
	}
}

// sweep periodically recovers stale PROCESSING jobs and requeues those that
// went back to PENDING.
func (s *IngestionService) sweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepStale(ctx)
		}
	}
}

// SweepStale runs one staleness sweep and returns how many jobs it recovered.
func (s *IngestionService) SweepStale(ctx context.Context) int {
	before := time.Now().Add(-s.cfg.StaleAfter)
	recovered, err := s.processor.RecoverStale(ctx, before, s.watcher.Claimed)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Stale job sweep failed")
		return 0
	}
	for _, r := range recovered {
		if r.Result.Status != domain.JobStatusPending || !s.running.Load() {
			continue
		}
		if _, err := os.Stat(r.Job.CurrentPath); err != nil {
			continue
		}
		if s.watcher.Claim(r.Job.CurrentPath) {
			s.requeueAfter(ctx, r.Job.CurrentPath, r.Result.RetryAfter)
		}
	}
	if len(recovered) > 0 {
		logger.With(logger.Fields{logger.FieldCount: len(recovered)}).Warn(ctx, "Recovered stale jobs")
	}
	return len(recovered)
}

// ProcessSingleFile processes path synchronously on the caller's goroutine.
// When the service is running and the job is scheduled for a retry, the
// retry goes through the worker queue.
func (s *IngestionService) ProcessSingleFile(ctx context.Context, path string) (domain.ProcessingResult, error) {
	if !s.watcher.Claim(path) {
		return domain.ProcessingResult{}, fmt.Errorf("%w: %s", ErrAlreadyQueued, path)
	}
	return s.processClaimed(ctx, path), nil
}

// processClaimed processes a path the caller has claimed and releases the
// claim unless a retry was scheduled.
func (s *IngestionService) processClaimed(ctx context.Context, path string) domain.ProcessingResult {
	res := s.processor.ProcessFile(ctx, path)

	if s.running.Load() && res.Status == domain.JobStatusPending && res.RetryAfter > 0 {
		s.requeueAfter(s.backgroundContext(), path, res.RetryAfter)
	} else {
		s.watcher.Release(path)
	}
	return res
}

// Upload writes r into the inbox under a unique name derived from filename
// and processes it synchronously.
func (s *IngestionService) Upload(ctx context.Context, filename string, r io.Reader) (domain.ProcessingResult, error) {
	if err := s.dirs.Setup(); err != nil {
		return domain.ProcessingResult{}, err
	}
	dest := inbox.UniquePath(s.dirs.Dir(inbox.AreaInbox), filepath.Base(filename))

	// Claim before the file exists so the watcher cannot pick it up half written.
	if !s.watcher.Claim(dest) {
		return domain.ProcessingResult{}, fmt.Errorf("%w: %s", ErrAlreadyQueued, dest)
	}
	if err := writeFile(dest, r); err != nil {
		s.watcher.Release(dest)
		return domain.ProcessingResult{}, err
	}
	logger.CtxInfo(ctx, "Uploaded file saved to: %s", dest)

	return s.processClaimed(ctx, dest), nil
}

func writeFile(dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return f.Close()
}

// Reprocess resets a FAILED or DLQ job and processes its file again.
func (s *IngestionService) Reprocess(ctx context.Context, jobID string) (domain.ProcessingResult, error) {
	job, err := s.processor.PrepareReprocess(ctx, jobID)
	if err != nil {
		return domain.ProcessingResult{}, err
	}
	return s.ProcessSingleFile(ctx, job.CurrentPath)
}

// Review applies a reviewer decision. A job sent back for revision is
// queued again when the service is running.
func (s *IngestionService) Review(ctx context.Context, jobID string, decision domain.ReviewDecision, notes string) (*ReviewOutcome, error) {
	out, err := s.processor.Review(ctx, jobID, decision, notes)
	if err != nil {
		return nil, err
	}
	if decision == domain.ReviewNeedsRevision && s.running.Load() {
		path := out.Job.CurrentPath
		if s.watcher.Claim(path) {
			s.requeueAfter(s.backgroundContext(), path, 0)
		}
	}
	return out, nil
}

// backgroundContext is the running service's context, or Background when stopped.
func (s *IngestionService) backgroundContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}

// GetJob returns a job by ID.
func (s *IngestionService) GetJob(ctx context.Context, id string) (*domain.IngestionJob, error) {
	return s.processor.Jobs.GetByID(ctx, id)
}

// ListJobs returns a page of jobs and the total matching count.
func (s *IngestionService) ListJobs(ctx context.Context, filter repository.JobFilter) ([]domain.IngestionJob, int64, error) {
	return s.processor.Jobs.List(ctx, filter)
}

// SimilarRecipes returns the scored similar recipes of a review job.
func (s *IngestionService) SimilarRecipes(ctx context.Context, jobID string) ([]SimilarRecipe, error) {
	return s.processor.SimilarRecipes(ctx, jobID)
}

// Stats summarizes the job table.
func (s *IngestionService) Stats(ctx context.Context) (domain.IngestionStats, error) {
	return s.processor.Stats(ctx)
}

// CleanupOld removes old files from the processed and failed areas.
func (s *IngestionService) CleanupOld(ctx context.Context, days int) (int, error) {
	return s.dirs.CleanupOld(ctx, days)
}

// ServiceStatus is a snapshot of the service for the status endpoint.
type ServiceStatus struct {
	Running        bool              `json:"running"`
	Workers        int               `json:"workers"`
	QueueLength    int               `json:"queue_length"`
	QueueCapacity  int               `json:"queue_capacity"`
	InFlight       int               `json:"in_flight"`
	WatcherRunning bool              `json:"watcher_running"`
	Directories    map[string]string `json:"directories"`
}

// Status reports whether the service is running and how busy it is.
func (s *IngestionService) Status() ServiceStatus {
	return ServiceStatus{
		Running:        s.running.Load(),
		Workers:        s.cfg.Workers,
		QueueLength:    len(s.queue),
		QueueCapacity:  cap(s.queue),
		InFlight:       s.watcher.InFlight(),
		WatcherRunning: s.watcher.Running(),
		Directories:    s.dirs.Dirs(),
	}
}
