package ingest

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"immofeed/internal/config"
	"immofeed/internal/models"
	"immofeed/internal/repository"
)

// Scheduler admits one job per idle active source and runs admitted jobs on
// a bounded worker pool. The per-source exclusivity invariant is enforced by
// the job store at admission, so concurrent scheduling calls (cron tick plus
// a manual trigger) stay safe.
type Scheduler struct {
	Repo     Store
	Pipeline *Pipeline
	Logger   *zap.Logger

	cfg config.SchedulerConfig
	sem chan struct{}

	mu      sync.Mutex
	base    context.Context
	cancels map[uint64]launchHandle
	wg      sync.WaitGroup
}

// launchHandle ties a source's cancel func to the job it was registered for,
// so a finished job cannot unregister the cancel func of a job admitted for
// the same source in the meantime.
type launchHandle struct {
	jobID  uint64
	cancel context.CancelFunc
}

func NewScheduler(repo Store, pipeline *Pipeline, cfg config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Repo:     repo,
		Pipeline: pipeline,
		Logger:   logger,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.Workers),
		cancels:  make(map[uint64]launchHandle),
	}
}

// Start binds the scheduler's job lifecycle to ctx. Jobs launched from a
// short-lived trigger (an admin request) outlive the trigger but end with
// this context. Without Start, jobs run under context.Background.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base != nil {
		return s.base
	}
	return context.Background()
}

// RunEligibleSources admits a job for every active source that has none
// pending or running, then launches the admitted jobs. Sources already busy
// are skipped, which makes repeated invocation a no-op for them.
func (s *Scheduler) RunEligibleSources(ctx context.Context) error {
	sources, err := s.Repo.ListActiveSources(ctx)
	if err != nil {
		return err
	}

	for i := range sources {
		src := sources[i]
		job, err := s.Repo.CreateJobIfSourceIdle(ctx, src.ID)
		switch {
		case errors.Is(err, repository.ErrJobActive):
			continue
		case errors.Is(err, repository.ErrInvalidState):
			// Deactivated between listing and admission.
			continue
		case err != nil:
			s.Logger.Error("job admission failed",
				zap.Uint64("source_id", src.ID),
				zap.Error(err),
			)
			continue
		}
		s.launch(job, &src)
	}
	return nil
}

// RunSource admits and launches one job for a single source, for manual
// triggering. ErrJobActive and ErrInvalidState pass through to the caller.
func (s *Scheduler) RunSource(ctx context.Context, sourceID uint64) (*models.IngestionJob, error) {
	src, err := s.Repo.GetSourceByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	job, err := s.Repo.CreateJobIfSourceIdle(ctx, src.ID)
	if err != nil {
		return nil, err
	}
	s.launch(job, src)
	return job, nil
}

// CancelSource cancels the in-flight job for a source, if any. The pipeline
// observes the cancellation at its next stage boundary and records the job
// as failed with cause cancelled.
func (s *Scheduler) CancelSource(sourceID uint64) bool {
	s.mu.Lock()
	h, ok := s.cancels[sourceID]
	s.mu.Unlock()
	if ok {
		h.cancel()
	}
	return ok
}

func (s *Scheduler) register(sourceID, jobID uint64, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[sourceID] = launchHandle{jobID: jobID, cancel: cancel}
	s.mu.Unlock()
}

// release drops the source's cancel registration, but only while it still
// belongs to the given job. A newer job's registration stays in place.
func (s *Scheduler) release(sourceID, jobID uint64) {
	s.mu.Lock()
	if h, ok := s.cancels[sourceID]; ok && h.jobID == jobID {
		delete(s.cancels, sourceID)
	}
	s.mu.Unlock()
}

// Wait blocks until every launched job has finished. Called on shutdown
// after the parent context is cancelled.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) launch(job *models.IngestionJob, src *models.Source) {
	jctx, cancel := context.WithCancel(s.baseContext())
	s.register(src.ID, job.ID, cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			cancel()
			s.release(src.ID, job.ID)
		}()

		select {
		case s.sem <- struct{}{}:
		case <-jctx.Done():
			// Admitted but never started; release the exclusivity
			// token so the source is schedulable again.
			cause := causeCancelled
			if err := s.Repo.FinalizeJob(context.WithoutCancel(jctx), job.ID, models.JobStatusFailed, repository.JobCounters{}, &cause); err != nil {
				s.Logger.Error("finalize unstarted job", zap.Uint64("job_id", job.ID), zap.Error(err))
			}
			return
		}
		defer func() { <-s.sem }()

		runCtx := jctx
		if s.cfg.JobTimeout > 0 {
			var cancelTimeout context.CancelFunc
			runCtx, cancelTimeout = context.WithTimeout(jctx, s.cfg.JobTimeout)
			defer cancelTimeout()
		}

		if err := s.Pipeline.Execute(runCtx, job, src); err != nil {
			s.Logger.Error("pipeline execution fault",
				zap.Uint64("job_id", job.ID),
				zap.Uint64("source_id", src.ID),
				zap.Error(err),
			)
		}
	}()
}
