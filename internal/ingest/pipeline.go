// Package ingest runs ingestion jobs: the per-job pipeline that turns a
// source's raw feed into deduplicated listings, and the scheduler that admits
// and executes jobs under the per-source exclusivity invariant.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"immofeed/internal/config"
	"immofeed/internal/fingerprint"
	"immofeed/internal/models"
	"immofeed/internal/repository"
	"immofeed/internal/source"
)

// causeCancelled is the recorded failure cause for cooperatively cancelled
// jobs. Cancellation is checked between stages, never mid-fetch.
const causeCancelled = "cancelled"

// Store is the slice of the repository the scheduler and pipeline touch.
type Store interface {
	ListActiveSources(ctx context.Context) ([]models.Source, error)
	GetSourceByID(ctx context.Context, id uint64) (*models.Source, error)
	CreateJobIfSourceIdle(ctx context.Context, sourceID uint64) (*models.IngestionJob, error)
	StartJob(ctx context.Context, jobID uint64) error
	FinalizeJob(ctx context.Context, jobID uint64, status string, counters repository.JobCounters, lastError *string) error
	FindListingByFingerprint(ctx context.Context, fp string) (*models.Listing, error)
	InsertListingIgnoreConflict(ctx context.Context, item *models.Listing) (bool, error)
	ReactivateListing(ctx context.Context, id uint64) (bool, error)
}

// Pipeline executes one admitted job through fetch, normalize, dedup and
// upsert, then finalizes its counters. Record-level faults are counted, not
// fatal; only fetch exhaustion, storage faults and cancellation fail a job.
type Pipeline struct {
	Repo   Store
	Client *http.Client
	Fetch  config.FetchConfig
	Logger *zap.Logger
}

func NewPipeline(repo Store, client *http.Client, fetchCfg config.FetchConfig, logger *zap.Logger) *Pipeline {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{Repo: repo, Client: client, Fetch: fetchCfg, Logger: logger}
}

// Execute drives the job to a terminal status. It returns an error only for
// store faults that left the job non-terminal; a job failing on its own
// terms (retries exhausted, cancellation) is recorded and absorbed so the
// scheduler and other sources' jobs are unaffected.
func (p *Pipeline) Execute(ctx context.Context, job *models.IngestionJob, src *models.Source) error {
	log := p.Logger.With(
		zap.Uint64("job_id", job.ID),
		zap.Uint64("source_id", src.ID),
		zap.String("source", src.Name),
	)

	if err := p.Repo.StartJob(ctx, job.ID); err != nil {
		return err
	}

	var counters repository.JobCounters

	fetcher, err := source.ForSource(src, p.Client, p.Fetch.UserAgent)
	if err != nil {
		return p.fail(ctx, job.ID, counters, causeOf("fetch", err), log)
	}

	log.Info("job started", zap.String("stage", "fetching"))
	records, err := p.fetchWithRetry(ctx, fetcher, log)
	if err != nil {
		return p.fail(ctx, job.ID, counters, causeOf("fetch", err), log)
	}
	counters.Found = len(records)

	if err := ctx.Err(); err != nil {
		return p.fail(ctx, job.ID, counters, causeCancelled, log)
	}

	log.Debug("records fetched", zap.Int("found", counters.Found), zap.String("stage", "normalizing"))
	canon := make([]canonical, 0, len(records))
	raws := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		c, err := normalizeRecord(rec)
		if err != nil {
			counters.Errored++
			log.Debug("record skipped", zap.Error(err))
			continue
		}
		canon = append(canon, c)
		raws = append(raws, rawPayload(rec))
	}

	if err := ctx.Err(); err != nil {
		return p.fail(ctx, job.ID, counters, causeCancelled, log)
	}

	log.Debug("records normalized", zap.Int("normalized", len(canon)), zap.String("stage", "deduping"))
	for i, c := range canon {
		fp := fingerprint.Compute(c.Title, c.Price, c.City, c.Surface)

		existing, err := p.Repo.FindListingByFingerprint(ctx, fp)
		if err != nil {
			return p.fail(ctx, job.ID, counters, causeOf("dedup", err), log)
		}
		if existing != nil {
			if existing.Status == models.ListingStatusRemoved &&
				existing.RemovedCause != nil && *existing.RemovedCause == models.RemovalCauseSourceDeactivated {
				// The listing was removed because its source was
				// deactivated, not by an opt-out; seeing the content
				// again reactivates it. The store re-checks the cause,
				// so a concurrent opt-out approval wins.
				restored, err := p.Repo.ReactivateListing(ctx, existing.ID)
				if err != nil {
					return p.fail(ctx, job.ID, counters, causeOf("dedup", err), log)
				}
				if restored {
					counters.New++
					continue
				}
			}
			counters.Duplicate++
			continue
		}

		listing := &models.Listing{
			Fingerprint: fp,
			SourceID:    src.ID,
			Title:       c.Title,
			Price:       c.Price,
			City:        c.City,
			SurfaceM2:   c.Surface,
			URL:         c.URL,
			Status:      models.ListingStatusActive,
			RawJSON:     datatypes.JSON(raws[i]),
		}
		inserted, err := p.Repo.InsertListingIgnoreConflict(ctx, listing)
		if err != nil {
			return p.fail(ctx, job.ID, counters, causeOf("upsert", err), log)
		}
		if inserted {
			counters.New++
		} else {
			// Lost the insert race to a concurrent job; same outcome
			// as the dedup check finding the row first.
			counters.Duplicate++
		}
	}

	if err := p.Repo.FinalizeJob(context.WithoutCancel(ctx), job.ID, models.JobStatusCompleted, counters, nil); err != nil {
		return err
	}
	log.Info("job completed",
		zap.Int("found", counters.Found),
		zap.Int("new", counters.New),
		zap.Int("duplicate", counters.Duplicate),
		zap.Int("errored", counters.Errored),
	)
	return nil
}

func (p *Pipeline) fail(ctx context.Context, jobID uint64, counters repository.JobCounters, cause string, log *zap.Logger) error {
	if err := p.Repo.FinalizeJob(context.WithoutCancel(ctx), jobID, models.JobStatusFailed, counters, &cause); err != nil {
		log.Error("finalize failed job", zap.Error(err))
		return err
	}
	log.Warn("job failed", zap.String("cause", cause))
	return nil
}

// causeOf prefixes the failing stage, except for cancellation which is
// always recorded with the bare cancelled cause.
func causeOf(stage string, err error) string {
	if errors.Is(err, context.Canceled) {
		return causeCancelled
	}
	return stage + ": " + err.Error()
}

// fetchWithRetry retries transient fetch failures with exponential backoff
// and jitter up to the configured attempt budget. Permanent failures and
// cancellation abort immediately.
func (p *Pipeline) fetchWithRetry(ctx context.Context, f source.Fetcher, log *zap.Logger) ([]source.RawRecord, error) {
	attempts := p.Fetch.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		fctx := ctx
		var cancel context.CancelFunc
		if p.Fetch.Timeout > 0 {
			fctx, cancel = context.WithTimeout(ctx, p.Fetch.Timeout)
		}
		records, err := f.FetchRaw(fctx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return records, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !source.IsTransient(err) {
			return nil, err
		}
		if attempt == attempts {
			break
		}

		delay := backoffDelay(p.Fetch.BackoffBase, attempt)
		log.Warn("fetch attempt failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	d := base << (attempt - 1)
	return d + rand.N(d/2+1)
}

// rawPayload preserves the feed's own bytes when the adapter kept them,
// falling back to re-encoding the extracted fields.
func rawPayload(rec source.RawRecord) json.RawMessage {
	if len(rec.Raw) > 0 {
		return rec.Raw
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil
	}
	return b
}
