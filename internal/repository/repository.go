package repository

import (
	"context"
	"errors"

	"immofeed/internal/models"
)

// Sentinel errors shared across stores. Handlers and services branch on these
// with errors.Is; the gorm implementation translates driver errors into them.
var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned on a uniqueness violation (source name).
	// Fingerprint conflicts are not errors; see InsertListingIgnoreConflict.
	ErrConflict = errors.New("conflicting record exists")
	// ErrInvalidState is returned on an illegal transition, such as
	// finalizing a terminal job or deciding a decided opt-out request.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrJobActive is returned by CreateJobIfSourceIdle while a pending or
	// running job exists for the source.
	ErrJobActive = errors.New("source already has an active job")
)

// JobCounters are the per-record outcomes accumulated by one pipeline run.
type JobCounters struct {
	Found     int
	New       int
	Duplicate int
	Errored   int
}

type SourceRepository interface {
	// CreateSource inserts a new source. Duplicate names fail with ErrConflict.
	CreateSource(ctx context.Context, item *models.Source) error
	// UpdateSource persists config edits. Renaming onto an existing name
	// fails with ErrConflict.
	UpdateSource(ctx context.Context, item *models.Source) error
	GetSourceByID(ctx context.Context, id uint64) (*models.Source, error)
	ListActiveSources(ctx context.Context) ([]models.Source, error)
	ListSources(ctx context.Context) ([]models.Source, error)
	// SetSourceActive flips the activation flag. Deactivation soft-removes
	// the source's active listings in the same transaction.
	SetSourceActive(ctx context.Context, id uint64, active bool) error
}

type JobRepository interface {
	// CreateJobIfSourceIdle atomically checks the per-source exclusivity
	// invariant and creates a pending job. Returns ErrJobActive when a
	// pending or running job exists, ErrInvalidState for inactive sources.
	CreateJobIfSourceIdle(ctx context.Context, sourceID uint64) (*models.IngestionJob, error)
	// StartJob moves a pending job to running.
	StartJob(ctx context.Context, jobID uint64) error
	// FinalizeJob writes the terminal status and counters. Jobs already
	// terminal are immutable; finalizing one returns ErrInvalidState.
	FinalizeJob(ctx context.Context, jobID uint64, status string, counters JobCounters, lastError *string) error
	GetJobByID(ctx context.Context, id uint64) (*models.IngestionJob, error)
	// ListRecentJobs returns jobs newest first, bounded by limit.
	ListRecentJobs(ctx context.Context, limit int) ([]models.IngestionJob, error)
}

type ListingRepository interface {
	// InsertListingIgnoreConflict inserts through the fingerprint unique
	// index. A conflict is the expected dedup outcome, reported as
	// inserted=false with a nil error.
	InsertListingIgnoreConflict(ctx context.Context, item *models.Listing) (inserted bool, err error)
	// FindListingByFingerprint returns (nil, nil) when no listing matches.
	FindListingByFingerprint(ctx context.Context, fp string) (*models.Listing, error)
	// ReactivateListing flips a deactivation-removed listing back to active.
	// Reports restored=false for rows that are active or removed for any
	// other cause, so opt-out suppression is never undone.
	ReactivateListing(ctx context.Context, id uint64) (restored bool, err error)
	GetListingByID(ctx context.Context, id uint64) (*models.Listing, error)
	CountListingsByStatus(ctx context.Context, status string) (int64, error)
}

type ListOptOutParams struct {
	Status *string
	Limit  int
	Offset int
}

type OptOutRepository interface {
	CreateOptOutRequest(ctx context.Context, item *models.OptOutRequest) error
	GetOptOutRequest(ctx context.Context, id uint64) (*models.OptOutRequest, error)
	ListOptOutRequests(ctx context.Context, params ListOptOutParams) ([]models.OptOutRequest, error)
	// ApproveOptOut atomically marks the request approved and its listing
	// removed. Non-pending requests, and requests whose listing is no
	// longer active, fail with ErrInvalidState.
	ApproveOptOut(ctx context.Context, requestID uint64) error
	// RejectOptOut marks the request rejected; the listing is untouched.
	RejectOptOut(ctx context.Context, requestID uint64, reason string) error
}

// Repository is the unified store handed to services and handlers.
type Repository interface {
	SourceRepository
	JobRepository
	ListingRepository
	OptOutRepository
}
