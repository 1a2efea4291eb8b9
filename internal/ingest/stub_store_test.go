package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"immofeed/internal/models"
	"immofeed/internal/repository"
)

// stubStore is an in-memory Store with the same admission and uniqueness
// semantics as the database-backed repository.
type stubStore struct {
	mu        sync.Mutex
	sources   map[uint64]*models.Source
	jobs      map[uint64]*models.IngestionJob
	listings  map[string]*models.Listing
	nextJobID uint64
	nextLstID uint64
}

func newStubStore() *stubStore {
	return &stubStore{
		sources:  make(map[uint64]*models.Source),
		jobs:     make(map[uint64]*models.IngestionJob),
		listings: make(map[string]*models.Listing),
	}
}

func (s *stubStore) addSource(src models.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := src
	s.sources[cp.ID] = &cp
}

func (s *stubStore) jobByID(id uint64) models.IngestionJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *stubStore) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *stubStore) removeAllListings(cause string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, l := range s.listings {
		c := cause
		l.Status = models.ListingStatusRemoved
		l.RemovedCause = &c
		l.RemovedAt = &now
	}
}

func (s *stubStore) activeListingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.listings {
		if l.Status == models.ListingStatusActive {
			n++
		}
	}
	return n
}

func (s *stubStore) ListActiveSources(ctx context.Context) ([]models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Source
	for _, src := range s.sources {
		if src.Active {
			out = append(out, *src)
		}
	}
	return out, nil
}

func (s *stubStore) GetSourceByID(ctx context.Context, id uint64) (*models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *src
	return &cp, nil
}

func (s *stubStore) CreateJobIfSourceIdle(ctx context.Context, sourceID uint64) (*models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !src.Active {
		return nil, repository.ErrInvalidState
	}
	for _, j := range s.jobs {
		if j.SourceID == sourceID && (j.Status == models.JobStatusPending || j.Status == models.JobStatusRunning) {
			return nil, repository.ErrJobActive
		}
	}
	s.nextJobID++
	job := &models.IngestionJob{
		ID:        s.nextJobID,
		SourceID:  sourceID,
		Status:    models.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	s.jobs[job.ID] = job
	cp := *job
	return &cp, nil
}

func (s *stubStore) StartJob(ctx context.Context, jobID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	if job.Status != models.JobStatusPending {
		return repository.ErrInvalidState
	}
	now := time.Now().UTC()
	job.Status = models.JobStatusRunning
	job.StartedAt = &now
	return nil
}

func (s *stubStore) FinalizeJob(ctx context.Context, jobID uint64, status string, counters repository.JobCounters, lastError *string) error {
	if status != models.JobStatusCompleted && status != models.JobStatusFailed {
		return fmt.Errorf("not a terminal status: %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	if job.Terminal() {
		return repository.ErrInvalidState
	}
	now := time.Now().UTC()
	job.Status = status
	job.Found = counters.Found
	job.New = counters.New
	job.Duplicate = counters.Duplicate
	job.Errored = counters.Errored
	job.LastError = lastError
	job.FinishedAt = &now
	return nil
}

func (s *stubStore) FindListingByFingerprint(ctx context.Context, fp string) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[fp]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (s *stubStore) InsertListingIgnoreConflict(ctx context.Context, item *models.Listing) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[item.Fingerprint]; ok {
		return false, nil
	}
	s.nextLstID++
	item.ID = s.nextLstID
	cp := *item
	s.listings[cp.Fingerprint] = &cp
	return true, nil
}

func (s *stubStore) ReactivateListing(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listings {
		if l.ID != id {
			continue
		}
		if l.Status != models.ListingStatusRemoved ||
			l.RemovedCause == nil || *l.RemovedCause != models.RemovalCauseSourceDeactivated {
			return false, nil
		}
		l.Status = models.ListingStatusActive
		l.RemovedCause = nil
		l.RemovedAt = nil
		return true, nil
	}
	return false, nil
}
