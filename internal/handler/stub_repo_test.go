package handler

import (
	"context"
	"sort"
	"sync"
	"time"

	"immofeed/internal/models"
	"immofeed/internal/repository"
)

// stubRepo is an in-memory repository.Repository for handler tests.
type stubRepo struct {
	mu       sync.Mutex
	sources  map[uint64]*models.Source
	jobs     map[uint64]*models.IngestionJob
	listings map[uint64]*models.Listing
	optouts  map[uint64]*models.OptOutRequest
	nextID   uint64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		sources:  make(map[uint64]*models.Source),
		jobs:     make(map[uint64]*models.IngestionJob),
		listings: make(map[uint64]*models.Listing),
		optouts:  make(map[uint64]*models.OptOutRequest),
	}
}

func (s *stubRepo) addListing(l models.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := l
	s.listings[cp.ID] = &cp
}

func (s *stubRepo) addSource(src models.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := src
	s.sources[cp.ID] = &cp
}

func (s *stubRepo) CreateSource(ctx context.Context, item *models.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.sources {
		if src.Name == item.Name {
			return repository.ErrConflict
		}
	}
	s.nextID++
	item.ID = s.nextID
	cp := *item
	s.sources[cp.ID] = &cp
	return nil
}

func (s *stubRepo) UpdateSource(ctx context.Context, item *models.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[item.ID]; !ok {
		return repository.ErrNotFound
	}
	for _, src := range s.sources {
		if src.ID != item.ID && src.Name == item.Name {
			return repository.ErrConflict
		}
	}
	cp := *item
	s.sources[cp.ID] = &cp
	return nil
}

func (s *stubRepo) GetSourceByID(ctx context.Context, id uint64) (*models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *src
	return &cp, nil
}

func (s *stubRepo) ListActiveSources(ctx context.Context) ([]models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Source
	for _, src := range s.sources {
		if src.Active {
			out = append(out, *src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) ListSources(ctx context.Context) ([]models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Source
	for _, src := range s.sources {
		out = append(out, *src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) SetSourceActive(ctx context.Context, id uint64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return repository.ErrNotFound
	}
	src.Active = active
	if !active {
		now := time.Now().UTC()
		cause := models.RemovalCauseSourceDeactivated
		for _, l := range s.listings {
			if l.SourceID == id && l.Status == models.ListingStatusActive {
				l.Status = models.ListingStatusRemoved
				l.RemovedCause = &cause
				l.RemovedAt = &now
			}
		}
	}
	return nil
}

func (s *stubRepo) CreateJobIfSourceIdle(ctx context.Context, sourceID uint64) (*models.IngestionJob, error) {
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
		if j.SourceID == sourceID && !j.Terminal() {
			return nil, repository.ErrJobActive
		}
	}
	s.nextID++
	job := &models.IngestionJob{ID: s.nextID, SourceID: sourceID, Status: models.JobStatusPending, CreatedAt: time.Now().UTC()}
	s.jobs[job.ID] = job
	cp := *job
	return &cp, nil
}

func (s *stubRepo) StartJob(ctx context.Context, jobID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	if job.Status != models.JobStatusPending {
		return repository.ErrInvalidState
	}
	job.Status = models.JobStatusRunning
	return nil
}

func (s *stubRepo) FinalizeJob(ctx context.Context, jobID uint64, status string, counters repository.JobCounters, lastError *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	if job.Terminal() {
		return repository.ErrInvalidState
	}
	job.Status = status
	job.Found = counters.Found
	job.New = counters.New
	job.Duplicate = counters.Duplicate
	job.Errored = counters.Errored
	job.LastError = lastError
	return nil
}

func (s *stubRepo) GetJobByID(ctx context.Context, id uint64) (*models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *stubRepo) ListRecentJobs(ctx context.Context, limit int) ([]models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.IngestionJob
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubRepo) InsertListingIgnoreConflict(ctx context.Context, item *models.Listing) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listings {
		if l.Fingerprint == item.Fingerprint {
			return false, nil
		}
	}
	s.nextID++
	item.ID = s.nextID
	cp := *item
	s.listings[cp.ID] = &cp
	return true, nil
}

func (s *stubRepo) FindListingByFingerprint(ctx context.Context, fp string) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listings {
		if l.Fingerprint == fp {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ReactivateListing(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok || l.Status != models.ListingStatusRemoved ||
		l.RemovedCause == nil || *l.RemovedCause != models.RemovalCauseSourceDeactivated {
		return false, nil
	}
	l.Status = models.ListingStatusActive
	l.RemovedCause = nil
	l.RemovedAt = nil
	return true, nil
}

func (s *stubRepo) GetListingByID(ctx context.Context, id uint64) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *stubRepo) CountListingsByStatus(ctx context.Context, status string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, l := range s.listings {
		if l.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) CreateOptOutRequest(ctx context.Context, item *models.OptOutRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	item.ID = s.nextID
	cp := *item
	s.optouts[cp.ID] = &cp
	return nil
}

func (s *stubRepo) GetOptOutRequest(ctx context.Context, id uint64) (*models.OptOutRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.optouts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *stubRepo) ListOptOutRequests(ctx context.Context, params repository.ListOptOutParams) ([]models.OptOutRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OptOutRequest
	for _, req := range s.optouts {
		if params.Status != nil && req.Status != *params.Status {
			continue
		}
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *stubRepo) ApproveOptOut(ctx context.Context, requestID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.optouts[requestID]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != models.OptOutStatusPending {
		return repository.ErrInvalidState
	}
	l, ok := s.listings[req.ListingID]
	if !ok {
		return repository.ErrNotFound
	}
	if l.Status != models.ListingStatusActive {
		return repository.ErrInvalidState
	}
	now := time.Now().UTC()
	cause := models.RemovalCauseOptOut
	l.Status = models.ListingStatusRemoved
	l.RemovedCause = &cause
	l.RemovedAt = &now
	req.Status = models.OptOutStatusApproved
	req.DecidedAt = &now
	return nil
}

func (s *stubRepo) RejectOptOut(ctx context.Context, requestID uint64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.optouts[requestID]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != models.OptOutStatusPending {
		return repository.ErrInvalidState
	}
	now := time.Now().UTC()
	req.Status = models.OptOutStatusRejected
	req.DecisionReason = &reason
	req.DecidedAt = &now
	return nil
}
