package gormrepository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"immofeed/internal/db"
	"immofeed/internal/models"
	"immofeed/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return repository.ErrConflict
	default:
		return err
	}
}

// --- Sources ----------------------------------------------------------------

func (s *Store) CreateSource(ctx context.Context, item *models.Source) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Name) == "" {
		return repository.ErrInvalidState
	}
	return translateError(s.db.WithContext(ctx).Create(item).Error)
}

func (s *Store) UpdateSource(ctx context.Context, item *models.Source) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.Source{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"name":        item.Name,
			"source_type": item.SourceType,
			"endpoint":    item.Endpoint,
			"fetch_cfg":   item.FetchCfg,
			"updated_at":  db.NowUTC(),
		})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) GetSourceByID(ctx context.Context, id uint64) (*models.Source, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Source
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &item, nil
}

func (s *Store) ListActiveSources(ctx context.Context) ([]models.Source, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Source
	if err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("name asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSources(ctx context.Context) ([]models.Source, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Source
	if err := s.db.WithContext(ctx).Order("name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SetSourceActive(ctx context.Context, id uint64, active bool) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Source{}).
			Where("id = ?", id).
			Updates(map[string]any{"active": active, "updated_at": db.NowUTC()})
		if res.Error != nil {
			return translateError(res.Error)
		}
		if res.RowsAffected == 0 {
			return repository.ErrNotFound
		}
		if active {
			return nil
		}
		// Deactivation cascade: the source's active listings leave public
		// results together with the source. Soft delete only; the cause lets
		// re-ingestion after reactivation restore them.
		now := db.NowUTC()
		return tx.Model(&models.Listing{}).
			Where("source_id = ? AND status = ?", id, models.ListingStatusActive).
			Updates(map[string]any{
				"status":        models.ListingStatusRemoved,
				"removed_cause": models.RemovalCauseSourceDeactivated,
				"removed_at":    &now,
				"updated_at":    now,
			}).Error
	})
}

// --- Jobs -------------------------------------------------------------------

func (s *Store) CreateJobIfSourceIdle(ctx context.Context, sourceID uint64) (*models.IngestionJob, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var job *models.IngestionJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Row-lock the source so concurrent admission attempts (cron tick
		// plus manual trigger) serialize on the exclusivity check.
		var src models.Source
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&src, "id = ?", sourceID).Error; err != nil {
			return translateError(err)
		}
		if !src.Active {
			return repository.ErrInvalidState
		}
		var active int64
		if err := tx.Model(&models.IngestionJob{}).
			Where("source_id = ? AND status IN ?", sourceID,
				[]string{models.JobStatusPending, models.JobStatusRunning}).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return repository.ErrJobActive
		}
		item := &models.IngestionJob{
			SourceID: sourceID,
			Status:   models.JobStatusPending,
		}
		if err := tx.Create(item).Error; err != nil {
			return err
		}
		job = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Store) StartJob(ctx context.Context, jobID uint64) error {
	if s == nil || s.db == nil {
		return nil
	}
	now := db.NowUTC()
	res := s.db.WithContext(ctx).Model(&models.IngestionJob{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusPending).
		Updates(map[string]any{"status": models.JobStatusRunning, "started_at": &now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrInvalidState
	}
	return nil
}

func (s *Store) FinalizeJob(ctx context.Context, jobID uint64, status string, counters repository.JobCounters, lastError *string) error {
	if s == nil || s.db == nil {
		return nil
	}
	if status != models.JobStatusCompleted && status != models.JobStatusFailed {
		return repository.ErrInvalidState
	}
	now := db.NowUTC()
	res := s.db.WithContext(ctx).Model(&models.IngestionJob{}).
		Where("id = ? AND status IN ?", jobID,
			[]string{models.JobStatusPending, models.JobStatusRunning}).
		Updates(map[string]any{
			"status":      status,
			"found":       counters.Found,
			"new":         counters.New,
			"duplicate":   counters.Duplicate,
			"errored":     counters.Errored,
			"last_error":  lastError,
			"finished_at": &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrInvalidState
	}
	return nil
}

func (s *Store) GetJobByID(ctx context.Context, id uint64) (*models.IngestionJob, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.IngestionJob
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &item, nil
}

func (s *Store) ListRecentJobs(ctx context.Context, limit int) ([]models.IngestionJob, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 50)
	var items []models.IngestionJob
	if err := s.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Listings ---------------------------------------------------------------

func (s *Store) InsertListingIgnoreConflict(ctx context.Context, item *models.Listing) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) FindListingByFingerprint(ctx context.Context, fp string) (*models.Listing, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Listing
	err := s.db.WithContext(ctx).First(&item, "fingerprint = ?", fp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ReactivateListing(ctx context.Context, id uint64) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	// Guarded on the removal cause: opt-out removals must stay removed.
	res := s.db.WithContext(ctx).Model(&models.Listing{}).
		Where("id = ? AND status = ? AND removed_cause = ?",
			id, models.ListingStatusRemoved, models.RemovalCauseSourceDeactivated).
		Updates(map[string]any{
			"status":        models.ListingStatusActive,
			"removed_cause": nil,
			"removed_at":    nil,
			"updated_at":    db.NowUTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) GetListingByID(ctx context.Context, id uint64) (*models.Listing, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Listing
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &item, nil
}

func (s *Store) CountListingsByStatus(ctx context.Context, status string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Listing{}).
		Where("status = ?", status).
		Count(&n).Error
	return n, err
}

// --- Opt-out requests -------------------------------------------------------

func (s *Store) CreateOptOutRequest(ctx context.Context, item *models.OptOutRequest) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return translateError(s.db.WithContext(ctx).Create(item).Error)
}

func (s *Store) GetOptOutRequest(ctx context.Context, id uint64) (*models.OptOutRequest, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.OptOutRequest
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &item, nil
}

func (s *Store) ListOptOutRequests(ctx context.Context, params repository.ListOptOutParams) ([]models.OptOutRequest, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.OptOutRequest{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	limit := normalizeLimit(params.Limit, 100)
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	var items []models.OptOutRequest
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ApproveOptOut(ctx context.Context, requestID uint64) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.OptOutRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&req, "id = ?", requestID).Error; err != nil {
			return translateError(err)
		}
		if req.Status != models.OptOutStatusPending {
			return repository.ErrInvalidState
		}
		now := db.NowUTC()
		// Guarded update: if the listing was removed through another path
		// (a different request, source deactivation) the approval fails
		// rather than silently re-approving.
		res := tx.Model(&models.Listing{}).
			Where("id = ? AND status = ?", req.ListingID, models.ListingStatusActive).
			Updates(map[string]any{
				"status":        models.ListingStatusRemoved,
				"removed_cause": models.RemovalCauseOptOut,
				"removed_at":    &now,
				"updated_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrInvalidState
		}
		return tx.Model(&models.OptOutRequest{}).
			Where("id = ?", requestID).
			Updates(map[string]any{
				"status":     models.OptOutStatusApproved,
				"decided_at": &now,
			}).Error
	})
}

func (s *Store) RejectOptOut(ctx context.Context, requestID uint64, reason string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.OptOutRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&req, "id = ?", requestID).Error; err != nil {
			return translateError(err)
		}
		if req.Status != models.OptOutStatusPending {
			return repository.ErrInvalidState
		}
		now := db.NowUTC()
		return tx.Model(&models.OptOutRequest{}).
			Where("id = ?", requestID).
			Updates(map[string]any{
				"status":          models.OptOutStatusRejected,
				"decision_reason": reason,
				"decided_at":      &now,
			}).Error
	})
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 || limit > 500 {
		return fallback
	}
	return limit
}
