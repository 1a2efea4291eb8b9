// Package optout owns the takedown workflow: request intake, the
// approve/reject decisions that are the sole path suppressing a listing,
// and a background sweep that clears requests that can no longer be served.
package optout

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"immofeed/internal/config"
	"immofeed/internal/models"
	"immofeed/internal/repository"
)

// Store is the slice of the repository the processor touches.
type Store interface {
	repository.OptOutRepository
	GetListingByID(ctx context.Context, id uint64) (*models.Listing, error)
}

// Processor drives opt-out requests from pending to a terminal decision.
type Processor struct {
	Repo     Store
	Interval time.Duration
	Logger   *zap.Logger
}

func NewProcessor(repo Store, cfg config.OptOutConfig, logger *zap.Logger) *Processor {
	interval := cfg.ScanInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{Repo: repo, Interval: interval, Logger: logger}
}

// Submit records a new pending request. The target must resolve to an
// active listing; removed listings are reported as not found so suppression
// stays invisible to requesters.
func (p *Processor) Submit(ctx context.Context, req *models.OptOutRequest) error {
	listing, err := p.Repo.GetListingByID(ctx, req.ListingID)
	if err != nil {
		return err
	}
	if listing.Status != models.ListingStatusActive {
		return repository.ErrNotFound
	}
	req.Status = models.OptOutStatusPending
	return p.Repo.CreateOptOutRequest(ctx, req)
}

// Approve marks the request approved and removes its listing atomically.
// Terminal requests, and requests whose listing was removed through another
// path, fail with ErrInvalidState.
func (p *Processor) Approve(ctx context.Context, requestID uint64) error {
	if err := p.Repo.ApproveOptOut(ctx, requestID); err != nil {
		return err
	}
	p.Logger.Info("opt-out approved", zap.Uint64("request_id", requestID))
	return nil
}

// Reject marks the request rejected. The listing is untouched.
func (p *Processor) Reject(ctx context.Context, requestID uint64, reason string) error {
	if err := p.Repo.RejectOptOut(ctx, requestID, reason); err != nil {
		return err
	}
	p.Logger.Info("opt-out rejected", zap.Uint64("request_id", requestID), zap.String("reason", reason))
	return nil
}

// Run sweeps pending requests on an interval until the context ends.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.Logger.Error("opt-out sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep auto-rejects pending requests that can no longer be approved:
// the listing is gone, or was already removed through another path. Requests
// against live listings are left for an operator decision.
func (p *Processor) Sweep(ctx context.Context) error {
	status := models.OptOutStatusPending
	pending, err := p.Repo.ListOptOutRequests(ctx, repository.ListOptOutParams{Status: &status, Limit: 200})
	if err != nil {
		return err
	}

	for i := range pending {
		req := &pending[i]
		listing, err := p.Repo.GetListingByID(ctx, req.ListingID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			if err := p.Reject(ctx, req.ID, "unknown listing"); err != nil && !errors.Is(err, repository.ErrInvalidState) {
				return err
			}
		case err != nil:
			return err
		case listing.Status != models.ListingStatusActive:
			if err := p.Reject(ctx, req.ID, "listing already removed"); err != nil && !errors.Is(err, repository.ErrInvalidState) {
				return err
			}
		}
	}
	return nil
}
