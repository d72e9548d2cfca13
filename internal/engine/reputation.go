package engine

import (
	"context"

	"sourcing/internal/clock"
	"sourcing/internal/logger"
	"sourcing/models"
)

// Reputation derives vendor rating and completion count from completed
// assignments and their reviews. It recomputes from scratch every time.
type Reputation struct {
	store  Store
	clock  clock.Clock
	log    logger.Logger
	events *Emitter
	newID  func() string
}

// ComputeReputation returns the mean review rating over the given completed
// work, ignoring unrated entries, and the number of completed assignments.
// Rating is 0 when nothing is rated.
func ComputeReputation(work []models.CompletedWork) (rating float64, completed int) {
	var sum, rated int
	for _, w := range work {
		if w.Rating == nil {
			continue
		}
		sum += *w.Rating
		rated++
	}
	if rated > 0 {
		rating = float64(sum) / float64(rated)
	}
	return rating, len(work)
}

// Recompute refreshes the vendor's derived counters and returns the profile.
func (r *Reputation) Recompute(ctx context.Context, vendorID string) (models.VendorProfile, error) {
	var profile models.VendorProfile
	err := r.store.WithTx(ctx, func(txCtx context.Context) error {
		if err := r.recompute(txCtx, vendorID); err != nil {
			return err
		}
		var err error
		profile, err = r.store.GetVendorProfile(txCtx, vendorID)
		return err
	})
	if err != nil {
		return models.VendorProfile{}, err
	}
	return profile, nil
}

func (r *Reputation) recompute(ctx context.Context, vendorID string) error {
	work, err := r.store.ListCompletedWork(ctx, vendorID)
	if err != nil {
		return err
	}
	rating, completed := ComputeReputation(work)
	if err := r.store.UpdateVendorReputation(ctx, vendorID, rating, completed, r.clock.Now()); err != nil {
		return err
	}
	r.log.Debugf(ctx, "vendor %s reputation: rating=%.2f completed=%d", vendorID, rating, completed)
	return nil
}

func (r *Reputation) GetVendorProfile(ctx context.Context, vendorID string) (models.VendorProfile, error) {
	return r.store.GetVendorProfile(ctx, vendorID)
}
