package engine

import (
	"context"
	"fmt"
	"strings"

	"sourcing/models"
)

type ReviewInput struct {
	AssignmentID        string
	Rating              int
	QualityRating       *int
	DeliveryRating      *int
	CommunicationRating *int
	Text                string
}

// SubmitReview records the buyer's review of a completed assignment and
// refreshes the vendor's reputation.
func (r *Reputation) SubmitReview(ctx context.Context, actor models.Actor, in ReviewInput) (models.Review, error) {
	review := models.Review{
		ID:                  r.newID(),
		AssignmentID:        in.AssignmentID,
		ReviewerID:          actor.ID,
		Rating:              in.Rating,
		QualityRating:       in.QualityRating,
		DeliveryRating:      in.DeliveryRating,
		CommunicationRating: in.CommunicationRating,
		Text:                optional(strings.TrimSpace(in.Text)),
	}
	if err := review.Validate(); err != nil {
		return models.Review{}, err
	}

	err := r.store.WithTx(ctx, func(txCtx context.Context) error {
		a, err := r.store.GetAssignment(txCtx, in.AssignmentID)
		if err != nil {
			return err
		}
		order, err := r.store.GetOrder(txCtx, a.OrderID)
		if err != nil {
			return err
		}
		if order.BuyerID != actor.ID {
			return models.ErrNotOwner
		}
		if a.Status != models.AssignmentCompleted {
			return fmt.Errorf("%w: assignment %s is %s", models.ErrInvalidReview, a.ID, a.Status)
		}

		now := r.clock.Now()
		review.VendorID = a.VendorID
		review.CreatedAt = now
		if err := r.store.CreateReview(txCtx, review); err != nil {
			return err
		}

		quality := review.Rating
		if review.QualityRating != nil {
			quality = *review.QualityRating
		}
		if err := r.store.SetQualityRating(txCtx, a.ID, quality, now); err != nil {
			return err
		}
		if err := r.recompute(txCtx, a.VendorID); err != nil {
			return err
		}
		return r.events.Emit(txCtx, models.EventReviewSubmitted, Notice{
			Recipient:    a.VendorID,
			OrderID:      a.OrderID,
			AssignmentID: a.ID,
			Message:      fmt.Sprintf("You received a %d star review for %q", review.Rating, order.Title),
			Payload: map[string]any{
				"reviewId":     review.ID,
				"assignmentId": a.ID,
				"rating":       review.Rating,
			},
		})
	})
	if err != nil {
		return models.Review{}, err
	}

	r.log.Infof(ctx, "review %s submitted for assignment %s", review.ID, review.AssignmentID)
	return review, nil
}

func (r *Reputation) ListVendorReviews(ctx context.Context, vendorID string, page models.Page) ([]models.Review, error) {
	return r.store.ListVendorReviews(ctx, vendorID, page)
}
