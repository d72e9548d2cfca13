package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"sourcing/internal/clock"
	"sourcing/internal/logger"
	"sourcing/models"
)

// Onboarding runs the vendor application workflow. Approval is the only way a
// vendor profile comes into existence.
type Onboarding struct {
	store  Store
	clock  clock.Clock
	log    logger.Logger
	events *Emitter
	newID  func() string
}

type ApplicationInput struct {
	CompanyName   string
	BusinessEmail string
	Capabilities  []string
	Materials     []string
}

func (o *Onboarding) SubmitApplication(ctx context.Context, actor models.Actor, in ApplicationInput) (models.VendorApplication, error) {
	now := o.clock.Now()
	app := models.VendorApplication{
		ID:            o.newID(),
		ApplicantID:   actor.ID,
		CompanyName:   in.CompanyName,
		BusinessEmail: in.BusinessEmail,
		Capabilities:  pq.StringArray(in.Capabilities),
		Materials:     pq.StringArray(in.Materials),
		Status:        models.ApplicationPending,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}
	if err := app.Validate(); err != nil {
		return models.VendorApplication{}, err
	}
	if err := o.store.CreateApplication(ctx, app); err != nil {
		return models.VendorApplication{}, err
	}
	o.log.Infof(ctx, "vendor application %s submitted by %s", app.ID, app.ApplicantID)
	return app, nil
}

func (o *Onboarding) GetApplication(ctx context.Context, actor models.Actor, id string) (models.VendorApplication, error) {
	app, err := o.store.GetApplication(ctx, id)
	if err != nil {
		return models.VendorApplication{}, err
	}
	if app.ApplicantID != actor.ID && !actor.IsAdmin() {
		return models.VendorApplication{}, models.ErrNotOwner
	}
	return app, nil
}

// StartReview moves a pending application under review.
func (o *Onboarding) StartReview(ctx context.Context, actor models.Actor, id string) (models.VendorApplication, error) {
	return o.decide(ctx, actor, id, models.ApplicationUnderReview, "")
}

// Approve accepts the application and creates or reactivates the applicant's
// vendor profile as verified.
func (o *Onboarding) Approve(ctx context.Context, actor models.Actor, id, notes string) (models.VendorApplication, error) {
	return o.decide(ctx, actor, id, models.ApplicationApproved, notes)
}

func (o *Onboarding) Reject(ctx context.Context, actor models.Actor, id, notes string) (models.VendorApplication, error) {
	return o.decide(ctx, actor, id, models.ApplicationRejected, notes)
}

func (o *Onboarding) decide(ctx context.Context, actor models.Actor, id string, to models.ApplicationStatus, notes string) (models.VendorApplication, error) {
	if !actor.IsAdmin() {
		return models.VendorApplication{}, models.ErrForbidden
	}

	now := o.clock.Now()
	var app models.VendorApplication

	err := o.store.WithTx(ctx, func(txCtx context.Context) error {
		current, err := o.store.GetApplication(txCtx, id)
		if err != nil {
			return err
		}
		allowed := current.Status.Open()
		if to == models.ApplicationUnderReview {
			allowed = current.Status == models.ApplicationPending
		}
		if !allowed {
			return fmt.Errorf("%w: application %s is %s", models.ErrInvalidTransition, current.ID, current.Status)
		}

		app = current
		app.Status = to
		app.UpdatedAt = now
		if to != models.ApplicationUnderReview {
			reviewer := actor.ID
			app.ReviewedBy = &reviewer
			app.ReviewedAt = &now
			app.ReviewNotes = optional(notes)
		}
		if err := o.store.UpdateApplication(txCtx, app, current.Status); err != nil {
			return err
		}

		if to == models.ApplicationApproved {
			if err := o.approveProfile(txCtx, app, now); err != nil {
				return err
			}
		}
		if to == models.ApplicationUnderReview {
			return nil
		}
		return o.events.Emit(txCtx, models.EventApplicationReviewed, Notice{
			Recipient: app.ApplicantID,
			Message:   fmt.Sprintf("Your vendor application for %s was %s", app.CompanyName, app.Status),
			Payload: map[string]any{
				"applicationId": app.ID,
				"status":        app.Status,
			},
		})
	})
	if err != nil {
		return models.VendorApplication{}, err
	}

	o.log.Infof(ctx, "vendor application %s is now %s", app.ID, app.Status)
	return app, nil
}

// approveProfile keeps derived counters of a returning vendor.
func (o *Onboarding) approveProfile(ctx context.Context, app models.VendorApplication, now time.Time) error {
	profile, err := o.store.GetVendorProfile(ctx, app.ApplicantID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	if errors.Is(err, models.ErrNotFound) {
		profile = models.VendorProfile{ID: app.ApplicantID, CreatedAt: now}
	}
	profile.CompanyName = app.CompanyName
	profile.BusinessEmail = app.BusinessEmail
	profile.Capabilities = app.Capabilities
	profile.Materials = app.Materials
	profile.IsVerified = true
	profile.IsActive = true
	profile.UpdatedAt = now
	return o.store.UpsertVendorProfile(ctx, profile)
}

// SetVendorActive lets an admin suspend or restore a vendor's bidding rights.
func (o *Onboarding) SetVendorActive(ctx context.Context, actor models.Actor, vendorID string, active bool) (models.VendorProfile, error) {
	if !actor.IsAdmin() {
		return models.VendorProfile{}, models.ErrForbidden
	}
	var profile models.VendorProfile
	err := o.store.WithTx(ctx, func(txCtx context.Context) error {
		if err := o.store.SetVendorActive(txCtx, vendorID, active, o.clock.Now()); err != nil {
			return err
		}
		var err error
		profile, err = o.store.GetVendorProfile(txCtx, vendorID)
		return err
	})
	if err != nil {
		return models.VendorProfile{}, err
	}
	o.log.Infof(ctx, "vendor %s active=%t", vendorID, active)
	return profile, nil
}

// UpdateCapabilities lets a vendor edit what it can make. Rating and
// completion count stay with the reputation aggregator.
func (o *Onboarding) UpdateCapabilities(ctx context.Context, actor models.Actor, vendorID string, in models.VendorCapabilities) (models.VendorProfile, error) {
	if actor.ID != vendorID && !actor.IsAdmin() {
		return models.VendorProfile{}, models.ErrNotOwner
	}
	if err := in.Normalize(); err != nil {
		return models.VendorProfile{}, err
	}
	var profile models.VendorProfile
	err := o.store.WithTx(ctx, func(txCtx context.Context) error {
		if err := o.store.UpdateVendorCapabilities(txCtx, vendorID, in, o.clock.Now()); err != nil {
			return err
		}
		var err error
		profile, err = o.store.GetVendorProfile(txCtx, vendorID)
		return err
	})
	if err != nil {
		return models.VendorProfile{}, err
	}
	o.log.Infof(ctx, "vendor %s updated capabilities", vendorID)
	return profile, nil
}
