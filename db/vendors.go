package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"sourcing/models"
)

const profileColumns = `id, company_name, business_email, capabilities, materials, is_verified, is_active,
    rating, total_orders_completed, created_at, updated_at`

func (s *Storage) GetVendorProfile(ctx context.Context, id string) (models.VendorProfile, error) {
	var p models.VendorProfile
	query := `SELECT ` + profileColumns + ` FROM vendor_profiles WHERE id = $1`
	if err := sqlx.GetContext(ctx, s.ext(ctx), &p, query, id); err != nil {
		return models.VendorProfile{}, notFound(err, "get vendor profile")
	}
	return p, nil
}

func (s *Storage) UpsertVendorProfile(ctx context.Context, p models.VendorProfile) error {
	query := `
        INSERT INTO vendor_profiles (` + profileColumns + `)
        VALUES
            (:id, :company_name, :business_email, :capabilities, :materials, :is_verified, :is_active,
             :rating, :total_orders_completed, :created_at, :updated_at)
        ON CONFLICT (id) DO UPDATE SET
            company_name = EXCLUDED.company_name,
            business_email = EXCLUDED.business_email,
            capabilities = EXCLUDED.capabilities,
            materials = EXCLUDED.materials,
            is_verified = EXCLUDED.is_verified,
            is_active = EXCLUDED.is_active,
            updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, s.ext(ctx), query, p); err != nil {
		return fmt.Errorf("upsert vendor profile: %w", err)
	}
	return nil
}

func (s *Storage) SetVendorActive(ctx context.Context, id string, active bool, at time.Time) error {
	query := `UPDATE vendor_profiles SET is_active = $1, updated_at = $2 WHERE id = $3`
	return s.updateExisting(ctx, "set vendor active", query, active, at, id)
}

// UpdateVendorCapabilities leaves the reputation columns untouched.
func (s *Storage) UpdateVendorCapabilities(ctx context.Context, id string, c models.VendorCapabilities, at time.Time) error {
	query := `UPDATE vendor_profiles SET capabilities = $1, materials = $2, updated_at = $3 WHERE id = $4`
	return s.updateExisting(ctx, "update vendor capabilities", query, c.Capabilities, c.Materials, at, id)
}

// UpdateVendorReputation writes the derived rating and completion count.
func (s *Storage) UpdateVendorReputation(ctx context.Context, id string, rating float64, completed int, at time.Time) error {
	query := `
        UPDATE vendor_profiles
        SET rating = $1, total_orders_completed = $2, updated_at = $3
        WHERE id = $4`
	return s.updateExisting(ctx, "update vendor reputation", query, rating, completed, at, id)
}

const applicationColumns = `id, applicant_id, company_name, business_email, capabilities, materials, status,
    reviewed_by, reviewed_at, review_notes, submitted_at, updated_at`

// CreateApplication relies on the partial unique index allowing one open
// application per applicant.
func (s *Storage) CreateApplication(ctx context.Context, a models.VendorApplication) error {
	query := `
        INSERT INTO vendor_applications (` + applicationColumns + `)
        VALUES
            (:id, :applicant_id, :company_name, :business_email, :capabilities, :materials, :status,
             :reviewed_by, :reviewed_at, :review_notes, :submitted_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, s.ext(ctx), query, a); err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateApplication
		}
		return fmt.Errorf("create vendor application: %w", err)
	}
	return nil
}

func (s *Storage) GetApplication(ctx context.Context, id string) (models.VendorApplication, error) {
	var a models.VendorApplication
	query := `SELECT ` + applicationColumns + ` FROM vendor_applications WHERE id = $1`
	if err := sqlx.GetContext(ctx, s.ext(ctx), &a, query, id); err != nil {
		return models.VendorApplication{}, notFound(err, "get vendor application")
	}
	return a, nil
}

func (s *Storage) UpdateApplication(ctx context.Context, a models.VendorApplication, expected models.ApplicationStatus) error {
	query := `
        UPDATE vendor_applications
        SET status = $1, reviewed_by = $2, reviewed_at = $3, review_notes = $4, updated_at = $5
        WHERE id = $6 AND status = $7`
	res, err := s.ext(ctx).ExecContext(ctx, query,
		a.Status, a.ReviewedBy, a.ReviewedAt, a.ReviewNotes, a.UpdatedAt, a.ID, expected)
	return expectOne(res, err, "update vendor application")
}

const reviewColumns = `id, assignment_id, vendor_id, reviewer_id, rating, quality_rating, delivery_rating,
    communication_rating, review_text, created_at`

// CreateReview relies on the unique assignment_id of reviews.
func (s *Storage) CreateReview(ctx context.Context, r models.Review) error {
	query := `
        INSERT INTO reviews (` + reviewColumns + `)
        VALUES
            (:id, :assignment_id, :vendor_id, :reviewer_id, :rating, :quality_rating, :delivery_rating,
             :communication_rating, :review_text, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, s.ext(ctx), query, r); err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateReview
		}
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

func (s *Storage) ListVendorReviews(ctx context.Context, vendorID string, page models.Page) ([]models.Review, error) {
	query := `
        SELECT ` + reviewColumns + ` FROM reviews
        WHERE vendor_id = $1
        ORDER BY created_at DESC
        LIMIT NULLIF($2, 0) OFFSET $3`
	reviews := []models.Review{}
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &reviews, query, vendorID, page.Limit, page.Offset); err != nil {
		return nil, fmt.Errorf("list vendor reviews: %w", err)
	}
	return reviews, nil
}
