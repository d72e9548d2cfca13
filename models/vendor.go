package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// VendorProfile is the reputation and capability record of an approved vendor.
// Rating and TotalOrdersCompleted are derived by the reputation aggregator.
type VendorProfile struct {
	ID                   string         `db:"id" json:"id"`
	CompanyName          string         `db:"company_name" json:"companyName"`
	BusinessEmail        string         `db:"business_email" json:"businessEmail"`
	Capabilities         pq.StringArray `db:"capabilities" json:"capabilities"`
	Materials            pq.StringArray `db:"materials" json:"materials"`
	IsVerified           bool           `db:"is_verified" json:"isVerified"`
	IsActive             bool           `db:"is_active" json:"isActive"`
	Rating               float64        `db:"rating" json:"rating"`
	TotalOrdersCompleted int            `db:"total_orders_completed" json:"totalOrdersCompleted"`
	CreatedAt            time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updatedAt"`
}

// Eligible vendors may submit bids.
func (p VendorProfile) Eligible() bool {
	return p.IsActive && p.IsVerified
}

// VendorCapabilities is the part of a profile its vendor may edit.
type VendorCapabilities struct {
	Capabilities pq.StringArray `json:"capabilities"`
	Materials    pq.StringArray `json:"materials"`
}

const maxProfileEntries = 50

// Normalize trims entries and drops blanks and duplicates.
func (c *VendorCapabilities) Normalize() error {
	c.Capabilities = cleanList(c.Capabilities)
	c.Materials = cleanList(c.Materials)
	if len(c.Capabilities) > maxProfileEntries || len(c.Materials) > maxProfileEntries {
		return fmt.Errorf("%w: at most %d capabilities and %d materials", ErrInvalidProfile, maxProfileEntries, maxProfileEntries)
	}
	for _, v := range append(append([]string{}, c.Capabilities...), c.Materials...) {
		if len(v) > 100 {
			return fmt.Errorf("%w: entry %.20q... exceeds 100 characters", ErrInvalidProfile, v)
		}
	}
	return nil
}

func cleanList(in []string) pq.StringArray {
	out := pq.StringArray{}
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

type ApplicationStatus string

const (
	ApplicationPending     ApplicationStatus = "pending"
	ApplicationUnderReview ApplicationStatus = "under_review"
	ApplicationApproved    ApplicationStatus = "approved"
	ApplicationRejected    ApplicationStatus = "rejected"
)

func (s ApplicationStatus) Open() bool {
	return s == ApplicationPending || s == ApplicationUnderReview
}

// VendorApplication is the onboarding record that precedes a profile.
type VendorApplication struct {
	ID            string            `db:"id" json:"id"`
	ApplicantID   string            `db:"applicant_id" json:"applicantId"`
	CompanyName   string            `db:"company_name" json:"companyName"`
	BusinessEmail string            `db:"business_email" json:"businessEmail"`
	Capabilities  pq.StringArray    `db:"capabilities" json:"capabilities"`
	Materials     pq.StringArray    `db:"materials" json:"materials"`
	Status        ApplicationStatus `db:"status" json:"status"`
	ReviewedBy    *string           `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time        `db:"reviewed_at" json:"reviewedAt,omitempty"`
	ReviewNotes   *string           `db:"review_notes" json:"reviewNotes,omitempty"`
	SubmittedAt   time.Time         `db:"submitted_at" json:"submittedAt"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updatedAt"`
}

func (a *VendorApplication) Validate() error {
	a.CompanyName = strings.TrimSpace(a.CompanyName)
	a.BusinessEmail = strings.TrimSpace(a.BusinessEmail)
	if a.CompanyName == "" || len(a.CompanyName) > 200 {
		return fmt.Errorf("%w: companyName is required and max length 200", ErrInvalidApplication)
	}
	if !strings.Contains(a.BusinessEmail, "@") {
		return fmt.Errorf("%w: businessEmail is invalid", ErrInvalidApplication)
	}
	return nil
}

// Review is the buyer's rating of a completed assignment.
type Review struct {
	ID                  string    `db:"id" json:"id"`
	AssignmentID        string    `db:"assignment_id" json:"assignmentId"`
	VendorID            string    `db:"vendor_id" json:"vendorId"`
	ReviewerID          string    `db:"reviewer_id" json:"reviewerId"`
	Rating              int       `db:"rating" json:"rating"`
	QualityRating       *int      `db:"quality_rating" json:"qualityRating,omitempty"`
	DeliveryRating      *int      `db:"delivery_rating" json:"deliveryRating,omitempty"`
	CommunicationRating *int      `db:"communication_rating" json:"communicationRating,omitempty"`
	Text                *string   `db:"review_text" json:"text,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"createdAt"`
}

// Validate checks that every given rating is within 1..5.
func (r Review) Validate() error {
	if r.Rating < 1 || r.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidReview)
	}
	for name, v := range map[string]*int{
		"qualityRating":       r.QualityRating,
		"deliveryRating":      r.DeliveryRating,
		"communicationRating": r.CommunicationRating,
	} {
		if v != nil && (*v < 1 || *v > 5) {
			return fmt.Errorf("%w: %s must be between 1 and 5", ErrInvalidReview, name)
		}
	}
	return nil
}
