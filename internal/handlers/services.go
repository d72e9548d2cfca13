package handlers

import (
	"context"

	"sourcing/internal/engine"
	"sourcing/models"
)

type OrderService interface {
	CreateOrder(ctx context.Context, actor models.Actor, in engine.CreateOrderInput) (models.Order, error)
	GetOrder(ctx context.Context, id string) (models.Order, error)
	ListOrders(ctx context.Context, actor models.Actor, f models.OrderFilter) ([]models.Order, error)
	ListBuyerOrders(ctx context.Context, actor models.Actor, f models.OrderFilter) ([]models.Order, error)
	ListVendorOrders(ctx context.Context, actor models.Actor, f models.OrderFilter) ([]models.Order, error)
	Statistics(ctx context.Context, actor models.Actor) (models.OrderStats, error)
	History(ctx context.Context, orderID string) ([]models.OrderStatusChange, error)
	Apply(ctx context.Context, actor models.Actor, orderID string, in engine.ApplyInput) (models.Order, error)
}

type BidService interface {
	SubmitBid(ctx context.Context, actor models.Actor, in engine.SubmitBidInput) (models.Bid, error)
	WithdrawBid(ctx context.Context, actor models.Actor, bidID string) (models.Bid, error)
	ListActiveBids(ctx context.Context, orderID string) ([]models.Bid, error)
	ListVendorBids(ctx context.Context, actor models.Actor, page models.Page) ([]models.Bid, error)
}

type AssignmentService interface {
	AcceptBidAndAssign(ctx context.Context, actor models.Actor, orderID, bidID string) (models.Assignment, error)
	UpdateAssignment(ctx context.Context, actor models.Actor, in engine.UpdateAssignmentInput) (models.Assignment, error)
	GetAssignment(ctx context.Context, id string) (models.Assignment, error)
	ListVendorAssignments(ctx context.Context, actor models.Actor, page models.Page) ([]models.Assignment, error)
	GetOrderAssignment(ctx context.Context, actor models.Actor, orderID string) (models.Assignment, error)
}

type ReputationService interface {
	GetVendorProfile(ctx context.Context, vendorID string) (models.VendorProfile, error)
	Recompute(ctx context.Context, vendorID string) (models.VendorProfile, error)
	SubmitReview(ctx context.Context, actor models.Actor, in engine.ReviewInput) (models.Review, error)
	ListVendorReviews(ctx context.Context, vendorID string, page models.Page) ([]models.Review, error)
}

type OnboardingService interface {
	SubmitApplication(ctx context.Context, actor models.Actor, in engine.ApplicationInput) (models.VendorApplication, error)
	GetApplication(ctx context.Context, actor models.Actor, id string) (models.VendorApplication, error)
	StartReview(ctx context.Context, actor models.Actor, id string) (models.VendorApplication, error)
	Approve(ctx context.Context, actor models.Actor, id, notes string) (models.VendorApplication, error)
	Reject(ctx context.Context, actor models.Actor, id, notes string) (models.VendorApplication, error)
	SetVendorActive(ctx context.Context, actor models.Actor, vendorID string, active bool) (models.VendorProfile, error)
	UpdateCapabilities(ctx context.Context, actor models.Actor, vendorID string, in models.VendorCapabilities) (models.VendorProfile, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services is everything the HTTP layer calls.
type Services struct {
	Orders      OrderService
	Bids        BidService
	Assignments AssignmentService
	Reputation  ReputationService
	Onboarding  OnboardingService
	Health      Pinger
}

// FromEngine wires the engine components into Services.
func FromEngine(eng *engine.Engine, health Pinger) Services {
	return Services{
		Orders:      eng.Orders,
		Bids:        eng.Ledger,
		Assignments: eng.Coordinator,
		Reputation:  eng.Reputation,
		Onboarding:  eng.Onboarding,
		Health:      health,
	}
}
