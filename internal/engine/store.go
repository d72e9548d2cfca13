package engine

import (
	"context"
	"time"

	"sourcing/models"
)

// Transactor runs fn in one transaction carried by the context. Nested calls
// join the outer transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderStore persists orders and their audit trail. UpdateOrder is a
// compare-and-swap on the expected status and returns
// models.ErrAlreadyFinalized when the stored status differs.
type OrderStore interface {
	CreateOrder(ctx context.Context, o models.Order) error
	GetOrder(ctx context.Context, id string) (models.Order, error)
	UpdateOrder(ctx context.Context, o models.Order, expected models.OrderStatus) error
	ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error)
	CountOrders(ctx context.Context, f models.OrderFilter, since time.Time) ([]models.OrderCount, error)
	AppendOrderHistory(ctx context.Context, ch models.OrderStatusChange) error
	ListOrderHistory(ctx context.Context, orderID string) ([]models.OrderStatusChange, error)
}

// BidStore persists bids. TransitionBid is a compare-and-swap on the expected
// status. CreateBid returns models.ErrAlreadyFinalized when the vendor already
// holds an active bid on the order.
type BidStore interface {
	CreateBid(ctx context.Context, b models.Bid) error
	GetBid(ctx context.Context, id string) (models.Bid, error)
	GetActiveBid(ctx context.Context, orderID, vendorID string) (*models.Bid, error)
	TransitionBid(ctx context.Context, id string, from, to models.BidStatus, reason *string, at time.Time) error
	RejectActiveBids(ctx context.Context, orderID string, except *string, at time.Time) ([]models.Bid, error)
	ExpireBids(ctx context.Context, now time.Time) ([]models.Bid, error)
	ListActiveBids(ctx context.Context, orderID string, now time.Time) ([]models.Bid, error)
	ListVendorBids(ctx context.Context, vendorID string, page models.Page) ([]models.Bid, error)
}

// AssignmentStore persists assignments. CreateAssignment returns
// models.ErrAssignmentAlreadyExists when the order already has a
// non-cancelled assignment. GetOrderAssignment prefers the non-cancelled
// assignment and falls back to the latest cancelled one.
type AssignmentStore interface {
	CreateAssignment(ctx context.Context, a models.Assignment) error
	GetAssignment(ctx context.Context, id string) (models.Assignment, error)
	GetOpenAssignment(ctx context.Context, orderID string) (*models.Assignment, error)
	GetOrderAssignment(ctx context.Context, orderID string) (models.Assignment, error)
	ListVendorAssignments(ctx context.Context, vendorID string, page models.Page) ([]models.Assignment, error)
	UpdateAssignment(ctx context.Context, a models.Assignment, expected models.AssignmentStatus) error
	SetQualityRating(ctx context.Context, id string, rating int, at time.Time) error
	ListCompletedWork(ctx context.Context, vendorID string) ([]models.CompletedWork, error)
}

type VendorStore interface {
	GetVendorProfile(ctx context.Context, id string) (models.VendorProfile, error)
	UpsertVendorProfile(ctx context.Context, p models.VendorProfile) error
	SetVendorActive(ctx context.Context, id string, active bool, at time.Time) error
	UpdateVendorCapabilities(ctx context.Context, id string, c models.VendorCapabilities, at time.Time) error
	UpdateVendorReputation(ctx context.Context, id string, rating float64, completed int, at time.Time) error

	CreateApplication(ctx context.Context, a models.VendorApplication) error
	GetApplication(ctx context.Context, id string) (models.VendorApplication, error)
	UpdateApplication(ctx context.Context, a models.VendorApplication, expected models.ApplicationStatus) error
}

type ReviewStore interface {
	CreateReview(ctx context.Context, r models.Review) error
	ListVendorReviews(ctx context.Context, vendorID string, page models.Page) ([]models.Review, error)
}

// EventStore is the notification outbox.
type EventStore interface {
	AppendEvents(ctx context.Context, events ...models.Event) error
}

// Store is everything the engine persists.
type Store interface {
	Transactor
	OrderStore
	BidStore
	AssignmentStore
	VendorStore
	ReviewStore
	EventStore
}
