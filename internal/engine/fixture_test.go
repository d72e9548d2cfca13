package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"sourcing/internal/clock"
	"sourcing/internal/logger"
	"sourcing/models"
)

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type fixture struct {
	eng   *Engine
	store *memStore
	clock *clock.Manual

	buyer  models.Actor
	other  models.Actor
	admin  models.Actor
	v1, v2 models.Actor
	v3     models.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	var seq int64
	ids := func() string {
		return fmt.Sprintf("id-%04d", atomic.AddInt64(&seq, 1))
	}

	store := newMemStore()
	clk := clock.NewManual(t0)
	f := &fixture{
		eng:   New(store, clk, logger.NewNop(), WithIDGenerator(ids)),
		store: store,
		clock: clk,
		buyer: models.Actor{ID: "buyer-1", Role: models.RoleBuyer},
		other: models.Actor{ID: "buyer-2", Role: models.RoleBuyer},
		admin: models.Actor{ID: "admin-1", Role: models.RoleAdmin},
		v1:    models.Actor{ID: "vendor-1", Role: models.RoleVendor},
		v2:    models.Actor{ID: "vendor-2", Role: models.RoleVendor},
		v3:    models.Actor{ID: "vendor-3", Role: models.RoleVendor},
	}
	for _, v := range []models.Actor{f.v1, f.v2, f.v3} {
		store.profiles[v.ID] = models.VendorProfile{
			ID:          v.ID,
			CompanyName: "Shop " + v.ID,
			IsActive:    true,
			IsVerified:  true,
		}
	}
	return f
}

func (f *fixture) newOrder(t *testing.T) models.Order {
	t.Helper()
	o, err := f.eng.Orders.CreateOrder(context.Background(), f.buyer, CreateOrderInput{
		Title:    "Aluminium brackets",
		Material: "6061-T6",
		Quantity: 200,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) bid(t *testing.T, vendor models.Actor, orderID string, amount int64, days int) models.Bid {
	t.Helper()
	b, err := f.eng.Ledger.SubmitBid(context.Background(), vendor, SubmitBidInput{
		OrderID:      orderID,
		Amount:       usd(amount),
		DeliveryDays: days,
	})
	require.NoError(t, err)
	return b
}

// assigned returns an order whose bid from v1 has been accepted.
func (f *fixture) assigned(t *testing.T) (models.Order, models.Assignment) {
	t.Helper()
	o := f.newOrder(t)
	b := f.bid(t, f.v1, o.ID, 500, 5)
	a, err := f.eng.Coordinator.AcceptBidAndAssign(context.Background(), f.buyer, o.ID, b.ID)
	require.NoError(t, err)
	return f.store.order(o.ID), a
}

func (f *fixture) moveAssignment(t *testing.T, actor models.Actor, id string, to models.AssignmentStatus) models.Assignment {
	t.Helper()
	a, err := f.eng.Coordinator.UpdateAssignment(context.Background(), actor, UpdateAssignmentInput{
		AssignmentID: id,
		Status:       to,
	})
	require.NoError(t, err)
	return a
}

func usd(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}
