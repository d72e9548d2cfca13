package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sourcing/models"
)

func TestAcceptBidAndAssign(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts winner and rejects competitors", func(t *testing.T) {
		f := newFixture(t)
		o := f.newOrder(t)
		pricey := f.bid(t, f.v1, o.ID, 500, 5)
		cheap := f.bid(t, f.v2, o.ID, 450, 4)

		f.clock.Advance(time.Hour)
		a, err := f.eng.Coordinator.AcceptBidAndAssign(ctx, f.buyer, o.ID, cheap.ID)
		require.NoError(t, err)

		assert.Equal(t, models.AssignmentAssigned, a.Status)
		assert.Equal(t, f.v2.ID, a.VendorID)
		assert.Equal(t, cheap.ID, a.WinningBidID)
		assert.Equal(t, t0.Add(time.Hour).AddDate(0, 0, 4), a.ExpectedCompletion)

		assert.Equal(t, models.BidAccepted, f.store.bid(cheap.ID).Status)
		assert.Equal(t, models.BidRejected, f.store.bid(pricey.ID).Status)

		order := f.store.order(o.ID)
		assert.Equal(t, models.OrderConfirmed, order.Status)
		require.NotNil(t, order.AssignedTo)
		assert.Equal(t, f.v2.ID, *order.AssignedTo)
		assert.True(t, order.AssigneeConsistent())

		accepted := f.store.eventsOf(models.EventBidAccepted)
		require.Len(t, accepted, 1)
		assert.Equal(t, f.v2.ID, accepted[0].RecipientID)
		require.NotNil(t, accepted[0].AssignmentID)
		assert.Equal(t, a.ID, *accepted[0].AssignmentID)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(accepted[0].Payload, &payload))
		assert.Equal(t, a.ID, payload["assignmentId"])
		assert.Equal(t, string(models.BidAccepted), payload["status"])
		rejected := f.store.eventsOf(models.EventBidRejected)
		require.Len(t, rejected, 1)
		assert.Equal(t, f.v1.ID, rejected[0].RecipientID)

		history, err := f.eng.Orders.History(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, models.OrderEventBidAccepted, history[0].Event)
		assert.Equal(t, models.OrderPending, history[0].PreviousStatus)
		assert.Equal(t, models.OrderConfirmed, history[0].NewStatus)

		_, err = f.eng.Coordinator.AcceptBidAndAssign(ctx, f.buyer, o.ID, pricey.ID)
		require.ErrorIs(t, err, models.ErrInvalidTransition)
		assert.Equal(t, 1, f.store.nonCancelledAssignments(o.ID))
	})

	t.Run("accepting the winner twice", func(t *testing.T) {
		f := newFixture(t)
		o := f.newOrder(t)
		b := f.bid(t, f.v1, o.ID, 500, 5)

		_, err := f.eng.Coordinator.AcceptBidAndAssign(ctx, f.buyer, o.ID, b.ID)
		require.NoError(t, err)
		_, err = f.eng.Coordinator.AcceptBidAndAssign(ctx, f.buyer, o.ID, b.ID)
		require.ErrorIs(t, err, models.ErrInvalidTransition)
		assert.Equal(t, 1, f.store.nonCancelledAssignments(o.ID))
	})

	t.Run("only the buyer or an admin may accept", func(t *testing.T) {
		f := newFixture(t)
		o := f.newOrder(t)
		b := f.bid(t, f.v1, o.ID, 500, 5)

		for _, actor := range []models.Actor{f.v1, f.other} {
			_, err := f.eng.Coordinator.AcceptBidAndAssign(ctx, actor, o.ID, b.ID)
			require.ErrorIs(t, err, models.ErrNotOwner)
		}

		_, err := f.eng.Coordinator.AcceptBidAndAssign(ctx, f.admin, o.ID, b.ID)
		require.NoError(t, err)
	})

	t.Run("bid of another order", func(t *testing.T) {
		f := newFixture(t)
		o := f.newOrder(t)
		elsewhere := f.newOrder(t)
		b := f.bid(t, f.v1, elsewhere.ID, 500, 5)

		_, err := f.eng.Coordinator.AcceptBidAndAssign(ctx, f.buyer, o.ID, b.ID)
		require.ErrorIs(t, err, models.ErrNotFound)
		assert.Equal(t, models.BidActive, f.store.bid(b.ID).Status)
	})

	t.Run("withdrawn bid", func(t *testing.T) {
		f := newFixture(t)
		o := f.newOrder(t)
		b := f.bid(t, f.v1, o.ID, 500, 5)
		_, err := f.eng.Ledger.WithdrawBid(ctx, f.v1, b.ID)
		require.NoError(t, err)

		_, err = f.eng.Coordinator.AcceptBidAndAssign(ctx, f.buyer, o.ID, b.ID)
		require.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("cancelled order", func(t *testing.T) {
		f := newFixture(t)
		o := f.newOrder(t)
		b := f.bid(t, f.v1, o.ID, 500, 5)
		_, err := f.eng.Orders.Apply(ctx, f.buyer, o.ID, ApplyInput{Event: models.OrderEventCancelled})
		require.NoError(t, err)

		_, err = f.eng.Coordinator.AcceptBidAndAssign(ctx, f.buyer, o.ID, b.ID)
		require.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("failure in any step rolls everything back", func(t *testing.T) {
		f := newFixture(t)
		o := f.newOrder(t)
		b1 := f.bid(t, f.v1, o.ID, 500, 5)
		b2 := f.bid(t, f.v2, o.ID, 450, 4)

		boom := errors.New("outbox unavailable")
		f.store.failAppendEvents = boom
		_, err := f.eng.Coordinator.AcceptBidAndAssign(ctx, f.buyer, o.ID, b2.ID)
		require.ErrorIs(t, err, boom)

		assert.Equal(t, models.BidActive, f.store.bid(b1.ID).Status)
		assert.Equal(t, models.BidActive, f.store.bid(b2.ID).Status)
		assert.Zero(t, f.store.nonCancelledAssignments(o.ID))
		assert.Equal(t, models.OrderPending, f.store.order(o.ID).Status)
		assert.Nil(t, f.store.order(o.ID).AssignedTo)

		f.store.failAppendEvents = nil
		_, err = f.eng.Coordinator.AcceptBidAndAssign(ctx, f.buyer, o.ID, b2.ID)
		require.NoError(t, err)
	})
}

func TestConcurrentAcceptAssignsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.newOrder(t)
	bids := []models.Bid{
		f.bid(t, f.v1, o.ID, 500, 5),
		f.bid(t, f.v2, o.ID, 450, 4),
		f.bid(t, f.v3, o.ID, 470, 3),
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses []error
	)
	for i := 0; i < 12; i++ {
		b := bids[i%len(bids)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.eng.Coordinator.AcceptBidAndAssign(ctx, f.buyer, o.ID, b.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			losses = append(losses, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	for _, err := range losses {
		assert.True(t,
			errors.Is(err, models.ErrInvalidTransition) ||
				errors.Is(err, models.ErrAssignmentAlreadyExists) ||
				errors.Is(err, models.ErrAlreadyFinalized),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, f.store.nonCancelledAssignments(o.ID))

	accepted := 0
	for _, b := range bids {
		if f.store.bid(b.ID).Status == models.BidAccepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestUpdateAssignment(t *testing.T) {
	ctx := context.Background()

	t.Run("vendor drives production to completion", func(t *testing.T) {
		f := newFixture(t)
		o, a := f.assigned(t)

		f.clock.Advance(day)
		started := f.moveAssignment(t, f.v1, a.ID, models.AssignmentInProgress)
		assert.Equal(t, models.AssignmentInProgress, started.Status)
		assert.Equal(t, models.OrderInProduction, f.store.order(o.ID).Status)

		f.clock.Advance(3 * day)
		done, err := f.eng.Coordinator.UpdateAssignment(ctx, f.v1, UpdateAssignmentInput{
			AssignmentID: a.ID,
			Status:       models.AssignmentCompleted,
			Notes:        "  shipped from dock 4 ",
		})
		require.NoError(t, err)
		require.NotNil(t, done.ActualCompletion)
		assert.Equal(t, f.clock.Now(), *done.ActualCompletion)
		assert.Equal(t, "shipped from dock 4", *done.CompletionNotes)

		order := f.store.order(o.ID)
		assert.Equal(t, models.OrderCompleted, order.Status)
		assert.True(t, order.AssigneeConsistent())

		completed := f.store.eventsOf(models.EventAssignmentCompleted)
		require.Len(t, completed, 1)
		assert.Equal(t, f.buyer.ID, completed[0].RecipientID)
		assert.Len(t, f.store.eventsOf(models.EventAssignmentStarted), 1)

		profile := f.store.profile(f.v1.ID)
		assert.Equal(t, 1, profile.TotalOrdersCompleted)
		assert.Zero(t, profile.Rating)
	})

	t.Run("explicit completion time", func(t *testing.T) {
		f := newFixture(t)
		_, a := f.assigned(t)
		f.moveAssignment(t, f.v1, a.ID, models.AssignmentInProgress)

		at := t0.Add(2 * day)
		done, err := f.eng.Coordinator.UpdateAssignment(ctx, f.v1, UpdateAssignmentInput{
			AssignmentID: a.ID,
			Status:       models.AssignmentCompleted,
			CompletedAt:  &at,
		})
		require.NoError(t, err)
		assert.Equal(t, at, *done.ActualCompletion)
	})

	t.Run("illegal moves", func(t *testing.T) {
		f := newFixture(t)
		o, a := f.assigned(t)

		_, err := f.eng.Coordinator.UpdateAssignment(ctx, f.v1, UpdateAssignmentInput{AssignmentID: a.ID, Status: models.AssignmentCompleted})
		require.ErrorIs(t, err, models.ErrInvalidTransition)

		_, err = f.eng.Coordinator.UpdateAssignment(ctx, f.v1, UpdateAssignmentInput{AssignmentID: a.ID, Status: "paused"})
		require.ErrorIs(t, err, models.ErrInvalidTransition)

		_, err = f.eng.Coordinator.UpdateAssignment(ctx, f.buyer, UpdateAssignmentInput{AssignmentID: a.ID, Status: models.AssignmentInProgress})
		require.ErrorIs(t, err, models.ErrNotOwner)

		_, err = f.eng.Coordinator.UpdateAssignment(ctx, f.v2, UpdateAssignmentInput{AssignmentID: a.ID, Status: models.AssignmentInProgress})
		require.ErrorIs(t, err, models.ErrNotOwner)

		_, err = f.eng.Coordinator.UpdateAssignment(ctx, f.v1, UpdateAssignmentInput{AssignmentID: "missing", Status: models.AssignmentInProgress})
		require.ErrorIs(t, err, models.ErrNotFound)

		assert.Equal(t, models.OrderConfirmed, f.store.order(o.ID).Status)
	})

	t.Run("held order refuses progress and rolls back", func(t *testing.T) {
		f := newFixture(t)
		o, a := f.assigned(t)
		_, err := f.eng.Orders.Apply(ctx, f.buyer, o.ID, ApplyInput{Event: models.OrderEventHold})
		require.NoError(t, err)

		_, err = f.eng.Coordinator.UpdateAssignment(ctx, f.v1, UpdateAssignmentInput{AssignmentID: a.ID, Status: models.AssignmentInProgress})
		require.ErrorIs(t, err, models.ErrIllegalTransition)

		got, err := f.eng.Coordinator.GetAssignment(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AssignmentAssigned, got.Status)
	})

	t.Run("cancelling releases the order for new bids", func(t *testing.T) {
		f := newFixture(t)
		o, a := f.assigned(t)

		cancelled := f.moveAssignment(t, f.buyer, a.ID, models.AssignmentCancelled)
		assert.Equal(t, models.AssignmentCancelled, cancelled.Status)

		order := f.store.order(o.ID)
		assert.Equal(t, models.OrderPending, order.Status)
		assert.Nil(t, order.AssignedTo)
		assert.True(t, order.AssigneeConsistent())

		events := f.store.eventsOf(models.EventAssignmentCancelled)
		require.Len(t, events, 1)
		assert.Equal(t, f.v1.ID, events[0].RecipientID)

		b := f.bid(t, f.v2, o.ID, 480, 6)
		second, err := f.eng.Coordinator.AcceptBidAndAssign(ctx, f.buyer, o.ID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, f.v2.ID, second.VendorID)
		assert.Equal(t, 1, f.store.nonCancelledAssignments(o.ID))

		_, err = f.eng.Coordinator.UpdateAssignment(ctx, f.v1, UpdateAssignmentInput{AssignmentID: a.ID, Status: models.AssignmentInProgress})
		require.ErrorIs(t, err, models.ErrInvalidTransition)
	})
}

func TestAssignmentLookups(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, a1 := f.assigned(t)
	f.clock.Advance(time.Hour)
	second := f.newOrder(t)
	b := f.bid(t, f.v1, second.ID, 300, 2)
	a2, err := f.eng.Coordinator.AcceptBidAndAssign(ctx, f.buyer, second.ID, b.ID)
	require.NoError(t, err)

	mine, err := f.eng.Coordinator.ListVendorAssignments(ctx, f.v1, models.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, a2.ID, mine[0].ID)
	assert.Equal(t, a1.ID, mine[1].ID)

	paged, err := f.eng.Coordinator.ListVendorAssignments(ctx, f.v1, models.Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, a1.ID, paged[0].ID)

	none, err := f.eng.Coordinator.ListVendorAssignments(ctx, f.v2, models.Page{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.eng.Coordinator.ListVendorAssignments(ctx, f.buyer, models.Page{Limit: 10})
	require.ErrorIs(t, err, models.ErrForbidden)

	for _, actor := range []models.Actor{f.buyer, f.v1, f.admin} {
		got, err := f.eng.Coordinator.GetOrderAssignment(ctx, actor, first.ID)
		require.NoError(t, err)
		assert.Equal(t, a1.ID, got.ID)
	}
	_, err = f.eng.Coordinator.GetOrderAssignment(ctx, f.v2, first.ID)
	require.ErrorIs(t, err, models.ErrNotOwner)

	open := f.newOrder(t)
	_, err = f.eng.Coordinator.GetOrderAssignment(ctx, f.buyer, open.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.eng.Coordinator.GetOrderAssignment(ctx, f.buyer, "missing")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestOrderAssignmentAfterReassign(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o, a := f.assigned(t)
	f.moveAssignment(t, f.buyer, a.ID, models.AssignmentCancelled)

	got, err := f.eng.Coordinator.GetOrderAssignment(ctx, f.buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, models.AssignmentCancelled, got.Status)

	f.clock.Advance(time.Hour)
	b := f.bid(t, f.v2, o.ID, 450, 3)
	replacement, err := f.eng.Coordinator.AcceptBidAndAssign(ctx, f.buyer, o.ID, b.ID)
	require.NoError(t, err)

	got, err = f.eng.Coordinator.GetOrderAssignment(ctx, f.v2, o.ID)
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, got.ID)
	assert.Equal(t, models.AssignmentAssigned, got.Status)
}
