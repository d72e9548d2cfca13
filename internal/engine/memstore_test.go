package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"sourcing/models"
)

type memTxKey struct{}

// memStore is an in-memory Store. Transactions are serialized and roll back
// by restoring a snapshot, which mirrors the all-or-nothing behaviour of the
// Postgres storage closely enough for engine tests.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	orders       map[string]models.Order
	history      []models.OrderStatusChange
	bids         map[string]models.Bid
	assignments  map[string]models.Assignment
	profiles     map[string]models.VendorProfile
	applications map[string]models.VendorApplication
	reviews      map[string]models.Review
	events       []models.Event

	failAppendEvents error
}

func newMemStore() *memStore {
	return &memStore{
		orders:       map[string]models.Order{},
		bids:         map[string]models.Bid{},
		assignments:  map[string]models.Assignment{},
		profiles:     map[string]models.VendorProfile{},
		applications: map[string]models.VendorApplication{},
		reviews:      map[string]models.Review{},
	}
}

type memSnapshot struct {
	orders       map[string]models.Order
	history      []models.OrderStatusChange
	bids         map[string]models.Bid
	assignments  map[string]models.Assignment
	profiles     map[string]models.VendorProfile
	applications map[string]models.VendorApplication
	reviews      map[string]models.Review
	events       []models.Event
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		orders:       cloneMap(s.orders),
		history:      append([]models.OrderStatusChange(nil), s.history...),
		bids:         cloneMap(s.bids),
		assignments:  cloneMap(s.assignments),
		profiles:     cloneMap(s.profiles),
		applications: cloneMap(s.applications),
		reviews:      cloneMap(s.reviews),
		events:       append([]models.Event(nil), s.events...),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = snap.orders
	s.history = snap.history
	s.bids = snap.bids
	s.assignments = snap.assignments
	s.profiles = snap.profiles
	s.applications = snap.applications
	s.reviews = snap.reviews
	s.events = snap.events
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func paginate[T any](items []T, page models.Page) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	items = items[page.Offset:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}

// orders

func (s *memStore) CreateOrder(ctx context.Context, o models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *memStore) GetOrder(ctx context.Context, id string) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, models.ErrNotFound
	}
	return o, nil
}

func (s *memStore) UpdateOrder(ctx context.Context, o models.Order, expected models.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok || cur.Status != expected {
		return models.ErrAlreadyFinalized
	}
	s.orders[o.ID] = o
	return nil
}

func orderMatches(o models.Order, f models.OrderFilter) bool {
	switch {
	case f.Status != "" && o.Status != f.Status,
		f.Priority != "" && o.Priority != f.Priority,
		f.BuyerID != "" && o.BuyerID != f.BuyerID,
		f.AssignedTo != "" && (o.AssignedTo == nil || *o.AssignedTo != f.AssignedTo):
		return false
	}
	return true
}

func (s *memStore) ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if orderMatches(o, f) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, f.Page), nil
}

func (s *memStore) CountOrders(ctx context.Context, f models.OrderFilter, since time.Time) ([]models.OrderCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type key struct {
		status   models.OrderStatus
		priority models.Priority
	}
	grouped := map[key]*models.OrderCount{}
	var out []models.OrderCount
	for _, o := range s.orders {
		if !orderMatches(o, f) {
			continue
		}
		k := key{o.Status, o.Priority}
		c, ok := grouped[k]
		if !ok {
			c = &models.OrderCount{Status: o.Status, Priority: o.Priority}
			grouped[k] = c
		}
		c.Total++
		if !o.CreatedAt.Before(since) {
			c.Recent++
		}
	}
	for _, c := range grouped {
		out = append(out, *c)
	}
	return out, nil
}

func (s *memStore) AppendOrderHistory(ctx context.Context, ch models.OrderStatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, ch)
	return nil
}

func (s *memStore) ListOrderHistory(ctx context.Context, orderID string) ([]models.OrderStatusChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OrderStatusChange
	for _, h := range s.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

// bids

func (s *memStore) CreateBid(ctx context.Context, b models.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.Status == models.BidActive {
		for _, other := range s.bids {
			if other.OrderID == b.OrderID && other.VendorID == b.VendorID && other.Status == models.BidActive {
				return models.ErrAlreadyFinalized
			}
		}
	}
	s.bids[b.ID] = b
	return nil
}

func (s *memStore) GetBid(ctx context.Context, id string) (models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bids[id]
	if !ok {
		return models.Bid{}, models.ErrNotFound
	}
	return b, nil
}

func (s *memStore) GetActiveBid(ctx context.Context, orderID, vendorID string) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bids {
		if b.OrderID == orderID && b.VendorID == vendorID && b.Status == models.BidActive {
			b := b
			return &b, nil
		}
	}
	return nil, nil
}

func (s *memStore) TransitionBid(ctx context.Context, id string, from, to models.BidStatus, reason *string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bids[id]
	if !ok || b.Status != from {
		return models.ErrAlreadyFinalized
	}
	b.Status = to
	if reason != nil {
		b.WithdrawReason = reason
	}
	b.UpdatedAt = at
	s.bids[id] = b
	return nil
}

func (s *memStore) RejectActiveBids(ctx context.Context, orderID string, except *string, at time.Time) ([]models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Bid
	for id, b := range s.bids {
		if b.OrderID != orderID || b.Status != models.BidActive || (except != nil && id == *except) {
			continue
		}
		b.Status = models.BidRejected
		b.UpdatedAt = at
		s.bids[id] = b
		out = append(out, b)
	}
	models.SortBids(out)
	return out, nil
}

func (s *memStore) ExpireBids(ctx context.Context, now time.Time) ([]models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Bid
	for id, b := range s.bids {
		if b.Status != models.BidActive || b.ExpiresAt.After(now) {
			continue
		}
		b.Status = models.BidExpired
		b.UpdatedAt = now
		s.bids[id] = b
		out = append(out, b)
	}
	models.SortBids(out)
	return out, nil
}

func (s *memStore) ListActiveBids(ctx context.Context, orderID string, now time.Time) ([]models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Bid{}
	for _, b := range s.bids {
		if b.OrderID == orderID && b.Live(now) {
			out = append(out, b)
		}
	}
	models.SortBids(out)
	return out, nil
}

func (s *memStore) ListVendorBids(ctx context.Context, vendorID string, page models.Page) ([]models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Bid
	for _, b := range s.bids {
		if b.VendorID == vendorID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return paginate(out, page), nil
}

// assignments

func (s *memStore) CreateAssignment(ctx context.Context, a models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.assignments {
		if other.OrderID == a.OrderID && other.Status != models.AssignmentCancelled {
			return models.ErrAssignmentAlreadyExists
		}
	}
	s.assignments[a.ID] = a
	return nil
}

func (s *memStore) GetAssignment(ctx context.Context, id string) (models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return models.Assignment{}, models.ErrNotFound
	}
	return a, nil
}

func (s *memStore) GetOpenAssignment(ctx context.Context, orderID string) (*models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assignments {
		if a.OrderID == orderID && a.Status.Open() {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetOrderAssignment(ctx context.Context, orderID string) (models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best  models.Assignment
		found bool
	)
	for _, a := range s.assignments {
		if a.OrderID != orderID {
			continue
		}
		if !found || assignmentBefore(a, best) {
			best, found = a, true
		}
	}
	if !found {
		return models.Assignment{}, models.ErrNotFound
	}
	return best, nil
}

// assignmentBefore orders non-cancelled assignments first, then newest first.
func assignmentBefore(a, b models.Assignment) bool {
	ac, bc := a.Status == models.AssignmentCancelled, b.Status == models.AssignmentCancelled
	if ac != bc {
		return !ac
	}
	if !a.AssignedAt.Equal(b.AssignedAt) {
		return a.AssignedAt.After(b.AssignedAt)
	}
	return a.ID > b.ID
}

func (s *memStore) ListVendorAssignments(ctx context.Context, vendorID string, page models.Page) ([]models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Assignment
	for _, a := range s.assignments {
		if a.VendorID == vendorID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AssignedAt.Equal(out[j].AssignedAt) {
			return out[i].AssignedAt.After(out[j].AssignedAt)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, page), nil
}

func (s *memStore) UpdateAssignment(ctx context.Context, a models.Assignment, expected models.AssignmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.assignments[a.ID]
	if !ok || cur.Status != expected {
		return models.ErrAlreadyFinalized
	}
	s.assignments[a.ID] = a
	return nil
}

func (s *memStore) SetQualityRating(ctx context.Context, id string, rating int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return models.ErrNotFound
	}
	a.QualityRating = &rating
	a.UpdatedAt = at
	s.assignments[id] = a
	return nil
}

func (s *memStore) ListCompletedWork(ctx context.Context, vendorID string) ([]models.CompletedWork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CompletedWork
	for _, a := range s.assignments {
		if a.VendorID != vendorID || a.Status != models.AssignmentCompleted {
			continue
		}
		w := models.CompletedWork{AssignmentID: a.ID}
		for _, r := range s.reviews {
			if r.AssignmentID == a.ID {
				rating := r.Rating
				w.Rating = &rating
			}
		}
		out = append(out, w)
	}
	return out, nil
}

// vendors

func (s *memStore) GetVendorProfile(ctx context.Context, id string) (models.VendorProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return models.VendorProfile{}, models.ErrNotFound
	}
	return p, nil
}

func (s *memStore) UpsertVendorProfile(ctx context.Context, p models.VendorProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
	return nil
}

func (s *memStore) SetVendorActive(ctx context.Context, id string, active bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return models.ErrNotFound
	}
	p.IsActive = active
	p.UpdatedAt = at
	s.profiles[id] = p
	return nil
}

func (s *memStore) UpdateVendorCapabilities(ctx context.Context, id string, c models.VendorCapabilities, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return models.ErrNotFound
	}
	p.Capabilities = c.Capabilities
	p.Materials = c.Materials
	p.UpdatedAt = at
	s.profiles[id] = p
	return nil
}

func (s *memStore) UpdateVendorReputation(ctx context.Context, id string, rating float64, completed int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return models.ErrNotFound
	}
	p.Rating = rating
	p.TotalOrdersCompleted = completed
	p.UpdatedAt = at
	s.profiles[id] = p
	return nil
}

func (s *memStore) CreateApplication(ctx context.Context, a models.VendorApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.applications {
		if other.ApplicantID == a.ApplicantID && other.Status.Open() {
			return models.ErrDuplicateApplication
		}
	}
	s.applications[a.ID] = a
	return nil
}

func (s *memStore) GetApplication(ctx context.Context, id string) (models.VendorApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.applications[id]
	if !ok {
		return models.VendorApplication{}, models.ErrNotFound
	}
	return a, nil
}

func (s *memStore) UpdateApplication(ctx context.Context, a models.VendorApplication, expected models.ApplicationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.applications[a.ID]
	if !ok || cur.Status != expected {
		return models.ErrAlreadyFinalized
	}
	s.applications[a.ID] = a
	return nil
}

// reviews

func (s *memStore) CreateReview(ctx context.Context, r models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.reviews {
		if other.AssignmentID == r.AssignmentID {
			return models.ErrDuplicateReview
		}
	}
	s.reviews[r.ID] = r
	return nil
}

func (s *memStore) ListVendorReviews(ctx context.Context, vendorID string, page models.Page) ([]models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Review
	for _, r := range s.reviews {
		if r.VendorID == vendorID {
			out = append(out, r)
		}
	}
	return paginate(out, page), nil
}

// outbox

func (s *memStore) AppendEvents(ctx context.Context, events ...models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppendEvents != nil {
		return s.failAppendEvents
	}
	s.events = append(s.events, events...)
	return nil
}

// test helpers

func (s *memStore) eventsOf(kind models.EventKind) []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, e := range s.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) bid(id string) models.Bid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bids[id]
}

func (s *memStore) order(id string) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *memStore) profile(id string) models.VendorProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[id]
}

func (s *memStore) bidCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bids)
}

func (s *memStore) nonCancelledAssignments(orderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.assignments {
		if a.OrderID == orderID && a.Status != models.AssignmentCancelled {
			n++
		}
	}
	return n
}

func (s *memStore) activeBidsFor(orderID, vendorID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.bids {
		if b.OrderID == orderID && b.VendorID == vendorID && b.Status == models.BidActive {
			n++
		}
	}
	return n
}
