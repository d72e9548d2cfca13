package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"sourcing/internal/engine"
	"sourcing/models"
)

type createOrderRequest struct {
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Material           string              `json:"material"`
	Quantity           int                 `json:"quantity"`
	Priority           models.Priority     `json:"priority"`
	TargetPrice        decimal.NullDecimal `json:"targetPrice"`
	TargetDeliveryDate *time.Time          `json:"targetDeliveryDate"`
}

// CreateOrderHandler handles POST /api/orders.
func (h *Handler) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.svc.Orders.CreateOrder(r.Context(), actorFrom(r), engine.CreateOrderInput{
		Title:              req.Title,
		Description:        req.Description,
		Material:           req.Material,
		Quantity:           req.Quantity,
		Priority:           req.Priority,
		TargetPrice:        req.TargetPrice,
		TargetDeliveryDate: req.TargetDeliveryDate,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// parseOrderFilter reads the status and priority query parameters next to
// the page. Unknown values are rejected by the order service.
func parseOrderFilter(r *http.Request) models.OrderFilter {
	q := r.URL.Query()
	return models.OrderFilter{
		Status:   models.OrderStatus(q.Get("status")),
		Priority: models.Priority(q.Get("priority")),
		Page:     parsePaginationParams(r),
	}
}

// ListOrdersHandler handles GET /api/orders. Without ?status it lists orders
// still accepting bids.
func (h *Handler) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Orders.ListOrders(r.Context(), actorFrom(r), parseOrderFilter(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) ListMyOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Orders.ListBuyerOrders(r.Context(), actorFrom(r), parseOrderFilter(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// ListAssignedOrdersHandler lists the orders assigned to the calling vendor.
func (h *Handler) ListAssignedOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Orders.ListVendorOrders(r.Context(), actorFrom(r), parseOrderFilter(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) OrderStatisticsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Orders.Statistics(r.Context(), actorFrom(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.Orders.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type applyEventRequest struct {
	Event  models.OrderEvent `json:"event"`
	Reason string            `json:"reason"`
	Notes  string            `json:"notes"`
}

// ApplyOrderEventHandler handles POST /api/orders/{orderId}/events. Only
// shipped, delivered, cancelled, hold and resume are accepted here.
func (h *Handler) ApplyOrderEventHandler(w http.ResponseWriter, r *http.Request) {
	var req applyEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Event == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "event is required")
		return
	}

	order, err := h.svc.Orders.Apply(r.Context(), actorFrom(r), chi.URLParam(r, "orderId"), engine.ApplyInput{
		Event:  req.Event,
		Reason: req.Reason,
		Notes:  req.Notes,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) OrderHistoryHandler(w http.ResponseWriter, r *http.Request) {
	history, err := h.svc.Orders.History(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
