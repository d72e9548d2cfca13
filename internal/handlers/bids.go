package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"sourcing/internal/engine"
)

type submitBidRequest struct {
	OrderID      string          `json:"orderId"`
	Amount       decimal.Decimal `json:"amount"`
	DeliveryDays int             `json:"deliveryDays"`
	Notes        string          `json:"notes"`
}

// SubmitBidHandler handles POST /api/bids. A vendor's earlier active bid on
// the same order is superseded.
func (h *Handler) SubmitBidHandler(w http.ResponseWriter, r *http.Request) {
	var req submitBidRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "orderId is required")
		return
	}

	bid, err := h.svc.Bids.SubmitBid(r.Context(), actorFrom(r), engine.SubmitBidInput{
		OrderID:      req.OrderID,
		Amount:       req.Amount,
		DeliveryDays: req.DeliveryDays,
		Notes:        req.Notes,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

func (h *Handler) WithdrawBidHandler(w http.ResponseWriter, r *http.Request) {
	bid, err := h.svc.Bids.WithdrawBid(r.Context(), actorFrom(r), chi.URLParam(r, "bidId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

func (h *Handler) ListMyBidsHandler(w http.ResponseWriter, r *http.Request) {
	bids, err := h.svc.Bids.ListVendorBids(r.Context(), actorFrom(r), parsePaginationParams(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

// ListOrderBidsHandler returns the live bids of an order, best first.
func (h *Handler) ListOrderBidsHandler(w http.ResponseWriter, r *http.Request) {
	bids, err := h.svc.Bids.ListActiveBids(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

// AcceptBidHandler handles POST /api/orders/{orderId}/bids/{bidId}/accept.
// On success the order is confirmed and every other active bid is rejected.
func (h *Handler) AcceptBidHandler(w http.ResponseWriter, r *http.Request) {
	assignment, err := h.svc.Assignments.AcceptBidAndAssign(r.Context(), actorFrom(r),
		chi.URLParam(r, "orderId"), chi.URLParam(r, "bidId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, assignment)
}
