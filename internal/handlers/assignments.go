package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sourcing/internal/engine"
	"sourcing/models"
)

func (h *Handler) GetAssignmentHandler(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Assignments.GetAssignment(r.Context(), chi.URLParam(r, "assignmentId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListMyAssignmentsHandler handles GET /api/assignments/my for the calling vendor.
func (h *Handler) ListMyAssignmentsHandler(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.svc.Assignments.ListVendorAssignments(r.Context(), actorFrom(r), parsePaginationParams(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (h *Handler) GetOrderAssignmentHandler(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Assignments.GetOrderAssignment(r.Context(), actorFrom(r), chi.URLParam(r, "orderId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type assignmentStatusRequest struct {
	Status      models.AssignmentStatus `json:"status"`
	Notes       string                  `json:"notes"`
	CompletedAt *time.Time              `json:"completedAt"`
}

// UpdateAssignmentHandler handles PUT /api/assignments/{assignmentId}/status.
func (h *Handler) UpdateAssignmentHandler(w http.ResponseWriter, r *http.Request) {
	var req assignmentStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown assignment status")
		return
	}

	a, err := h.svc.Assignments.UpdateAssignment(r.Context(), actorFrom(r), engine.UpdateAssignmentInput{
		AssignmentID: chi.URLParam(r, "assignmentId"),
		Status:       req.Status,
		Notes:        req.Notes,
		CompletedAt:  req.CompletedAt,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type reviewRequest struct {
	Rating              int    `json:"rating"`
	QualityRating       *int   `json:"qualityRating"`
	DeliveryRating      *int   `json:"deliveryRating"`
	CommunicationRating *int   `json:"communicationRating"`
	Text                string `json:"text"`
}

func (h *Handler) SubmitReviewHandler(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	review, err := h.svc.Reputation.SubmitReview(r.Context(), actorFrom(r), engine.ReviewInput{
		AssignmentID:        chi.URLParam(r, "assignmentId"),
		Rating:              req.Rating,
		QualityRating:       req.QualityRating,
		DeliveryRating:      req.DeliveryRating,
		CommunicationRating: req.CommunicationRating,
		Text:                req.Text,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}
