package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"sourcing/internal/engine"
	"sourcing/models"
)

func (h *Handler) GetVendorHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := h.svc.Reputation.GetVendorProfile(r.Context(), chi.URLParam(r, "vendorId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type capabilitiesRequest struct {
	Capabilities []string `json:"capabilities"`
	Materials    []string `json:"materials"`
}

// UpdateVendorCapabilitiesHandler handles PUT /api/vendors/{vendorId}. Only
// capabilities and materials are editable; other fields in the body are
// ignored.
func (h *Handler) UpdateVendorCapabilitiesHandler(w http.ResponseWriter, r *http.Request) {
	var req capabilitiesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	profile, err := h.svc.Onboarding.UpdateCapabilities(r.Context(), actorFrom(r), chi.URLParam(r, "vendorId"), models.VendorCapabilities{
		Capabilities: req.Capabilities,
		Materials:    req.Materials,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) ListVendorReviewsHandler(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.svc.Reputation.ListVendorReviews(r.Context(), chi.URLParam(r, "vendorId"), parsePaginationParams(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

// RecomputeReputationHandler rebuilds rating and completion count from the
// vendor's completed work. Admin only.
func (h *Handler) RecomputeReputationHandler(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden", "admin role required")
		return
	}
	profile, err := h.svc.Reputation.Recompute(r.Context(), chi.URLParam(r, "vendorId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// SetVendorActiveHandler handles PUT /api/vendors/{vendorId}/active?active=true.
func (h *Handler) SetVendorActiveHandler(w http.ResponseWriter, r *http.Request) {
	active, err := strconv.ParseBool(r.URL.Query().Get("active"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "active must be true or false")
		return
	}
	profile, err := h.svc.Onboarding.SetVendorActive(r.Context(), actorFrom(r), chi.URLParam(r, "vendorId"), active)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type applicationRequest struct {
	CompanyName   string   `json:"companyName"`
	BusinessEmail string   `json:"businessEmail"`
	Capabilities  []string `json:"capabilities"`
	Materials     []string `json:"materials"`
}

func (h *Handler) SubmitApplicationHandler(w http.ResponseWriter, r *http.Request) {
	var req applicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	app, err := h.svc.Onboarding.SubmitApplication(r.Context(), actorFrom(r), engine.ApplicationInput{
		CompanyName:   req.CompanyName,
		BusinessEmail: req.BusinessEmail,
		Capabilities:  req.Capabilities,
		Materials:     req.Materials,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (h *Handler) GetApplicationHandler(w http.ResponseWriter, r *http.Request) {
	app, err := h.svc.Onboarding.GetApplication(r.Context(), actorFrom(r), chi.URLParam(r, "applicationId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) StartApplicationReviewHandler(w http.ResponseWriter, r *http.Request) {
	app, err := h.svc.Onboarding.StartReview(r.Context(), actorFrom(r), chi.URLParam(r, "applicationId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

type decisionRequest struct {
	Notes string `json:"notes"`
}

// readDecision accepts an empty body.
func readDecision(w http.ResponseWriter, r *http.Request) (decisionRequest, bool) {
	var req decisionRequest
	if r.ContentLength == 0 {
		return req, true
	}
	return req, decodeJSON(w, r, &req)
}

func (h *Handler) ApproveApplicationHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := readDecision(w, r)
	if !ok {
		return
	}
	app, err := h.svc.Onboarding.Approve(r.Context(), actorFrom(r), chi.URLParam(r, "applicationId"), req.Notes)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) RejectApplicationHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := readDecision(w, r)
	if !ok {
		return
	}
	app, err := h.svc.Onboarding.Reject(r.Context(), actorFrom(r), chi.URLParam(r, "applicationId"), req.Notes)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}
