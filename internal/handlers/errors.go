package handlers

import (
	"errors"
	"net/http"

	"sourcing/models"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{models.ErrNotFound, http.StatusNotFound, "not_found"},
	{models.ErrInvalidBid, http.StatusBadRequest, "invalid_bid"},
	{models.ErrInvalidOrder, http.StatusBadRequest, "invalid_order"},
	{models.ErrInvalidReview, http.StatusBadRequest, "invalid_review"},
	{models.ErrInvalidApplication, http.StatusBadRequest, "invalid_application"},
	{models.ErrInvalidProfile, http.StatusBadRequest, "invalid_profile"},
	{models.ErrVendorNotEligible, http.StatusForbidden, "vendor_not_eligible"},
	{models.ErrNotOwner, http.StatusForbidden, "not_owner"},
	{models.ErrForbidden, http.StatusForbidden, "forbidden"},
	{models.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{models.ErrIllegalTransition, http.StatusConflict, "illegal_transition"},
	{models.ErrAssignmentAlreadyExists, http.StatusConflict, "assignment_exists"},
	{models.ErrAlreadyFinalized, http.StatusConflict, "already_finalized"},
	{models.ErrDuplicateReview, http.StatusConflict, "duplicate_review"},
	{models.ErrDuplicateApplication, http.StatusConflict, "duplicate_application"},
}

// handleError maps domain errors to their status. Anything else is logged
// and reported as a bare 500.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			writeError(w, e.status, e.code, err.Error())
			return
		}
	}
	h.log.Errorf(r.Context(), "%s %s failed: %v", r.Method, r.URL.Path, err)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
