package testutils

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sourcing/models"
)

// WithChiURLParams sets path parameters on the chi route context so a
// handler can be called without going through the router.
func WithChiURLParams(req *http.Request, params map[string]string) *http.Request {
	chiCtx := chi.NewRouteContext()
	for k, v := range params {
		chiCtx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, chiCtx))
}

// WithActorHeaders sets the identity headers the router expects.
func WithActorHeaders(req *http.Request, actor models.Actor) *http.Request {
	req.Header.Set("X-Actor-ID", actor.ID)
	req.Header.Set("X-Actor-Role", string(actor.Role))
	return req
}
