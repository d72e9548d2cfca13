package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sourcing/internal/logger"
	"sourcing/models"
)

const maxBodyBytes = 1 << 20

// Handler serves the lifecycle engine over HTTP.
type Handler struct {
	svc Services
	log logger.Logger
}

func NewHandler(svc Services, log logger.Logger) *Handler {
	return &Handler{svc: svc, log: log.With("component", "http")}
}

// Router mounts every route under /api.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)

		r.Group(func(r chi.Router) {
			r.Use(h.actorMiddleware)

			r.Post("/orders", h.CreateOrderHandler)
			r.Get("/orders", h.ListOrdersHandler)
			r.Get("/orders/my", h.ListMyOrdersHandler)
			r.Get("/orders/assigned", h.ListAssignedOrdersHandler)
			r.Get("/orders/stats", h.OrderStatisticsHandler)
			r.Get("/orders/{orderId}", h.GetOrderHandler)
			r.Get("/orders/{orderId}/assignment", h.GetOrderAssignmentHandler)
			r.Post("/orders/{orderId}/events", h.ApplyOrderEventHandler)
			r.Get("/orders/{orderId}/history", h.OrderHistoryHandler)
			r.Get("/orders/{orderId}/bids", h.ListOrderBidsHandler)
			r.Post("/orders/{orderId}/bids/{bidId}/accept", h.AcceptBidHandler)

			r.Post("/bids", h.SubmitBidHandler)
			r.Get("/bids/my", h.ListMyBidsHandler)
			r.Put("/bids/{bidId}/withdraw", h.WithdrawBidHandler)

			r.Get("/assignments/my", h.ListMyAssignmentsHandler)
			r.Get("/assignments/{assignmentId}", h.GetAssignmentHandler)
			r.Put("/assignments/{assignmentId}/status", h.UpdateAssignmentHandler)
			r.Post("/assignments/{assignmentId}/review", h.SubmitReviewHandler)

			r.Get("/vendors/{vendorId}", h.GetVendorHandler)
			r.Put("/vendors/{vendorId}", h.UpdateVendorCapabilitiesHandler)
			r.Get("/vendors/{vendorId}/reviews", h.ListVendorReviewsHandler)
			r.Post("/vendors/{vendorId}/recompute", h.RecomputeReputationHandler)
			r.Put("/vendors/{vendorId}/active", h.SetVendorActiveHandler)

			r.Post("/vendor-applications", h.SubmitApplicationHandler)
			r.Get("/vendor-applications/{applicationId}", h.GetApplicationHandler)
			r.Put("/vendor-applications/{applicationId}/review", h.StartApplicationReviewHandler)
			r.Put("/vendor-applications/{applicationId}/approve", h.ApproveApplicationHandler)
			r.Put("/vendor-applications/{applicationId}/reject", h.RejectApplicationHandler)
		})
	})
	return r
}

// PingHandler answers "ok" while the store is reachable.
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	if h.svc.Health != nil {
		if err := h.svc.Health.Ping(r.Context()); err != nil {
			h.log.Errorf(r.Context(), "ping failed: %v", err)
			writeError(w, http.StatusServiceUnavailable, "unavailable", "storage unavailable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		h.log.Infof(ctx, "%s %s -> %d (%d bytes) in %s",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start))
	})
}

type actorKey struct{}

// actorMiddleware trusts the identity headers set by the gateway.
func (h *Handler) actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := models.Actor{
			ID:   r.Header.Get("X-Actor-ID"),
			Role: models.Role(r.Header.Get("X-Actor-Role")),
		}
		if actor.ID == "" || !actor.Role.Valid() {
			writeError(w, http.StatusUnauthorized, "unauthorized", "X-Actor-ID and X-Actor-Role headers are required")
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		ctx = logger.WithActorID(ctx, actor.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithActor puts actor into ctx the way actorMiddleware does.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(r *http.Request) models.Actor {
	actor, _ := r.Context().Value(actorKey{}).(models.Actor)
	return actor
}

// decodeJSON reads a bounded JSON body into v. It writes the 400 itself and
// reports whether the handler may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// parsePaginationParams reads limit and offset, falling back to 5 and 0.
// Limits outside 1..50 are ignored.
func parsePaginationParams(r *http.Request) models.Page {
	page := models.Page{Limit: 5}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 50 {
		page.Limit = l
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		page.Offset = o
	}
	return page
}
