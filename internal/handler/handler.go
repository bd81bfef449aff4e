package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/angeloszaimis/resilience/internal/circuitbreaker"
	"github.com/angeloszaimis/resilience/internal/resilience"
)

// Controller is the manual control surface of the resilience manager.
type Controller interface {
	OpenCircuit(name string) error
	CloseCircuit(name string) error
	ResetCircuit(name string) error
	RemoveCircuit(name string) error
	CircuitStatus(name string) (circuitbreaker.Status, error)
	AllMetrics() []circuitbreaker.Status
}

// Reviews is the queue of calls deferred for manual review.
type Reviews interface {
	Pending() []resilience.ReviewTicket
	Take() (resilience.ReviewTicket, bool)
}

type Option func(*AdminHandler)

// WithReviews exposes the review queue under /reviews.
func WithReviews(reviews Reviews) Option {
	return func(h *AdminHandler) {
		h.reviews = reviews
	}
}

type AdminHandler struct {
	logger     *slog.Logger
	controller Controller
	reviews    Reviews
	mux        *http.ServeMux
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewAdminHandler(logger *slog.Logger, controller Controller, opts ...Option) *AdminHandler {
	h := &AdminHandler{
		logger:     logger,
		controller: controller,
		mux:        http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.mux.HandleFunc("GET /circuits", h.listCircuits)
	h.mux.HandleFunc("GET /circuits/{name}", h.getCircuit)
	h.mux.HandleFunc("POST /circuits/{name}/open", h.control(controller.OpenCircuit))
	h.mux.HandleFunc("POST /circuits/{name}/close", h.control(controller.CloseCircuit))
	h.mux.HandleFunc("POST /circuits/{name}/reset", h.control(controller.ResetCircuit))
	h.mux.HandleFunc("DELETE /circuits/{name}", h.removeCircuit)

	if h.reviews != nil {
		h.mux.HandleFunc("GET /reviews", h.listReviews)
		h.mux.HandleFunc("POST /reviews/take", h.takeReview)
	}

	return h
}

func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	h.mux.ServeHTTP(wrapped, r)

	h.logger.Info("Admin request",
		slog.String("from", extractClientIP(r)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", wrapped.statusCode))
}

func (h *AdminHandler) listCircuits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.AllMetrics())
}

func (h *AdminHandler) getCircuit(w http.ResponseWriter, r *http.Request) {
	status, err := h.controller.CircuitStatus(r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// control applies action to the named circuit and responds with its
// resulting status.
func (h *AdminHandler) control(action func(name string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if err := action(name); err != nil {
			h.writeError(w, err)
			return
		}
		h.getCircuit(w, r)
	}
}

func (h *AdminHandler) removeCircuit(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.RemoveCircuit(r.PathValue("name")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) listReviews(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.reviews.Pending())
}

// takeReview dequeues the oldest ticket, or answers 204 when none is pending.
func (h *AdminHandler) takeReview(w http.ResponseWriter, _ *http.Request) {
	ticket, ok := h.reviews.Take()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *AdminHandler) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, resilience.ErrCircuitNotFound) {
		code = http.StatusNotFound
	} else {
		h.logger.Error("Admin request failed", slog.Any("err", err))
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
