package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/resilience/internal/circuitbreaker"
	"github.com/angeloszaimis/resilience/internal/handler"
	"github.com/angeloszaimis/resilience/internal/resilience"
)

type failingController struct {
	*resilience.Manager
}

func (failingController) OpenCircuit(string) error {
	return errors.New("store unavailable")
}

var _ = Describe("AdminHandler", func() {
	var (
		h       *handler.AdminHandler
		manager *resilience.Manager
		log     *slog.Logger
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		manager = resilience.NewManager(circuitbreaker.DefaultSettings(), resilience.WithLogger(log))
		manager.Preload("db", "cache")
		h = handler.NewAdminHandler(log, manager)
	})

	serve := func(method, path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
		return rr
	}

	decodeStatus := func(rr *httptest.ResponseRecorder) circuitbreaker.Status {
		var status circuitbreaker.Status
		Expect(json.Unmarshal(rr.Body.Bytes(), &status)).To(Succeed())
		return status
	}

	It("should list circuits", func() {
		rr := serve(http.MethodGet, "/circuits")
		Expect(rr.Code).To(Equal(http.StatusOK))
		Expect(rr.Header().Get("Content-Type")).To(Equal("application/json"))

		var statuses []circuitbreaker.Status
		Expect(json.Unmarshal(rr.Body.Bytes(), &statuses)).To(Succeed())
		Expect(statuses).To(HaveLen(2))
		Expect(statuses[0].Name).To(Equal("cache"))
	})

	It("should return a single circuit", func() {
		rr := serve(http.MethodGet, "/circuits/db")
		Expect(rr.Code).To(Equal(http.StatusOK))
		Expect(decodeStatus(rr).State).To(Equal(circuitbreaker.StateClosed))
	})

	It("should return 404 with a JSON error for unknown circuits", func() {
		for _, req := range [][2]string{
			{http.MethodGet, "/circuits/nope"},
			{http.MethodPost, "/circuits/nope/open"},
			{http.MethodPost, "/circuits/nope/close"},
			{http.MethodPost, "/circuits/nope/reset"},
			{http.MethodDelete, "/circuits/nope"},
		} {
			rr := serve(req[0], req[1])
			Expect(rr.Code).To(Equal(http.StatusNotFound), req[1])

			var body map[string]string
			Expect(json.Unmarshal(rr.Body.Bytes(), &body)).To(Succeed())
			Expect(body["error"]).To(ContainSubstring("circuit not found"))
		}
	})

	It("should open, close and reset circuits", func() {
		rr := serve(http.MethodPost, "/circuits/db/open")
		Expect(rr.Code).To(Equal(http.StatusOK))
		Expect(decodeStatus(rr).State).To(Equal(circuitbreaker.StateOpen))

		_, err := manager.Execute(context.Background(), "db", func(context.Context) (any, error) { return nil, nil }, nil)
		Expect(resilience.KindOf(err)).To(Equal(resilience.KindCircuitOpen))

		rr = serve(http.MethodPost, "/circuits/db/close")
		Expect(rr.Code).To(Equal(http.StatusOK))
		Expect(decodeStatus(rr).State).To(Equal(circuitbreaker.StateClosed))

		rr = serve(http.MethodPost, "/circuits/db/reset")
		Expect(rr.Code).To(Equal(http.StatusOK))
		status := decodeStatus(rr)
		Expect(status.Metrics).To(Equal(circuitbreaker.Counters{}))
		Expect(status.StateChanges).To(BeEmpty())
	})

	It("should remove circuits", func() {
		rr := serve(http.MethodDelete, "/circuits/db")
		Expect(rr.Code).To(Equal(http.StatusNoContent))
		Expect(rr.Body.Len()).To(BeZero())

		Expect(serve(http.MethodGet, "/circuits/db").Code).To(Equal(http.StatusNotFound))
	})

	It("should reject unsupported methods", func() {
		Expect(serve(http.MethodPut, "/circuits/db").Code).To(Equal(http.StatusMethodNotAllowed))
		Expect(serve(http.MethodGet, "/circuits/db/open").Code).To(Equal(http.StatusMethodNotAllowed))
	})

	It("should map other errors to 500", func() {
		h = handler.NewAdminHandler(log, failingController{manager})

		rr := serve(http.MethodPost, "/circuits/db/open")
		Expect(rr.Code).To(Equal(http.StatusInternalServerError))
		Expect(rr.Body.String()).To(ContainSubstring("store unavailable"))
	})

	Describe("reviews", func() {
		var queue *resilience.ReviewQueue

		BeforeEach(func() {
			queue = resilience.NewReviewQueue(10)
			h = handler.NewAdminHandler(log, manager, handler.WithReviews(queue))
		})

		It("should not expose reviews without a queue", func() {
			h = handler.NewAdminHandler(log, manager)
			Expect(serve(http.MethodGet, "/reviews").Code).To(Equal(http.StatusNotFound))
		})

		It("should list an empty queue as an empty array", func() {
			rr := serve(http.MethodGet, "/reviews")
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`[]`))
		})

		It("should list and take deferred calls in order", func() {
			deferred := resilience.Deferred(queue)
			_, err := manager.Execute(context.Background(), "db", func(context.Context) (any, error) {
				return nil, errors.New("db down")
			}, deferred)
			Expect(err).NotTo(HaveOccurred())

			rr := serve(http.MethodGet, "/reviews")
			Expect(rr.Code).To(Equal(http.StatusOK))
			var pending []resilience.ReviewTicket
			Expect(json.Unmarshal(rr.Body.Bytes(), &pending)).To(Succeed())
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].Service).To(Equal("db"))
			Expect(pending[0].Kind).To(Equal(resilience.KindOperationError))

			rr = serve(http.MethodPost, "/reviews/take")
			Expect(rr.Code).To(Equal(http.StatusOK))
			var taken resilience.ReviewTicket
			Expect(json.Unmarshal(rr.Body.Bytes(), &taken)).To(Succeed())
			Expect(taken.ID).To(Equal(pending[0].ID))

			Expect(serve(http.MethodPost, "/reviews/take").Code).To(Equal(http.StatusNoContent))
			Expect(queue.Len()).To(BeZero())
		})
	})
})
