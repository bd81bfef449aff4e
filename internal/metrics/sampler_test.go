package metrics_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/resilience/internal/circuitbreaker"
	"github.com/angeloszaimis/resilience/internal/events"
	"github.com/angeloszaimis/resilience/internal/metrics"
)

var _ = Describe("Sampler", func() {
	var (
		source  *fakeSource
		rec     *recorder
		logger  *slog.Logger
		now     time.Time
		sampler *metrics.Sampler
	)

	BeforeEach(func() {
		source = &fakeSource{
			global:   circuitbreaker.GlobalMetrics{TotalRequests: 10, TotalFailures: 2},
			circuits: []circuitbreaker.Status{closedCircuit("db")},
		}
		rec = &recorder{}
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		sampler = metrics.NewSampler(source, rec, time.Minute, logger,
			metrics.WithClock(func() time.Time { return now }))
	})

	It("should build a report of the source", func() {
		report := sampler.Collect()

		Expect(report.Timestamp).To(Equal(now))
		Expect(report.Global.TotalRequests).To(Equal(int64(10)))
		Expect(report.GlobalFailureRate).To(BeNumerically("~", 0.2, 1e-9))
		Expect(report.Circuits).To(HaveLen(1))

		latest, ok := sampler.Latest()
		Expect(ok).To(BeTrue())
		Expect(latest).To(Equal(report))
		Expect(rec.types()).To(Equal([]events.Type{events.TypeMetricsCollected}))
	})

	It("should publish anomalies and predictions after the report", func() {
		source.global.TotalFailures = 5
		c := closedCircuit("db")
		c.WindowFailures = 4
		source.circuits = []circuitbreaker.Status{c}

		sampler.Collect()

		Expect(rec.types()).To(Equal([]events.Type{
			events.TypeMetricsCollected,
			events.TypeAnomaliesDetected,
			events.TypeFailurePrediction,
		}))
	})

	It("should honour custom thresholds", func() {
		sampler = metrics.NewSampler(source, rec, time.Minute, logger,
			metrics.WithThresholds(metrics.Thresholds{GlobalFailureRate: 0.1, PredictFailureRatio: 1, PredictFailureRate: 1}))

		sampler.Collect()
		Expect(rec.types()).To(ContainElement(events.TypeAnomaliesDetected))
	})

	It("should sample on every tick until stopped", func() {
		sampler = metrics.NewSampler(source, rec, 10*time.Millisecond, logger)
		ctx, cancel := context.WithCancel(context.Background())
		sampler.Start(ctx)

		Eventually(rec.count).Should(BeNumerically(">=", 2))

		cancel()
		time.Sleep(20 * time.Millisecond)
		stopped := rec.count()
		Consistently(rec.count, 50*time.Millisecond).Should(Equal(stopped))
	})

	Describe("Handler", func() {
		It("should serve the latest report as JSON", func() {
			sampler.Collect()

			rr := httptest.NewRecorder()
			sampler.Handler()(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Header().Get("Content-Type")).To(Equal("application/json"))

			var body map[string]any
			Expect(json.Unmarshal(rr.Body.Bytes(), &body)).To(Succeed())
			Expect(body).To(HaveKey("global"))
			Expect(body["circuits"]).To(HaveLen(1))
		})

		It("should serve a sample without publishing when nothing has been collected yet", func() {
			source.global.TotalFailures = 5

			rr := httptest.NewRecorder()
			sampler.Handler()(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Expect(rr.Code).To(Equal(http.StatusOK))
			var body map[string]any
			Expect(json.Unmarshal(rr.Body.Bytes(), &body)).To(Succeed())
			Expect(body["circuits"]).To(HaveLen(1))

			_, ok := sampler.Latest()
			Expect(ok).To(BeFalse())
			Expect(rec.types()).To(BeEmpty())
		})
	})
})
