package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angeloszaimis/resilience/internal/handler"
	"github.com/angeloszaimis/resilience/internal/metrics"
)

func setupRouter(admin *handler.AdminHandler, sampler *metrics.Sampler, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/circuits", admin)
	mux.Handle("/circuits/", admin)
	mux.Handle("/reviews", admin)
	mux.Handle("/reviews/", admin)
	mux.HandleFunc("GET /metrics", sampler.Handler())
	mux.Handle("GET /metrics/prometheus", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return mux
}
