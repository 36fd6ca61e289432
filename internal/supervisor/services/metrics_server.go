// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package services

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/wayfarer/internal/metrics"
	"github.com/tomtom215/wayfarer/internal/middleware"
	"github.com/tomtom215/wayfarer/internal/recommend"
)

// StatusSource reports engine state for the health endpoints.
// *pipeline.Engine satisfies it.
type StatusSource interface {
	Ready() bool
	Status() recommend.TrainingStatus
	ServedVersions() map[string]int
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Ready         bool                     `json:"ready"`
	Training      recommend.TrainingStatus `json:"training"`
	Models        map[string]int           `json:"models"`
	UptimeSeconds float64                  `json:"uptime_seconds"`
}

// NewMetricsHandler serves Prometheus metrics at metricsPath along with the
// routes below. Every response carries X-Request-ID and a panicking
// handler is answered with 500 by chi's Recoverer.
//
//	GET /healthz  always 200 while the process is up
//	GET /readyz   200 once a retrieval model is trained, 503 before
//	GET /status   training status and served model versions as JSON
func NewMetricsHandler(metricsPath string, src StatusSource) http.Handler {
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	h := &opsHandler{src: src, started: time.Now(), prom: promhttp.Handler()}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Instrument)

	r.Get(metricsPath, h.metrics)
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Get("/status", h.status)
	return r
}

type opsHandler struct {
	src     StatusSource
	started time.Time
	prom    http.Handler
}

func (h *opsHandler) metrics(w http.ResponseWriter, r *http.Request) {
	metrics.UpdateUptime(h.started)
	h.prom.ServeHTTP(w, r)
}

func (h *opsHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (h *opsHandler) readyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !h.src.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no trained retrieval model\n"))
		return
	}
	_, _ = w.Write([]byte("ready\n"))
}

func (h *opsHandler) status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Ready:         h.src.Ready(),
		Training:      h.src.Status(),
		Models:        h.src.ServedVersions(),
		UptimeSeconds: time.Since(h.started).Seconds(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// NewMetricsServer returns an *http.Server for handler on addr.
func NewMetricsServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
