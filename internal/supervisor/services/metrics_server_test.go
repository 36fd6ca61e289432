// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package services

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/wayfarer/internal/metrics"
	"github.com/tomtom215/wayfarer/internal/recommend"
)

type fakeStatus struct {
	ready bool
}

func (f fakeStatus) Ready() bool { return f.ready }

func (f fakeStatus) Status() recommend.TrainingStatus {
	return recommend.TrainingStatus{Runs: 3, CurrentModel: "sasrec", IsTraining: true}
}

func (f fakeStatus) ServedVersions() map[string]int {
	return map[string]int{"bpr": 4}
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ready    bool
		path     string
		wantCode int
		wantBody string
	}{
		{"healthz", false, "/healthz", http.StatusOK, "ok"},
		{"readyz before training", false, "/readyz", http.StatusServiceUnavailable, "no trained"},
		{"readyz after training", true, "/readyz", http.StatusOK, "ready"},
		{"metrics", true, "/metrics", http.StatusOK, "wayfarer_"},
		{"unknown path", true, "/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := NewMetricsHandler("", fakeStatus{ready: tt.ready})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.wantCode)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Errorf("GET %s has no X-Request-ID", tt.path)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("GET %s body = %q, want substring %q", tt.path, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestMetricsHandler_Status(t *testing.T) {
	t.Parallel()

	h := NewMetricsHandler("/custom-metrics", fakeStatus{ready: true})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !got.Ready || got.Training.Runs != 3 || got.Training.CurrentModel != "sasrec" || got.Models["bpr"] != 4 {
		t.Errorf("status = %+v", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/custom-metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /custom-metrics = %d", rec.Code)
	}
}

func TestMetricsHandler_RouteLabels(t *testing.T) {
	t.Parallel()

	h := NewMetricsHandler("/ops-metrics", fakeStatus{ready: true})
	tests := []struct {
		method   string
		path     string
		wantCode int
		label    string // empty skips the counter check
	}{
		{http.MethodGet, "/status", http.StatusOK, "/status"},
		{http.MethodGet, "/ops-metrics", http.StatusOK, "/ops-metrics"},
		{http.MethodPost, "/healthz", http.StatusMethodNotAllowed, ""},
	}
	for _, tt := range tests {
		counter := metrics.HTTPRequestsTotal.WithLabelValues(tt.method, tt.label, strconv.Itoa(tt.wantCode))
		before := testutil.ToFloat64(counter)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

		if rec.Code != tt.wantCode {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantCode)
		}
		if tt.label == "" {
			continue
		}
		if got := testutil.ToFloat64(counter) - before; got < 1 {
			t.Errorf("%s %s counter{%s} delta = %v, want >= 1", tt.method, tt.path, tt.label, got)
		}
	}
}

func TestNewMetricsServer(t *testing.T) {
	t.Parallel()

	h := http.NewServeMux()
	srv := NewMetricsServer(":0", h)
	if srv.Addr != ":0" || srv.Handler != h {
		t.Errorf("server = %+v", srv)
	}
	if srv.ReadHeaderTimeout != 5*time.Second {
		t.Errorf("ReadHeaderTimeout = %v", srv.ReadHeaderTimeout)
	}
}
