// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTrainingStatus(t *testing.T) {
	tests := []struct {
		name         string
		stoppedEarly bool
		err          error
		want         string
	}{
		{"success", false, nil, "success"},
		{"stopped early", true, nil, "stopped_early"},
		{"canceled", false, context.Canceled, "canceled"},
		{"wrapped deadline", false, fmt.Errorf("epoch 3: %w", context.DeadlineExceeded), "canceled"},
		{"error", false, errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrainingStatus(tt.stoppedEarly, tt.err); got != tt.want {
				t.Errorf("TrainingStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecordTraining(t *testing.T) {
	runs := TrainingRuns.WithLabelValues("test_bpr", "success")
	before := testutil.ToFloat64(runs)

	RecordTraining("test_bpr", 2*time.Second, 0.25, 20, false, nil)

	if got := testutil.ToFloat64(runs) - before; got != 1 {
		t.Errorf("training runs delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(TrainingFinalLoss.WithLabelValues("test_bpr")); got != 0.25 {
		t.Errorf("final loss = %v, want 0.25", got)
	}
	if got := testutil.ToFloat64(TrainingEpochs.WithLabelValues("test_bpr")); got != 20 {
		t.Errorf("epochs = %v, want 20", got)
	}

	// A failed run leaves the last good loss in place.
	RecordTraining("test_bpr", time.Second, 99, 1, false, errors.New("boom"))
	if got := testutil.ToFloat64(TrainingFinalLoss.WithLabelValues("test_bpr")); got != 0.25 {
		t.Errorf("final loss after failure = %v, want 0.25", got)
	}
	if got := testutil.ToFloat64(TrainingRuns.WithLabelValues("test_bpr", "error")); got < 1 {
		t.Errorf("error runs = %v, want >= 1", got)
	}
}

func TestSetTrainingInProgress(t *testing.T) {
	SetTrainingInProgress(true)
	if got := testutil.ToFloat64(TrainingInProgress); got != 1 {
		t.Errorf("in progress = %v, want 1", got)
	}
	SetTrainingInProgress(false)
	if got := testutil.ToFloat64(TrainingInProgress); got != 0 {
		t.Errorf("in progress = %v, want 0", got)
	}
}

func TestRecordPrediction(t *testing.T) {
	calls := PredictionsTotal.WithLabelValues("test_sasrec")
	cold := ColdStarts.WithLabelValues("test_sasrec")
	callsBefore, coldBefore := testutil.ToFloat64(calls), testutil.ToFloat64(cold)

	RecordPrediction("test_sasrec", time.Millisecond, false)
	RecordPrediction("test_sasrec", time.Millisecond, true)

	if got := testutil.ToFloat64(calls) - callsBefore; got != 2 {
		t.Errorf("predictions delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(cold) - coldBefore; got != 1 {
		t.Errorf("cold starts delta = %v, want 1", got)
	}
}

func TestRecordTrustGateFallbacks(t *testing.T) {
	before := testutil.ToFloat64(TrustGateFallbacks)
	RecordTrustGateFallbacks(3)
	RecordTrustGateFallbacks(0)
	if got := testutil.ToFloat64(TrustGateFallbacks) - before; got != 3 {
		t.Errorf("fallbacks delta = %v, want 3", got)
	}
}

func TestRecordRegistryWrite(t *testing.T) {
	tests := []struct {
		name     string
		inserted bool
		err      error
		result   string
	}{
		{"inserted", true, nil, RegistryInserted},
		{"duplicate", false, nil, RegistryDuplicate},
		{"error", true, errors.New("disk full"), RegistryError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := RegistryWrites.WithLabelValues(tt.result)
			before := testutil.ToFloat64(c)
			RecordRegistryWrite(tt.inserted, tt.err)
			if got := testutil.ToFloat64(c) - before; got != 1 {
				t.Errorf("%s delta = %v, want 1", tt.result, got)
			}
		})
	}
}

func TestRecordCacheLookupAndRows(t *testing.T) {
	hits := CacheHits.WithLabelValues("test")
	misses := CacheMisses.WithLabelValues("test")
	h0, m0 := testutil.ToFloat64(hits), testutil.ToFloat64(misses)

	RecordCacheLookup("test", true)
	RecordCacheLookup("test", false)
	RecordCacheLookup("test", false)

	if got := testutil.ToFloat64(hits) - h0; got != 1 {
		t.Errorf("hits delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(misses) - m0; got != 2 {
		t.Errorf("misses delta = %v, want 2", got)
	}

	rows := DatasetRowsLoaded.WithLabelValues("test.csv")
	r0 := testutil.ToFloat64(rows)
	RecordRowsLoaded("test.csv", 42)
	if got := testutil.ToFloat64(rows) - r0; got != 42 {
		t.Errorf("rows delta = %v, want 42", got)
	}

	RecordArtifact("test_dlrm", 1024)
	if got := testutil.ToFloat64(ArtifactBytes.WithLabelValues("test_dlrm")); got != 1024 {
		t.Errorf("artifact bytes = %v, want 1024", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	c := HTTPRequestsTotal.WithLabelValues("GET", "/test", "200")
	before := testutil.ToFloat64(c)
	RecordHTTPRequest("GET", "/test", "200", 3*time.Millisecond)
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("requests delta = %v, want 1", got)
	}

	a0 := testutil.ToFloat64(HTTPActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(HTTPActiveRequests) - a0; got != 1 {
		t.Errorf("active after inc = %v, want 1", got)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(HTTPActiveRequests) - a0; got != 0 {
		t.Errorf("active after dec = %v, want 0", got)
	}
}

func TestAppInfoAndUptime(t *testing.T) {
	SetAppInfo("test")
	UpdateUptime(time.Now().Add(-time.Minute))
	if got := testutil.ToFloat64(AppUptime); got < 59 {
		t.Errorf("uptime = %v, want about 60", got)
	}
}

func TestMetricsLint(t *testing.T) {
	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Fatalf("GatherAndLint() error = %v", err)
	}
	for _, p := range problems {
		t.Errorf("lint %s: %s", p.Metric, p.Text)
	}
}
