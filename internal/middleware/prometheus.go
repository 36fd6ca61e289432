// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/wayfarer/internal/metrics"
)

// otherPath labels requests that matched no route.
const otherPath = "other"

// Instrument records Prometheus metrics for every request. It must be
// mounted with chi's r.Use so the matched route pattern, not the raw URL,
// becomes the path label.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.TrackActiveRequest(true)
		defer metrics.TrackActiveRequest(false)

		start := time.Now()
		wrapper := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		defer func() {
			code := wrapper.statusCode
			rvr := recover()
			if rvr != nil {
				// Recoverer further out answers with 500.
				code = http.StatusInternalServerError
			}
			metrics.RecordHTTPRequest(r.Method, routePattern(r), strconv.Itoa(code), time.Since(start))
			if rvr != nil {
				panic(rvr)
			}
		}()
		next.ServeHTTP(wrapper, r)
	})
}

// routePattern returns the chi pattern that served r, or otherPath.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return otherPath
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return otherPath
}

// metricsResponseWriter captures the status code.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
