package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	tracing "github.com/laifehacker/lso-roll-calculator/internal/otel"
)

// maxBodyBytes bounds request bodies; every request type is a handful of short strings
const maxBodyBytes = 64 << 10

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Status     string `json:"status"`
	Error      string `json:"error"`
}

// statusRecorder captures the status code for metrics and spans
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument applies the method check, rate limiting, a span and request
// metrics around h.
func (s *Server) instrument(endpoint, method string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		ctx, span := tracing.Tracer().Start(r.Context(), "http."+endpoint)
		defer span.End()
		r = r.WithContext(ctx)

		switch {
		case r.Method != method:
			rec.Header().Set("Allow", method)
			s.errorResponse(rec, r, http.StatusMethodNotAllowed, "Method not allowed")
		case s.rateLimit != nil && !s.rateLimit.Allow():
			s.errorResponse(rec, r, http.StatusTooManyRequests, "Rate limit exceeded")
		default:
			h(rec, r)
		}

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.Int("http.status_code", rec.status),
		)
		s.metrics.requestCounter.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
		s.metrics.requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	})
}

// decodeBody reads a bounded JSON body into dst
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("Failed to write response: %v", err)
	}
}

// errorResponse logs the failure, marks the span and writes an ErrorResponse
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorMsg string) {
	logrus.WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"status": statusCode,
	}).Warn(errorMsg)

	tracing.RecordError(r.Context(), fmt.Errorf("%s", errorMsg))

	writeJSON(w, statusCode, ErrorResponse{
		StatusCode: statusCode,
		Status:     "error",
		Error:      errorMsg,
	})
}
