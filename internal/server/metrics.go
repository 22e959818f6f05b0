package server

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/issueboard/issueboard/internal/telemetry"
)

// requestMetrics holds the OTel instruments for the request pipeline. With
// telemetry disabled these are no-op instruments and recording is free.
type requestMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newRequestMetrics() (*requestMetrics, error) {
	meter := telemetry.Meter("")

	requests, err := meter.Int64Counter("http.server.request.count",
		metric.WithDescription("Completed HTTP requests"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &requestMetrics{requests: requests, duration: duration}, nil
}

// metrics records a count and latency sample per completed request.
func (s *Server) metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		attrs := metric.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.Int("http.status_code", rec.status),
		)
		s.requestMetrics.requests.Add(r.Context(), 1, attrs)
		s.requestMetrics.duration.Record(r.Context(),
			float64(time.Since(start))/float64(time.Millisecond), attrs)
	})
}
