package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var requestCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "golden_axe_api_requests_total",
	Help: "API requests by route and status",
}, []string{"route", "status"})

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Flush() {
	if flusher, ok := rec.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// shortKey truncates an api key for logging, enough to identify the
// account without leaking the credential.
func shortKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}

// RequestLogMiddleware records latency and outcome per request and sets
// the latency response header.
func RequestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("Trailer", "X-Latency")

		next.ServeHTTP(rec, r)

		latency := time.Since(start)
		w.Header().Set("X-Latency", fmt.Sprintf("%d", latency.Milliseconds()))
		requestCounter.WithLabelValues(r.URL.Path, fmt.Sprintf("%d", rec.status)).Inc()
		logger.WithFields(logrus.Fields{
			"route":   r.URL.Path,
			"method":  r.Method,
			"status":  rec.status,
			"latency": latency,
			"key":     shortKey(apiKey(r)),
		}).Info("handled request")
	})
}
