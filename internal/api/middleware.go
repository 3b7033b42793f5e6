package api

import (
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/chromeserver/internal/metrics"
)

// InstrumentMiddleware logs every request and counts it by method and status
func InstrumentMiddleware(logger *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stats := httpsnoop.CaptureMetrics(next, w, r)

			if m != nil {
				m.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(stats.Code)).Inc()
			}
			logger.Info("request served",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", stats.Code),
				zap.Int64("bytes", stats.Written),
				zap.Duration("duration", stats.Duration),
			)
		})
	}
}
