package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/chromeserver/internal/metrics"
)

// NewRouter configures all HTTP routes. Any request that is not a metrics
// scrape or health check goes to the job adapter, so a wrong path or method
// still gets the job endpoint's plain-text 400.
func NewRouter(adapter *Adapter, m *metrics.Metrics, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()

	if m != nil {
		r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(adapter)

	r.Use(InstrumentMiddleware(logger, m))

	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
