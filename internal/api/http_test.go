package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/chromeserver/internal/metrics"
)

func newTestRouter(runner *recordingRunner) (http.Handler, *metrics.Metrics) {
	m := metrics.New()
	adapter := NewAdapter(AdapterOptions{Runner: runner})
	return NewRouter(adapter, m, zap.NewNop()), m
}

func TestRouterJob(t *testing.T) {
	runner := &recordingRunner{}
	router, m := newTestRouter(runner)

	req := httptest.NewRequest(http.MethodPost, "/job?errorAutoScreenshot&a=1&a=2", strings.NewReader("exports.handler = () => {}"))
	req.Header.Set("Content-Type", ContentTypeJavaScript)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"logMessages": [`)
	require.Equal(t, 1, runner.calls())
	assert.Equal(t, "exports.handler = () => {}", runner.sources[0])
	assert.Equal(t, map[string]string{"errorAutoScreenshot": "", "a": "1"}, runner.params[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "200")))
}

func TestRouterBase64Body(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("exports.handler = () => 2"))

	t.Run("query flag", func(t *testing.T) {
		runner := &recordingRunner{}
		router, _ := newTestRouter(runner)

		req := httptest.NewRequest(http.MethodPost, "/job?isBase64Encoded", strings.NewReader(encoded))
		req.Header.Set("Content-Type", ContentTypeJavaScript)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "exports.handler = () => 2", runner.sources[0])
		assert.Empty(t, runner.params[0])
	})

	t.Run("transfer encoding header", func(t *testing.T) {
		runner := &recordingRunner{}
		router, _ := newTestRouter(runner)

		req := httptest.NewRequest(http.MethodPost, "/job", strings.NewReader(encoded))
		req.Header.Set("Content-Type", ContentTypeJavaScript)
		req.Header.Set("Content-Transfer-Encoding", "base64")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "exports.handler = () => 2", runner.sources[0])
	})
}

func TestRouterRejections(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		code        int
		body        string
	}{
		{"wrong method", http.MethodGet, "/job", ContentTypeJavaScript, http.StatusBadRequest, "Invalid method: GET"},
		{"wrong path", http.MethodPost, "/run", ContentTypeJavaScript, http.StatusBadRequest, "Invalid path: /run"},
		{"wrong content type", http.MethodPost, "/job", "application/json", http.StatusBadRequest, "Expecting application/javascript Content-Type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &recordingRunner{}
			router, _ := newTestRouter(runner)

			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader("x"))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
			assert.Zero(t, runner.calls())
		})
	}
}

func TestRouterBodyTooLarge(t *testing.T) {
	runner := &recordingRunner{}
	router, _ := newTestRouter(runner)

	req := httptest.NewRequest(http.MethodPost, "/job", strings.NewReader(strings.Repeat("a", MaxScriptBytes+1)))
	req.Header.Set("Content-Type", ContentTypeJavaScript)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, runner.calls())
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(&recordingRunner{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chromeserver_http_requests_total")
}

func TestHandleAPIGateway(t *testing.T) {
	runner := &recordingRunner{}
	adapter := NewAdapter(AdapterOptions{Runner: runner})

	resp, err := adapter.HandleAPIGateway(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:            http.MethodPost,
		Path:                  "/job",
		Headers:               map[string]string{"content-type": ContentTypeJavaScript},
		QueryStringParameters: map[string]string{"errorAutoScreenshot": "1"},
		Body:                  base64.StdEncoding.EncodeToString([]byte("exports.handler = () => 3")),
		IsBase64Encoded:       true,
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.Equal(t, []string{"exports.handler = () => 3"}, runner.sources)
	assert.Equal(t, map[string]string{"errorAutoScreenshot": "1"}, runner.params[0])

	resp, err = adapter.HandleAPIGateway(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodDelete, Path: "/job"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid method: DELETE", resp.Body)
}
