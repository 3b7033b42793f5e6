package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/chromeserver/internal/invocation"
	"github.com/shehryarbajwa/chromeserver/pkg/models"
)

type recordingRunner struct {
	mu      sync.Mutex
	sources []string
	params  []map[string]string
	out     func(inv *invocation.Context) models.Output
}

func (r *recordingRunner) Run(_ context.Context, inv *invocation.Context, source string) models.Output {
	r.mu.Lock()
	r.sources = append(r.sources, source)
	r.params = append(r.params, inv.Params())
	r.mu.Unlock()

	if r.out != nil {
		return r.out(inv)
	}
	inv.Log("ran")
	inv.RecordResult(json.RawMessage(`{"ok":true}`))
	return inv.Output()
}

func (r *recordingRunner) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sources)
}

func jobEvent(body string) models.Event {
	return models.Event{
		HTTPMethod: http.MethodPost,
		Path:       JobPath,
		Headers:    map[string]string{"Content-Type": ContentTypeJavaScript},
		Body:       body,
	}
}

func TestHandleValidation(t *testing.T) {
	tests := []struct {
		name  string
		event func() models.Event
		body  string
	}{
		{
			name: "method",
			event: func() models.Event {
				ev := jobEvent("")
				ev.HTTPMethod = http.MethodGet
				return ev
			},
			body: "Invalid method: GET",
		},
		{
			name: "path",
			event: func() models.Event {
				ev := jobEvent("")
				ev.Path = "/jobs"
				return ev
			},
			body: "Invalid path: /jobs",
		},
		{
			name: "method checked before path",
			event: func() models.Event {
				ev := jobEvent("")
				ev.HTTPMethod = http.MethodPut
				ev.Path = "/other"
				return ev
			},
			body: "Invalid method: PUT",
		},
		{
			name: "content type",
			event: func() models.Event {
				ev := jobEvent("")
				ev.Headers = map[string]string{"Content-Type": "text/plain"}
				return ev
			},
			body: "Expecting application/javascript Content-Type",
		},
		{
			name: "missing content type",
			event: func() models.Event {
				ev := jobEvent("")
				ev.Headers = nil
				return ev
			},
			body: "Expecting application/javascript Content-Type",
		},
		{
			name: "bad base64",
			event: func() models.Event {
				ev := jobEvent("not base64!")
				ev.IsBase64Encoded = true
				return ev
			},
			body: "Invalid base64 body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &recordingRunner{}
			adapter := NewAdapter(AdapterOptions{Runner: runner})

			resp := adapter.Handle(context.Background(), tt.event())

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "text/plain", resp.Headers["Content-Type"])
			assert.Equal(t, tt.body, resp.Body)
			assert.Zero(t, runner.calls())
		})
	}
}

func TestHandleRunsJob(t *testing.T) {
	runner := &recordingRunner{}
	adapter := NewAdapter(AdapterOptions{Runner: runner})

	ev := jobEvent("module.exports.handler = async () => {}")
	ev.Headers = map[string]string{"content-type": ContentTypeJavaScript}
	ev.QueryParameters = map[string]string{"errorAutoScreenshot": "1", "user": "joonas"}

	resp := adapter.Handle(context.Background(), ev)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.Equal(t, `{
  "logMessages": [
    "ran"
  ],
  "errorMessages": [],
  "data": {
    "ok": true
  },
  "error": null
}`, resp.Body)

	require.Equal(t, 1, runner.calls())
	assert.Equal(t, "module.exports.handler = async () => {}", runner.sources[0])
	assert.Equal(t, map[string]string{"errorAutoScreenshot": "1", "user": "joonas"}, runner.params[0])
}

func TestHandleDecodesBase64(t *testing.T) {
	runner := &recordingRunner{}
	adapter := NewAdapter(AdapterOptions{Runner: runner})

	ev := jobEvent(base64.StdEncoding.EncodeToString([]byte("exports.handler = () => 1")))
	ev.IsBase64Encoded = true

	resp := adapter.Handle(context.Background(), ev)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"exports.handler = () => 1"}, runner.sources)
}

func TestHandleReportsJobFailureAs200(t *testing.T) {
	runner := &recordingRunner{out: func(inv *invocation.Context) models.Output {
		inv.Fail("error loading job: SyntaxError")
		inv.SetScreenshotURL("https://example.com/shot.png")
		return inv.Output()
	}}
	adapter := NewAdapter(AdapterOptions{Runner: runner})

	resp := adapter.Handle(context.Background(), jobEvent("module.exports = {"))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out models.Output
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	require.NotNil(t, out.Error)
	assert.Equal(t, "error loading job: SyntaxError", *out.Error)
	require.NotNil(t, out.ErrorAutoScreenshotURL)
	assert.Equal(t, "https://example.com/shot.png", *out.ErrorAutoScreenshotURL)
	assert.Nil(t, out.Data)
}
