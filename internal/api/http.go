package api

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/chromeserver/pkg/models"
)

// MaxScriptBytes caps request bodies
const MaxScriptBytes = 10 << 20

const base64Param = "isBase64Encoded"

// ServeHTTP bridges a net/http request to Handle
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxScriptBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		a.logger.Warn("failed to read request body", zap.Error(err))
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	resp := a.Handle(r.Context(), eventFromRequest(r, body))
	writeResponse(w, resp)
}

func eventFromRequest(r *http.Request, body []byte) models.Event {
	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}

	query := r.URL.Query()
	params := make(map[string]string, len(query))
	for key, values := range query {
		if key == base64Param || len(values) == 0 {
			continue
		}
		params[key] = values[0]
	}

	return models.Event{
		HTTPMethod:      r.Method,
		Path:            r.URL.Path,
		Headers:         headers,
		QueryParameters: params,
		Body:            string(body),
		IsBase64Encoded: query.Has(base64Param) || r.Header.Get("Content-Transfer-Encoding") == "base64",
	}
}

func writeResponse(w http.ResponseWriter, resp models.Response) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}
