package models

import "strings"

// Event is an HTTP-shaped job invocation, independent of the host transport
type Event struct {
	HTTPMethod      string
	Path            string
	Headers         map[string]string
	QueryParameters map[string]string
	Body            string
	IsBase64Encoded bool
}

// Header looks up a header case-insensitively
func (e Event) Header(name string) (string, bool) {
	if v, ok := e.Headers[name]; ok {
		return v, true
	}
	for k, v := range e.Headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Response is what the adapter hands back to the host transport
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}
