package models

import (
	"bytes"
	"encoding/json"
)

// Output is the result record of one job invocation
type Output struct {
	LogMessages            []string `json:"logMessages"`
	ErrorMessages          []string `json:"errorMessages"`
	Data                   any      `json:"data"`
	Error                  *string  `json:"error"`
	ErrorAutoScreenshotURL *string  `json:"errorAutoScreenshotUrl,omitempty"`
}

// MarshalPretty renders the output the way the job endpoint returns it:
// two-space indent, no trailing newline, and <, > and & left unescaped
func (o Output) MarshalPretty() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(o); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ClientOutput is Output as decoded by callers, with data left raw
type ClientOutput struct {
	LogMessages            []string         `json:"logMessages"`
	ErrorMessages          []string         `json:"errorMessages"`
	Error                  *string          `json:"error,omitempty"`
	ErrorAutoScreenshotURL *string          `json:"errorAutoScreenshotUrl,omitempty"`
	Data                   *json.RawMessage `json:"data,omitempty"`
}
