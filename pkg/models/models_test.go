package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHeader(t *testing.T) {
	ev := Event{Headers: map[string]string{"content-type": "application/javascript"}}

	v, ok := ev.Header("Content-Type")
	assert.True(t, ok)
	assert.Equal(t, "application/javascript", v)

	_, ok = ev.Header("Authorization")
	assert.False(t, ok)

	_, ok = Event{}.Header("Content-Type")
	assert.False(t, ok)
}

func TestOutputMarshalPretty(t *testing.T) {
	msg := "Error: boom"
	body, err := Output{
		LogMessages:   []string{"a"},
		ErrorMessages: []string{},
		Error:         &msg,
	}.MarshalPretty()
	require.NoError(t, err)

	assert.Equal(t, `{
  "logMessages": [
    "a"
  ],
  "errorMessages": [],
  "data": null,
  "error": "Error: boom"
}`, string(body))

	url := "https://example.com/shot.png"
	body, err = Output{LogMessages: []string{}, ErrorMessages: []string{}, ErrorAutoScreenshotURL: &url}.MarshalPretty()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"errorAutoScreenshotUrl": "https://example.com/shot.png"`)
}

func TestOutputMarshalPrettyKeepsHTML(t *testing.T) {
	body, err := Output{
		LogMessages:   []string{"<title>Tom & Jerry</title>"},
		ErrorMessages: []string{},
		Data:          map[string]string{"html": "<b>"},
	}.MarshalPretty()
	require.NoError(t, err)

	assert.Equal(t, `{
  "logMessages": [
    "<title>Tom & Jerry</title>"
  ],
  "errorMessages": [],
  "data": {
    "html": "<b>"
  },
  "error": null
}`, string(body))
}
