package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"user=joonas", "flag", "q=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"user": "joonas", "flag": "", "q": "a=b"}, params)

	_, err = parseParams([]string{"=value"})
	assert.Error(t, err)
}

func TestRootCmdRequiresScript(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs(nil)
	cmd.SilenceErrors = true

	assert.Error(t, cmd.Execute())
}

func TestRootCmdMissingFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{t.TempDir() + "/missing.js"})
	cmd.SilenceErrors = true

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read script")
}
