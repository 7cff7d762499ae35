package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRespectsVerbose(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Writer: &buf}).Debug("hidden")
	assert.Empty(t, buf.String())

	New(Options{Writer: &buf, Verbose: true}).Debug("shown", "key", "k")
	assert.Contains(t, buf.String(), "msg=shown")
	assert.Contains(t, buf.String(), "key=k")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Writer: &buf, JSON: true}).Info("fetch finished", "key", "user:1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fetch finished", line["msg"])
	assert.Equal(t, "user:1", line["key"])
}
