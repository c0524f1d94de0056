package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("info", "text", &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.WithField("session", "abc").Info("started")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "session=abc")
	assert.Contains(t, out, "started")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", "json", &buf)
	require.NoError(t, err)

	log.WithField("exit_code", 3).Debug("guest exited")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "guest exited", entry["msg"])
	assert.EqualValues(t, 3, entry["exit_code"])
}

func TestNewInvalid(t *testing.T) {
	_, err := New("loud", "text", &bytes.Buffer{})
	assert.Error(t, err)

	_, err = New("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.NotPanics(t, func() { log.Error("nothing") })
}
