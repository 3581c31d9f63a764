package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, false, "")

	slog.Info("migration unit done", "old_path", "originals/customers/a", "state", "old_deleted")
	slog.Debug("hidden at info level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "migration unit done", entry["msg"])
	assert.Equal(t, "old_deleted", entry["state"])
	assert.NotContains(t, buf.String(), "hidden at info level")
}

func TestInitDevelopmentWritesDebugText(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, true, "")

	Log.Debug("listing prefix", "prefix", "originals/mms")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "prefix=originals/mms")
}
