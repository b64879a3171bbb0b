package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	assert.Equal(t, "json", parseFormat("JSON", true))
	assert.Equal(t, "text", parseFormat(" text ", false))
	assert.Equal(t, "text", parseFormat("", true))
	assert.Equal(t, "json", parseFormat("", false))
	assert.Equal(t, "json", parseFormat("yaml", false))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("", "development"))
	assert.Equal(t, slog.LevelInfo, parseLevel("", "production"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning", "production"))
	assert.Equal(t, LevelCritical, parseLevel("fatal", "production"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info", "development"))
	assert.Equal(t, slog.LevelDebug, parseLevel("bogus", "dev"))
}

func TestParseOutput(t *testing.T) {
	assert.Equal(t, os.Stderr, parseOutput(" STDERR "))
	assert.Equal(t, os.Stdout, parseOutput(""))
}

func TestSensitiveAttributesAreRedacted(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo, FormatJSON)

	log.Info("db: connecting", "dsn", "postgres://user:secret@db/sync", "Token", "abc", "host", "db")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, redacted, entry["dsn"])
	assert.Equal(t, redacted, entry["Token"])
	assert.Equal(t, "db", entry["host"])
	assert.NotContains(t, buf.String(), "secret")
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Critical("nothing happens")
	log.With("a", 1).InternalError("still nothing", errors.New("boom"))
}

func TestCriticalAndErrorHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelDebug, "json").With("component", "sync")

	log.Critical("sync.sweep: store unreachable")
	log.BusinessError("sync.resolve: rejected", errors.New("not in conflict"), "operation_id", "op-1")
	log.InternalError("sync.push: ignored", nil)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var critical map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &critical))
	assert.Equal(t, "CRITICAL", critical["level"])
	assert.Equal(t, "sync", critical["component"])

	var business map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &business))
	assert.Equal(t, "WARN", business["level"])
	assert.Equal(t, "not in conflict", business["err"])
	assert.Equal(t, "op-1", business["operation_id"])
}
