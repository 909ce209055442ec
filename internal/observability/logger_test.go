package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{
		Level:   DebugLevel,
		Format:  FormatJSON,
		Output:  &buf,
		Service: "test-service",
		Version: "1.0.0",
	})

	logger.Info("test message")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test message", entry["message"])
	assert.Equal(t, "test-service", entry["service"])
	assert.Equal(t, "info", entry["level"])
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{
		Level:  InfoLevel,
		Format: FormatJSON,
		Output: &buf,
	})

	logger.WithField("task", "stage_events").InfoWithFields("Loaded rows", map[string]interface{}{
		"rows":     123,
		"duration": 2 * time.Second,
		"err":      errors.New("boom"),
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "stage_events", entry["task"])
	assert.Equal(t, float64(123), entry["rows"])
	assert.Equal(t, "2s", entry["duration"])
	assert.Equal(t, "boom", entry["err"])
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(LoggerConfig{Level: InfoLevel, Format: FormatJSON, Output: &buf})
	_ = parent.WithField("child", true)

	parent.Info("plain")
	assert.NotContains(t, buf.String(), "child")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: WarnLevel, Format: FormatJSON, Output: &buf})

	logger.Info("hidden")
	logger.Debugf("hidden %d", 1)
	assert.Empty(t, buf.String())

	logger.Warnf("shown %d", 2)
	assert.Contains(t, buf.String(), "shown 2")

	buf.Reset()
	logger.SetLevel(DebugLevel)
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
	assert.Equal(t, DebugLevel, logger.Level())
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: InfoLevel, Format: FormatConsole, Output: &buf, NoColor: true})

	logger.WithField("table", "songs").Info("written")

	out := buf.String()
	assert.Contains(t, out, "written")
	assert.Contains(t, out, "table=songs")
	assert.False(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
}

func TestLogLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"WARN", WarnLevel},
		{"WARNING", WarnLevel},
		{"ERROR", ErrorLevel},
		{"FATAL", FatalLevel},
		{"unknown", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, LogLevelFromString(tt.input))
		})
	}
}

func TestInitReplacesDefault(t *testing.T) {
	old := GetDefaultLogger()
	defer SetDefaultLogger(old)

	var buf bytes.Buffer
	Init("debug", "json", &buf)
	Debugf("value=%d", 7)

	assert.Contains(t, buf.String(), "value=7")
	assert.Equal(t, FormatJSON, FormatFromString("JSON"))
	assert.Equal(t, FormatConsole, FormatFromString(""))
}
