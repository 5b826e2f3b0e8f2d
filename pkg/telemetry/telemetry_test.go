package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in        string
		wantLevel string
		wantMsg   string
	}{
		{"INFO cleanup completed: removed 2 directories", "INFO", "cleanup completed: removed 2 directories"},
		{"[warn] sql execution warning", "WARN", "sql execution warning"},
		{"ERROR: descriptor not found", "ERROR", "descriptor not found"},
		{"WARNING disk low", "WARN", "disk low"},
		{"deleting old directory", "INFO", "deleting old directory"},
		{"INFO", "INFO", "INFO"},
		{"   ", "INFO", ""},
	}
	for _, tc := range tests {
		level, msg := parseLevel(tc.in)
		assert.Equal(t, tc.wantLevel, level, tc.in)
		assert.Equal(t, tc.wantMsg, msg, tc.in)
	}
}

func TestJSONLogWriter(t *testing.T) {
	var buf bytes.Buffer
	w := newJSONLogWriter("stagegen", &buf)
	w.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	n, err := w.Write([]byte("WARN something odd\n"))
	require.NoError(t, err)
	assert.Equal(t, len("WARN something odd\n"), n)

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, map[string]string{
		"ts":      "2024-01-02T03:04:05Z",
		"level":   "WARN",
		"service": "stagegen",
		"msg":     "something odd",
	}, entry)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger("stagegenctl", &buf).Printf("ERROR boom %d", 7)

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "boom 7", entry["msg"])
	assert.Equal(t, "stagegenctl", entry["service"])
}

func TestInitWithoutExporter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, middleware, logger, err := Init(context.Background(), "stagegen", Options{Output: &buf})
	require.NoError(t, err)
	defer shutdown(context.Background())

	require.NotNil(t, logger)
	h := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/generate", nil))

	line := strings.TrimSpace(buf.String())
	var entry map[string]string
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.True(t, strings.HasPrefix(entry["msg"], "GET /generate 500 "))
}

func TestInitRequiresServiceName(t *testing.T) {
	_, _, _, err := Init(context.Background(), "", Options{})
	require.Error(t, err)
}
