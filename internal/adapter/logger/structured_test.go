package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLoggerToStructured_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "autopen.log")

	closeLog := SetLoggerToStructured(logrus.DebugLevel, path)
	logrus.WithField("run_id", "r1").Info("Run started")
	closeLog()
	defer SetLoggerToStructured(logrus.InfoLevel, "")

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSpace(string(b))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "Run started", entry["msg"])
	assert.Equal(t, "r1", entry["run_id"])
	assert.Equal(t, "info", entry["level"])
}
