package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	originalLogger := logger
	defer func() {
		logger = originalLogger
	}()

	t.Run("InitWithTextFormat", func(t *testing.T) {
		err := Init(Config{Level: "info", Format: "text", Output: "stdout"})
		assert.NoError(t, err)
		assert.Equal(t, logrus.InfoLevel, logger.Level)
		_, ok := logger.Formatter.(*logrus.TextFormatter)
		assert.True(t, ok)
	})

	t.Run("InitWithJSONFormat", func(t *testing.T) {
		err := Init(Config{Level: "debug", Format: "json", Output: "stdout"})
		assert.NoError(t, err)
		assert.Equal(t, logrus.DebugLevel, logger.Level)
		_, ok := logger.Formatter.(*logrus.JSONFormatter)
		assert.True(t, ok)
	})

	t.Run("InvalidLevelFallsBackToInfo", func(t *testing.T) {
		err := Init(Config{Level: "verbose", Format: "json"})
		assert.NoError(t, err)
		assert.Equal(t, logrus.InfoLevel, logger.Level)
	})

	t.Run("InitWithFileOutput", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "nested", "anoncart.log")

		err := Init(Config{
			Level:      "error",
			Format:     "json",
			Output:     "file",
			Filename:   logFile,
			MaxSize:    10,
			MaxAge:     7,
			MaxBackups: 3,
		})
		require.NoError(t, err)

		Error("merge failed")

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "merge failed")
	})
}

func TestWithFields(t *testing.T) {
	originalLogger := logger
	defer func() {
		logger = originalLogger
	}()

	require.NoError(t, Init(Config{Level: "info", Format: "json"}))
	var buf bytes.Buffer
	SetOutput(&buf)

	WithComponent("merge").WithFields(map[string]interface{}{
		"account_id": 7,
		"duplicates": 1,
	}).Info("Anonymous data merged")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "merge", entry["component"])
	assert.Equal(t, float64(7), entry["account_id"])
	assert.Equal(t, "Anonymous data merged", entry["msg"])
}

func TestSetLevel(t *testing.T) {
	originalLogger := logger
	defer func() {
		logger = originalLogger
	}()

	require.NoError(t, Init(Config{Level: "info"}))
	assert.True(t, SetLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, GetLogger().GetLevel())

	assert.False(t, SetLevel("verbose"))
	assert.Equal(t, logrus.DebugLevel, GetLogger().GetLevel())
}
