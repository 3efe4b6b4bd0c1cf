package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	return line
}

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("stakingd", "test", Options{Output: &buf, File: filepath.Join(t.TempDir(), "stakingd.log")})
	logger.Info("vault ready", "component", "vault", MaskField("subject", "stake1abc"))

	line := decodeLine(t, &buf)
	require.Equal(t, "vault ready", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "stakingd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "vault", line["component"])
	require.Equal(t, RedactedValue, line["subject"])
	require.Contains(t, line, "timestamp")
}

func TestSetupMasksSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("stakingd", "", Options{Output: &buf})
	logger.Warn("journal open failed",
		slog.String("dsn", "postgres://vault:hunter2@db/journal"),
		slog.String("Authorization", "Bearer abc"),
		slog.String("account", "stake1abc"))

	line := decodeLine(t, &buf)
	require.Equal(t, RedactedValue, line["dsn"])
	require.Equal(t, RedactedValue, line["Authorization"])
	require.Equal(t, "stake1abc", line["account"])
	require.NotContains(t, line, "env")
}

func TestSetupHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("stakingd", "", Options{Output: &buf, Level: slog.LevelWarn})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, level)
	level, err = ParseLevel(" Debug ")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)
	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("token", "Bearer x").Value.String())
	require.Equal(t, "", MaskField("token", "").Value.String())
	require.True(t, IsSensitive("HMAC-Secret"))
	require.False(t, IsSensitive("operation"))
	require.Contains(t, SensitiveKeys(), "passphrase")
}
