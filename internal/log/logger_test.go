package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLoggerWritesJsonFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "marketplace.log")
	previous := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(previous) })

	NewLogger(path, true, "")
	zap.L().With(zap.String("contract", "0x1")).Debug("Marketplace: Test")
	_ = zap.L().Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"message":"Marketplace: Test"`)
	require.Contains(t, string(b), `"contract":"0x1"`)
}
