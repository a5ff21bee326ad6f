package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	require.Equal(t, IsolationSnapshot, cfg.IsolationLevel)
	require.Equal(t, 3, cfg.CounterRetryAttempts)
	require.Equal(t, EndiannessLittle, cfg.CounterEndianness)
}

func TestLoadOverlaysOntoDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
batch_max_ops = 50
counter_endianness = "big"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 50, cfg.BatchMaxOps)
	require.Equal(t, EndiannessBig, cfg.CounterEndianness)
	// fields absent from the file keep Default()'s values
	require.Equal(t, 3, cfg.CounterRetryAttempts)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
