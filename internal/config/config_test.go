package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8443", cfg.Bind)
	require.Equal(t, 30, cfg.SyncIntervalSecs)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("SWEFT_BIND", ":9999")
	t.Setenv("SWEFT_MAX_PEERS", "42")
	t.Setenv("SWEFT_BOOTSTRAP_PEERS", "https://a.example, https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Bind)
	require.Equal(t, 42, cfg.MaxPeers)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.BootstrapPeers)
}

func TestLoadFromHCLFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "node-*.hcl")
	require.NoError(t, err)
	_, err = f.WriteString(`
bind        = ":7000"
name        = "test-node"
max_peers   = 7
`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := Load(f.Name())
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Bind)
	require.Equal(t, "test-node", cfg.Name)
	require.Equal(t, 7, cfg.MaxPeers)
}

func TestLoadMissingFilePathFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/node.hcl")
	require.NoError(t, err)
	require.Equal(t, ":8443", cfg.Bind)
}
