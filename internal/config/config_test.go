package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{LogDir: "/var/lib/netharness"}
	ApplyDefaults(&cfg)

	assert.Equal(t, LayoutSplit, cfg.Layout)
	assert.Equal(t, DriverCSV, cfg.Storage.Driver)
	assert.Equal(t, filepath.Join("/var/lib/netharness", DefaultSummaryName), cfg.SummaryPath)
	assert.Equal(t, DefaultPingCount, cfg.PingCount)
	assert.True(t, PlotEnabled(&cfg))
}

func TestApplyDefaults_KeepsPlotDisabled(t *testing.T) {
	t.Parallel()

	disabled := false
	cfg := Config{Plot: &disabled}
	ApplyDefaults(&cfg)
	assert.False(t, PlotEnabled(&cfg))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	ApplyDefaults(&cfg)
	require.NoError(t, Validate(cfg))

	cfg.Layout = "sharded"
	assert.Error(t, Validate(cfg))

	cfg.Layout = LayoutUnified
	cfg.Storage.Driver = DriverSQLite
	assert.Error(t, Validate(cfg), "sqlite requires a dsn")

	cfg.Storage.DSN = "harness.db"
	assert.NoError(t, Validate(cfg))

	cfg.Storage.Driver = "mysql"
	assert.Error(t, Validate(cfg))
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "harness.yaml")
	in := Config{
		Destinations: Destinations{Latency: "example.com", Iperf3: "10.0.0.1:5201"},
		Proxy:        "http://127.0.0.1:3128",
		Layout:       LayoutUnified,
	}
	require.NoError(t, Save(path, in))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "example.com", out.Destinations.Latency)
	assert.Equal(t, "10.0.0.1:5201", out.Destinations.Iperf3)
	assert.Equal(t, "http://127.0.0.1:3128", out.Proxy)
	assert.Equal(t, LayoutUnified, out.Layout)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
