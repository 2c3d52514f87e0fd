package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/henridf/pbb/beacon"
	"github.com/henridf/pbb/exec"
	"github.com/henridf/pbb/spec"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "pbb.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, beacon.DefaultConfig(), cfg.BeaconConfig())
	require.Equal(t, exec.ModeParallel, cfg.Mode)
	require.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
chain = "dev"
mode = "sequential"
concurrency = 8

[beacon]
port = 9596
retry_interval = "250ms"

[log]
level = "debug"

[base_fee.cancun]
max_change_denominator = 4
elasticity_multiplier = 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "dev", cfg.Chain)
	require.Equal(t, exec.ModeSequential, cfg.Mode)
	require.Equal(t, 8, cfg.Concurrency)
	require.Equal(t, zerolog.DebugLevel, cfg.LogLevel())
	require.Equal(t, beacon.Config{Addr: beacon.DefaultAddr, Port: 9596, RetryInterval: 250 * time.Millisecond}, cfg.BeaconConfig())
	require.Equal(t, "http://localhost:8545", cfg.RPCURL, "unset keys keep their default")

	cs, err := cfg.ChainSpec()
	require.NoError(t, err)
	require.Equal(t, uint64(1337), cs.ChainID())
	require.Equal(t, spec.BaseFeeParams{MaxChangeDenominator: 4, ElasticityMultiplier: 2}, cs.BaseFeeParamsAt(0))
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"unknown key":  `chian = "dev"`,
		"bad mode":     `mode = "turbo"`,
		"bad duration": "[beacon]\nretry_interval = \"soon\"",
		"bad fork":     "[base_fee.frontier]\nmax_change_denominator = 1\nelasticity_multiplier = 1",
		"zero params":  "[base_fee.cancun]\nmax_change_denominator = 0\nelasticity_multiplier = 2",
		"log level":    "[log]\nlevel = \"loud\"",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestChainSpecFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"config":{"chainId":7,"cancunTime":0,"terminalTotalDifficulty":0}}`), 0o644))

	cfg := Default()
	cfg.Chain = "custom"
	cfg.ChainConfig = path
	cs, err := cfg.ChainSpec()
	require.NoError(t, err)
	require.Equal(t, uint64(7), cs.ChainID())
	require.Equal(t, "custom", cs.Name)
}
