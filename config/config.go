// Package config holds the settings of the pbb tools, read from a TOML file
// and overridden by command line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/params/forks"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/henridf/pbb/beacon"
	"github.com/henridf/pbb/chainstate"
	"github.com/henridf/pbb/evmcode"
	"github.com/henridf/pbb/exec"
	"github.com/henridf/pbb/spec"
	"github.com/henridf/pbb/txsource"
)

// Duration is a time.Duration written as a string ("5s") in TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type BeaconConfig struct {
	Addr          string   `toml:"addr"`
	Port          uint16   `toml:"port"`
	RetryInterval Duration `toml:"retry_interval"`
}

type MetricsConfig struct {
	// Empty disables the metrics endpoint.
	Addr string `toml:"addr"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type Config struct {
	Chain string `toml:"chain"`
	// Optional go-ethereum chain config or genesis JSON, replacing the
	// built-in config of Chain.
	ChainConfig string `toml:"chain_config"`

	RPCURL    string `toml:"rpc_url"`
	TxsMethod string `toml:"txs_method"`

	Mode            exec.Mode `toml:"mode"`
	Concurrency     int       `toml:"concurrency"`
	Replay          bool      `toml:"replay"`
	CodeCacheSize   int       `toml:"code_cache_size"`
	LoadConcurrency int       `toml:"load_concurrency"`

	Beacon  BeaconConfig  `toml:"beacon"`
	Metrics MetricsConfig `toml:"metrics"`
	Log     LogConfig     `toml:"log"`

	// Base fee parameter overrides keyed by the fork they activate with.
	BaseFee map[string]spec.BaseFeeParams `toml:"base_fee"`
}

func Default() Config {
	return Config{
		Chain:           "holesky",
		RPCURL:          "http://localhost:8545",
		TxsMethod:       txsource.DefaultMethod,
		Mode:            exec.ModeParallel,
		CodeCacheSize:   evmcode.DefaultCacheSize,
		LoadConcurrency: chainstate.DefaultLoadConcurrency,
		Beacon: BeaconConfig{
			Addr:          beacon.DefaultAddr,
			Port:          beacon.DefaultPort,
			RetryInterval: Duration(beacon.DefaultRetryInterval),
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the TOML file at path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := toml.NewDecoder(bytes.NewReader(b)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return cfg, fmt.Errorf("config %s: %s", path, strict.String())
		}
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

var forkNames = map[string]forks.Fork{
	"london":   forks.London,
	"paris":    forks.Paris,
	"shanghai": forks.Shanghai,
	"cancun":   forks.Cancun,
	"prague":   forks.Prague,
	"osaka":    forks.Osaka,
}

func (c Config) Validate() error {
	if c.Beacon.Port == 0 {
		return errors.New("beacon port must be set")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	for name, p := range c.BaseFee {
		if _, ok := forkNames[strings.ToLower(name)]; !ok {
			return fmt.Errorf("base_fee: unknown fork %q", name)
		}
		if p.MaxChangeDenominator == 0 || p.ElasticityMultiplier == 0 {
			return fmt.Errorf("base_fee.%s: parameters must be non-zero", name)
		}
	}
	return nil
}

// ChainSpec builds the chain spec the configuration describes.
func (c Config) ChainSpec() (*spec.ChainSpec, error) {
	var (
		cs  *spec.ChainSpec
		err error
	)
	if c.ChainConfig != "" {
		cs, err = spec.Load(c.Chain, c.ChainConfig)
	} else {
		cs, err = spec.ByName(c.Chain)
	}
	if err != nil {
		return nil, err
	}
	for name, p := range c.BaseFee {
		fork, ok := forkNames[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("base_fee: unknown fork %q", name)
		}
		cs.BaseFee[fork] = p
	}
	return cs, nil
}

func (c Config) BeaconConfig() beacon.Config {
	return beacon.Config{
		Addr:          c.Beacon.Addr,
		Port:          c.Beacon.Port,
		RetryInterval: time.Duration(c.Beacon.RetryInterval),
	}
}

func (c Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
