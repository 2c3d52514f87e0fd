package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/henridf/pbb/beacon"
	"github.com/henridf/pbb/chainstate"
	"github.com/henridf/pbb/config"
	"github.com/henridf/pbb/evmcode"
	"github.com/henridf/pbb/exec"
	"github.com/henridf/pbb/pipeline"
	"github.com/henridf/pbb/rpcengine"
	"github.com/henridf/pbb/txsource"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func bail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	os.Exit(1)
}

func logger(level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	output.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}
	output.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("%s:", i)
	}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	chainFlag = &cli.StringFlag{
		Name:  "chain",
		Usage: "chain name [mainnet,holesky,sepolia,dev]",
	}
	chainConfigFlag = &cli.StringFlag{
		Name:  "chain.config",
		Usage: "go-ethereum chain config or genesis JSON file, replacing the built-in config of --chain",
	}
	clAddrFlag = &cli.StringFlag{
		Name:  "cl.addr",
		Usage: "beacon node http address",
	}
	clPortFlag = &cli.UintFlag{
		Name:  "cl.port",
		Usage: "beacon node http port",
	}
	rpcURLFlag = &cli.StringFlag{
		Name:  "rpc.url",
		Usage: "execution client JSON-RPC endpoint",
	}
	txsMethodFlag = &cli.StringFlag{
		Name:  "txs.method",
		Usage: "JSON-RPC method returning the candidate transactions",
	}
	modeFlag = &cli.StringFlag{
		Name:  "mode",
		Usage: "execution mode [parallel,sequential]",
	}
	concurrencyFlag = &cli.IntFlag{
		Name:  "concurrency",
		Usage: "parallel execution workers (0 means one per CPU)",
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics.addr",
		Usage: "serve prometheus metrics on this address",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log.level",
		Usage: "log level [trace,debug,info,warn,error]",
	}
	replayFlag = &cli.BoolFlag{
		Name:  "replay",
		Usage: "execute in the environment of the latest block instead of waiting for the next one",
	}
)

func main() {
	app := &cli.App{
		Name:  "pbb",
		Usage: "prepare and execute the pending block",
		Flags: []cli.Flag{
			configFlag, chainFlag, chainConfigFlag, clAddrFlag, clPortFlag, rpcURLFlag, txsMethodFlag,
			modeFlag, concurrencyFlag, metricsAddrFlag, logLevelFlag, replayFlag,
		},
		Commands: []*cli.Command{
			{
				Name:   "prepare",
				Usage:  "print the environment and transactions of the next block",
				Action: prepare,
			},
			{
				Name:   "run",
				Usage:  "execute the next block's candidate transactions",
				Action: run,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		bail(err)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String(configFlag.Name); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if c.IsSet(chainFlag.Name) {
		cfg.Chain = c.String(chainFlag.Name)
	}
	if c.IsSet(chainConfigFlag.Name) {
		cfg.ChainConfig = c.String(chainConfigFlag.Name)
	}
	if c.IsSet(clAddrFlag.Name) {
		cfg.Beacon.Addr = c.String(clAddrFlag.Name)
	}
	if c.IsSet(clPortFlag.Name) {
		port := c.Uint(clPortFlag.Name)
		if port == 0 || port > 65535 {
			return cfg, fmt.Errorf("invalid --%s %d", clPortFlag.Name, port)
		}
		cfg.Beacon.Port = uint16(port)
	}
	if c.IsSet(rpcURLFlag.Name) {
		cfg.RPCURL = c.String(rpcURLFlag.Name)
	}
	if c.IsSet(txsMethodFlag.Name) {
		cfg.TxsMethod = c.String(txsMethodFlag.Name)
	}
	if c.IsSet(modeFlag.Name) {
		mode, err := exec.ParseMode(c.String(modeFlag.Name))
		if err != nil {
			return cfg, err
		}
		cfg.Mode = mode
	}
	if c.IsSet(concurrencyFlag.Name) {
		cfg.Concurrency = c.Int(concurrencyFlag.Name)
	}
	if c.IsSet(metricsAddrFlag.Name) {
		cfg.Metrics.Addr = c.String(metricsAddrFlag.Name)
	}
	if c.IsSet(logLevelFlag.Name) {
		cfg.Log.Level = c.String(logLevelFlag.Name)
	}
	if c.IsSet(replayFlag.Name) {
		cfg.Replay = c.Bool(replayFlag.Name)
	}
	return cfg, cfg.Validate()
}

type node struct {
	cfg      config.Config
	log      zerolog.Logger
	provider *chainstate.RPCProvider
	pipeline *pipeline.Pipeline
}

func setup(ctx context.Context, c *cli.Context) (*node, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	log := logger(cfg.LogLevel())

	cs, err := cfg.ChainSpec()
	if err != nil {
		return nil, err
	}
	log.Info().Str("chain", cs.String()).Str("rpc", cfg.RPCURL).Str("mode", cfg.Mode.String()).Msg("Starting")

	codes, err := evmcode.NewCache(cfg.CodeCacheSize)
	if err != nil {
		return nil, err
	}
	provider, err := chainstate.DialRPC(ctx, cfg.RPCURL, codes)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.Metrics.Addr != "" {
		serveMetrics(ctx, cfg.Metrics.Addr, reg, log)
	}

	pcfg := pipeline.Config{
		Spec:            cs,
		Provider:        provider,
		Transactions:    txsource.NewSource(provider.RPC(), cfg.TxsMethod),
		Dispatcher:      exec.NewDispatcher(rpcengine.New(provider.RPC()), cfg.Concurrency, exec.NewMetrics(reg), log),
		Mode:            cfg.Mode,
		Replay:          cfg.Replay,
		LoadConcurrency: cfg.LoadConcurrency,
	}
	if !cfg.Replay {
		pcfg.Attributes = beacon.NewLiveSource(beacon.NewHTTPFeed(nil), cfg.BeaconConfig(), log)
	}
	p, err := pipeline.New(pcfg, log)
	if err != nil {
		provider.Close()
		return nil, err
	}
	return &node{cfg: cfg, log: log, provider: provider, pipeline: p}, nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func prepare(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()
	a, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer a.provider.Close()

	b, err := a.pipeline.Prepare(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Fork  string      `json:"fork"`
		Block interface{} `json:"block"`
		Txs   interface{} `json:"txs"`
	}{pipeline.ForkName(b.Fork), b.Block, b.Txs})
}

func run(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()
	a, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer a.provider.Close()

	out, err := a.pipeline.Run(ctx)
	if err != nil {
		return err
	}
	for _, r := range out.Results {
		a.log.Debug().Int("index", r.Index).Str("status", r.Status.String()).Str("reason", r.Reason).
			Uint64("gas_used", r.GasUsed).Msg("Transaction")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out.Results)
}
