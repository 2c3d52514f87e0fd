package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/henridf/pbb/beacon"
	"github.com/henridf/pbb/chainstate"
	"github.com/henridf/pbb/env"
	"github.com/henridf/pbb/pipeline"
	"github.com/henridf/pbb/spec"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func bail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	os.Exit(1)
}

func usage(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	flag.PrintDefaults()
	os.Exit(1)
}

func logger() zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	output.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}
	output.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("%s:", i)
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

type blockDump struct {
	Hash  string        `json:"hash"`
	Fork  string        `json:"fork"`
	Block *env.BlockEnv `json:"block"`
	Txs   []*env.TxEnv  `json:"txs"`
}

func main() {
	var chain string
	var chainConfig string
	var number int64
	var output string
	var check bool

	flag.StringVar(&chain, "chain", "mainnet", "chain name [mainnet,holesky,sepolia,dev]")
	flag.StringVar(&chainConfig, "chainconfig", "", "go-ethereum chain config or genesis JSON file, replacing the built-in config of -chain")
	flag.Int64Var(&number, "n", -1, "block number to dump (default latest block in input)")
	flag.StringVar(&output, "f", "", "write data to given output file (default stdout)")
	flag.BoolVar(&check, "check", false, "derive each block's environment from its parent and compare against the recorded header (no output is written)")

	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage(fmt.Errorf("must pass a file name with rlp-encoded blocks"))
	}

	var cs *spec.ChainSpec
	var err error
	if chainConfig != "" {
		cs, err = spec.Load(chain, chainConfig)
	} else {
		cs, err = spec.ByName(chain)
	}
	if err != nil {
		usage(err)
	}

	log := logger()
	blocks, err := chainstate.OpenRLPFiles(log, args...)
	if err != nil {
		bail(err)
	}

	if check {
		if mismatches := checkDerivation(cs, blocks, log); mismatches > 0 {
			bail(fmt.Errorf("%d blocks do not match their derived environment", mismatches))
		}
		os.Exit(0)
	}

	b := blocks.Latest()
	if number >= 0 {
		if b, err = blocks.BlockByNumber(uint64(number)); err != nil {
			bail(err)
		}
	}
	dump, err := dumpBlock(cs, b)
	if err != nil {
		bail(err)
	}

	var w io.Writer
	if output == "" {
		w = os.Stdout
	} else {
		fh, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			bail(fmt.Errorf("could not open output file %s: %s", output, err))
		}
		defer fh.Close()
		w = fh
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump); err != nil {
		bail(fmt.Errorf("writing JSON: %s", err))
	}
}

func dumpBlock(cs *spec.ChainSpec, b *types.Block) (*blockDump, error) {
	block, fork, err := env.FromHeader(cs, b.Header())
	if err != nil {
		return nil, err
	}
	txs, err := env.NewProjector(cs.Config.ChainID).ProjectAll(b.Transactions())
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", b.NumberU64(), err)
	}
	return &blockDump{
		Hash:  b.Hash().Hex(),
		Fork:  pipeline.ForkName(fork),
		Block: block,
		Txs:   txs,
	}, nil
}

// checkDerivation rebuilds every block's environment from its parent and
// the attributes recorded in its header, and counts the blocks whose base
// fee or blob gas accounting disagree.
func checkDerivation(cs *spec.ChainSpec, blocks *chainstate.RLPFile, log zerolog.Logger) int {
	var mismatches int
	first := blocks.Latest().NumberU64() + 1 - uint64(blocks.Len())
	for n := first + 1; n <= blocks.Latest().NumberU64(); n++ {
		parent, _ := blocks.BlockByNumber(n - 1)
		b, _ := blocks.BlockByNumber(n)

		derived, _ := env.Build(cs, parent.Header(), beacon.FromHeader(b.Header()))
		recorded, _, err := env.FromHeader(cs, b.Header())
		if err != nil {
			log.Error().Uint64("number", b.NumberU64()).Err(err).Msg("Invalid header")
			mismatches++
			continue
		}
		if !derived.BaseFee.Eq(recorded.BaseFee) {
			log.Warn().Uint64("number", b.NumberU64()).
				Str("derived", derived.BaseFee.Dec()).
				Str("recorded", recorded.BaseFee.Dec()).
				Msg("Base fee mismatch")
			mismatches++
			continue
		}
		d, r := derived.BlobExcessGasAndPrice, recorded.BlobExcessGasAndPrice
		if (d == nil) != (r == nil) || (d != nil && d.ExcessBlobGas != r.ExcessBlobGas) {
			log.Warn().Uint64("number", b.NumberU64()).Msg("Excess blob gas mismatch")
			mismatches++
		}
	}
	log.Info().Int("blocks", blocks.Len()).Int("mismatches", mismatches).Msg("Checked derivation")
	return mismatches
}
