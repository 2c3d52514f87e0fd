// Package pipeline ties the pieces together: it derives the environment of
// the next block, prepares its candidate transactions and state, and hands
// them to the dispatcher.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params/forks"
	"github.com/rs/zerolog"

	"github.com/henridf/pbb/beacon"
	"github.com/henridf/pbb/chainstate"
	"github.com/henridf/pbb/env"
	"github.com/henridf/pbb/exec"
	"github.com/henridf/pbb/spec"
)

// TxSource yields the candidate transactions of the next block.
type TxSource interface {
	Fetch(ctx context.Context) ([]*types.Transaction, error)
}

type Config struct {
	Spec     *spec.ChainSpec
	Provider chainstate.Provider
	// Attributes announce the next block. Unused when Replay is set.
	Attributes   beacon.Source
	Transactions TxSource
	Dispatcher   *exec.Dispatcher
	Mode         exec.Mode
	// Replay executes in the environment of the latest block instead of
	// the next one.
	Replay          bool
	LoadConcurrency int
}

// ErrParentMismatch is returned when the execution client does not reach
// the parent block the attributes build on.
var ErrParentMismatch = errors.New("latest header is not the announced parent")

const (
	defaultParentPoll = 200 * time.Millisecond
	parentPollRetries = 10
)

type Pipeline struct {
	cfg        Config
	projector  *env.Projector
	parentPoll time.Duration
	log        zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) (*Pipeline, error) {
	switch {
	case cfg.Spec == nil:
		return nil, errors.New("pipeline: no chain spec")
	case cfg.Provider == nil:
		return nil, errors.New("pipeline: no chain provider")
	case cfg.Transactions == nil:
		return nil, errors.New("pipeline: no transaction source")
	case !cfg.Replay && cfg.Attributes == nil:
		return nil, errors.New("pipeline: no block attributes source")
	}
	return &Pipeline{
		cfg:        cfg,
		projector:  env.NewProjector(cfg.Spec.Config.ChainID),
		parentPoll: defaultParentPoll,
		log:        log,
	}, nil
}

// Batch is everything an execution engine needs to run the next block.
type Batch struct {
	// Parent is the latest header: the executed block's parent, or the
	// replayed block itself.
	Parent  *types.Header
	Fork    forks.Fork
	Block   *env.BlockEnv
	Txs     []*env.TxEnv
	Storage chainstate.Snapshot
}

// Prepare gathers the next block's environment, transactions and state.
// In live mode the head is read once the attributes arrive and must be the
// parent they announce.
func (p *Pipeline) Prepare(ctx context.Context) (*Batch, error) {
	var (
		b   = &Batch{}
		err error
	)
	if p.cfg.Replay {
		if b.Parent, err = p.cfg.Provider.LatestHeader(ctx); err != nil {
			return nil, err
		}
		if b.Block, b.Fork, err = env.FromHeader(p.cfg.Spec, b.Parent); err != nil {
			return nil, err
		}
	} else {
		attrs, err := p.cfg.Attributes.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquiring block attributes: %w", err)
		}
		if b.Parent, err = p.parentOf(ctx, attrs); err != nil {
			return nil, err
		}
		b.Block, b.Fork = env.Build(p.cfg.Spec, b.Parent, attrs)
	}

	txs, err := p.cfg.Transactions.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching transactions: %w", err)
	}
	if b.Txs, err = p.projector.ProjectAll(txs); err != nil {
		return nil, err
	}

	// The block executes on top of its parent: the head in live mode, the
	// head's parent when replaying the head.
	snap, err := p.cfg.Provider.StateByBlockHash(ctx, b.Block.ParentHash)
	if err != nil {
		return nil, err
	}
	var hashes []uint64
	if b.Block.Number > 0 {
		hashes = []uint64{b.Block.Number - 1}
	}
	if b.Storage, err = chainstate.Load(ctx, snap, touched(b), hashes, p.cfg.LoadConcurrency); err != nil {
		return nil, err
	}

	p.log.Info().
		Uint64("number", b.Block.Number).
		Uint64("timestamp", b.Block.Timestamp).
		Str("parent", b.Block.ParentHash.Hex()).
		Str("fork", ForkName(b.Fork)).
		Str("base_fee", b.Block.BaseFee.Dec()).
		Int("txs", len(b.Txs)).
		Bool("replay", p.cfg.Replay).
		Msg("Prepared block")
	return b, nil
}

// parentOf returns the latest header, waiting for the execution client to
// catch up with the parent the attributes build on.
func (p *Pipeline) parentOf(ctx context.Context, attrs *beacon.BlockAttributes) (*types.Header, error) {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.parentPoll), parentPollRetries), ctx)
	return backoff.RetryNotifyWithData(func() (*types.Header, error) {
		head, err := p.cfg.Provider.LatestHeader(ctx)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if attrs.ParentBlockHash != (common.Hash{}) && attrs.ParentBlockHash != head.Hash() {
			return nil, fmt.Errorf("%w: attributes build on %s, latest header is %d (%s)",
				ErrParentMismatch, attrs.ParentBlockHash.Hex(), head.Number, head.Hash().Hex())
		}
		return head, nil
	}, bo, func(err error, next time.Duration) {
		p.log.Debug().Err(err).Dur("retry_in", next).Msg("Waiting for parent block")
	})
}

// Outcome is a prepared batch and its execution results.
type Outcome struct {
	*Batch
	Results []exec.TxResult
	GasUsed uint64
}

// Run prepares the next block and executes it in the configured mode.
func (p *Pipeline) Run(ctx context.Context) (*Outcome, error) {
	b, err := p.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	results, err := p.cfg.Dispatcher.Dispatch(ctx, b.Storage, p.cfg.Spec.ChainID(), b.Fork, b.Block, b.Txs, p.cfg.Mode)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Batch: b, Results: results}
	for _, r := range results {
		out.GasUsed += r.GasUsed
	}
	p.log.Info().
		Uint64("number", b.Block.Number).
		Str("mode", p.cfg.Mode.String()).
		Int("txs", len(b.Txs)).
		Int("executed", len(results)).
		Uint64("gas_used", out.GasUsed).
		Dur("elapsed", time.Since(start)).
		Msg("Executed block")
	return out, nil
}

// touched lists the accounts the batch is known to read up front.
func touched(b *Batch) []common.Address {
	addrs := []common.Address{b.Block.Coinbase}
	for _, tx := range b.Txs {
		addrs = append(addrs, tx.Caller)
		if tx.TransactTo.Kind == env.KindCall {
			addrs = append(addrs, tx.TransactTo.Address)
		}
		for _, item := range tx.AccessList {
			addrs = append(addrs, item.Address)
		}
	}
	return addrs
}

// ForkName is the lowercase name of f, as used in configuration.
func ForkName(f forks.Fork) string {
	switch f {
	case forks.London:
		return "london"
	case forks.Paris:
		return "paris"
	case forks.Shanghai:
		return "shanghai"
	case forks.Cancun:
		return "cancun"
	case forks.Prague:
		return "prague"
	case forks.Osaka:
		return "osaka"
	}
	return fmt.Sprintf("fork(%d)", int(f))
}
