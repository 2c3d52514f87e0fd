package exec

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/ethereum/go-ethereum/params/forks"
	"github.com/rs/zerolog"

	"github.com/henridf/pbb/chainstate"
	"github.com/henridf/pbb/env"
)

var errNoResult = errors.New("engine returned no result")

var hostParallelism = func() int { return runtime.GOMAXPROCS(0) }

// Dispatcher picks the concurrency level and execution path for a batch and
// interprets the engine's outcome.
type Dispatcher struct {
	engine      Engine
	concurrency int
	metrics     *Metrics
	log         zerolog.Logger
}

// NewDispatcher returns a dispatcher running batches on engine. A
// concurrency of zero or less means one worker per usable CPU. metrics may be
// nil.
func NewDispatcher(engine Engine, concurrency int, metrics *Metrics, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{engine: engine, concurrency: concurrency, metrics: metrics, log: log}
}

// Concurrency is the worker count requested from the engine in parallel
// mode.
func (d *Dispatcher) Concurrency() int {
	if d.concurrency > 0 {
		return d.concurrency
	}
	if n := hostParallelism(); n > 0 {
		return n
	}
	return 1
}

// Dispatch executes txs on top of storage, which is not modified. In
// parallel mode any engine failure fails the whole call and no results are
// returned. In sequential mode failing transactions are logged and left out
// of the results, which keep input order and carry their input index.
func (d *Dispatcher) Dispatch(ctx context.Context, storage chainstate.Snapshot, chainID uint64, spec forks.Fork, block *env.BlockEnv, txs []*env.TxEnv, mode Mode) (results []TxResult, err error) {
	start := time.Now()
	defer func() { d.metrics.observeBatch(mode, err, start) }()

	switch mode {
	case ModeParallel:
		return d.parallel(ctx, storage, chainID, spec, block, txs)
	case ModeSequential:
		return d.sequential(ctx, storage, chainID, spec, block, txs)
	}
	return nil, fmt.Errorf("unknown execution mode %s", mode)
}

func (d *Dispatcher) parallel(ctx context.Context, storage chainstate.Snapshot, chainID uint64, spec forks.Fork, block *env.BlockEnv, txs []*env.TxEnv) ([]TxResult, error) {
	concurrency := d.Concurrency()
	d.log.Debug().Int("txs", len(txs)).Int("concurrency", concurrency).Msg("Executing batch in parallel")

	results, err := d.engine.ExecuteParallel(ctx, storage, chainID, spec, block, txs, concurrency)
	if err != nil {
		return nil, &EngineError{Mode: ModeParallel, Index: -1, Err: err}
	}
	if len(results) != len(txs) {
		return nil, &EngineError{Mode: ModeParallel, Index: -1, Err: fmt.Errorf("engine returned %d results for %d transactions", len(results), len(txs))}
	}
	for i := range results {
		results[i].Index = i
	}
	d.metrics.addTxs(ModeParallel, "executed", len(results))
	return results, nil
}

func (d *Dispatcher) sequential(ctx context.Context, storage chainstate.Snapshot, chainID uint64, spec forks.Fork, block *env.BlockEnv, txs []*env.TxEnv) ([]TxResult, error) {
	state := chainstate.NewOverlay(storage)
	results := make([]TxResult, 0, len(txs))
	var skipped int
	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, changes, err := d.engine.Transact(ctx, state, chainID, spec, block, tx)
		if err == nil && res == nil {
			err = errNoResult
		}
		if err != nil {
			d.log.Warn().Err(&EngineError{Mode: ModeSequential, Index: i, Err: err}).
				Str("caller", tx.Caller.Hex()).
				Msg("Skipping failed transaction")
			skipped++
			continue
		}
		state.Commit(changes)
		r := *res
		r.Index = i
		results = append(results, r)
	}
	d.metrics.addTxs(ModeSequential, "executed", len(results))
	d.metrics.addTxs(ModeSequential, "skipped", skipped)
	d.log.Debug().Int("executed", len(results)).Int("skipped", skipped).Msg("Executed batch sequentially")
	return results, nil
}
