// Package exec hands prepared transaction batches to an execution engine and
// reconciles what comes back.
package exec

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params/forks"

	"github.com/henridf/pbb/chainstate"
	"github.com/henridf/pbb/env"
)

// ErrExecution marks failures reported by the execution engine.
var ErrExecution = errors.New("execution failed")

// EngineError is an engine failure. Index is the failing transaction, or -1
// when the engine failed the batch as a whole.
type EngineError struct {
	Mode  Mode
	Index int
	Err   error
}

func (e *EngineError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s %v: %v", e.Mode, ErrExecution, e.Err)
	}
	return fmt.Sprintf("%s %v at tx %d: %v", e.Mode, ErrExecution, e.Index, e.Err)
}

func (e *EngineError) Unwrap() []error { return []error{ErrExecution, e.Err} }

type Status uint8

const (
	StatusSuccess Status = iota
	StatusRevert
	StatusHalt
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRevert:
		return "revert"
	case StatusHalt:
		return "halt"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// TxResult is the outcome of one executed transaction. A reverted or halted
// transaction still has a result; only engine failures have none.
type TxResult struct {
	Index           int             `json:"index"`
	Status          Status          `json:"status"`
	Reason          string          `json:"reason,omitempty"`
	GasUsed         uint64          `json:"gasUsed"`
	GasRefunded     uint64          `json:"gasRefunded"`
	Output          []byte          `json:"output,omitempty"`
	Logs            []*types.Log    `json:"logs,omitempty"`
	ContractAddress *common.Address `json:"contractAddress,omitempty"`
}

//go:generate mockgen -destination=./engine_mock.go -package=exec . Engine

// Engine executes transactions against a read-only state snapshot.
type Engine interface {
	// ExecuteParallel runs the batch on up to concurrency workers. The
	// results must equal in-order sequential execution.
	ExecuteParallel(ctx context.Context, storage chainstate.Snapshot, chainID uint64, spec forks.Fork, block *env.BlockEnv, txs []*env.TxEnv, concurrency int) ([]TxResult, error)

	// Transact runs a single transaction and returns its writes without
	// applying them.
	Transact(ctx context.Context, storage chainstate.Snapshot, chainID uint64, spec forks.Fork, block *env.BlockEnv, tx *env.TxEnv) (*TxResult, chainstate.StateChanges, error)
}
