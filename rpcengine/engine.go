// Package rpcengine executes transaction batches remotely through an
// execution client's eth_simulateV1 endpoint.
package rpcengine

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params/forks"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/henridf/pbb/chainstate"
	"github.com/henridf/pbb/env"
	"github.com/henridf/pbb/exec"
)

// revertCode is the JSON-RPC error code of reverted calls.
const revertCode = 3

type Caller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Engine runs the batch on top of the block env's parent hash, the block the
// storage snapshot was taken at. Without a parent hash it falls back to the
// parent's number. The storage snapshot is only consulted for account nonces
// in sequential mode.
type Engine struct {
	c Caller
}

var _ exec.Engine = (*Engine)(nil)

func New(c Caller) *Engine {
	return &Engine{c: c}
}

// ExecuteParallel simulates the batch as a single block. Ordering and
// parallelism are up to the remote client; concurrency is not forwarded.
func (e *Engine) ExecuteParallel(ctx context.Context, storage chainstate.Snapshot, chainID uint64, spec forks.Fork, block *env.BlockEnv, txs []*env.TxEnv, concurrency int) ([]exec.TxResult, error) {
	calls := make([]callArgs, len(txs))
	for i, tx := range txs {
		calls[i] = newCallArgs(tx)
	}
	res, err := e.simulate(ctx, block, nil, calls)
	if err != nil {
		return nil, err
	}
	results := make([]exec.TxResult, len(res))
	for i, r := range res {
		results[i] = r.result(i)
	}
	return results, nil
}

// Transact simulates tx alone, with the sender's nonce taken from storage.
// Only the sender's nonce is reported back as a write.
func (e *Engine) Transact(ctx context.Context, storage chainstate.Snapshot, chainID uint64, spec forks.Fork, block *env.BlockEnv, tx *env.TxEnv) (*exec.TxResult, chainstate.StateChanges, error) {
	acc, err := storage.Account(ctx, tx.Caller)
	if err != nil {
		return nil, nil, err
	}
	if acc == nil {
		acc = &chainstate.Account{CodeHash: types.EmptyCodeHash}
	}
	overrides := map[common.Address]accountOverride{
		tx.Caller: {Nonce: (*hexutil.Uint64)(&acc.Nonce)},
	}
	res, err := e.simulate(ctx, block, overrides, []callArgs{newCallArgs(tx)})
	if err != nil {
		return nil, nil, err
	}
	if len(res) != 1 {
		return nil, nil, fmt.Errorf("eth_simulateV1 returned %d results for one call", len(res))
	}
	r := res[0].result(0)
	next := acc.Copy()
	next.Nonce++
	return &r, chainstate.StateChanges{tx.Caller: {Account: next}}, nil
}

func (e *Engine) simulate(ctx context.Context, block *env.BlockEnv, overrides map[common.Address]accountOverride, calls []callArgs) ([]callResult, error) {
	if block.Number == 0 {
		return nil, errors.New("cannot simulate the genesis block")
	}
	opts := simOpts{
		BlockStateCalls: []simBlock{{
			BlockOverrides: newBlockOverrides(block),
			StateOverrides: overrides,
			Calls:          calls,
		}},
	}
	base := rpc.BlockNumberOrHashWithNumber(rpc.BlockNumber(block.Number - 1))
	if block.ParentHash != (common.Hash{}) {
		base = rpc.BlockNumberOrHashWithHash(block.ParentHash, false)
	}

	var blocks []simBlockResult
	if err := e.c.CallContext(ctx, &blocks, "eth_simulateV1", opts, base); err != nil {
		return nil, fmt.Errorf("eth_simulateV1: %w", err)
	}
	if len(blocks) != 1 {
		return nil, fmt.Errorf("eth_simulateV1 returned %d blocks, want 1", len(blocks))
	}
	if len(blocks[0].Calls) != len(calls) {
		return nil, fmt.Errorf("eth_simulateV1 returned %d results for %d calls", len(blocks[0].Calls), len(calls))
	}
	return blocks[0].Calls, nil
}

type simOpts struct {
	BlockStateCalls []simBlock `json:"blockStateCalls"`
	Validation      bool       `json:"validation"`
}

type simBlock struct {
	BlockOverrides *blockOverrides                    `json:"blockOverrides,omitempty"`
	StateOverrides map[common.Address]accountOverride `json:"stateOverrides,omitempty"`
	Calls          []callArgs                         `json:"calls"`
}

type blockOverrides struct {
	Number        *hexutil.Big    `json:"number,omitempty"`
	Time          *hexutil.Uint64 `json:"time,omitempty"`
	GasLimit      *hexutil.Uint64 `json:"gasLimit,omitempty"`
	FeeRecipient  *common.Address `json:"feeRecipient,omitempty"`
	PrevRandao    *common.Hash    `json:"prevRandao,omitempty"`
	BaseFeePerGas *hexutil.Big    `json:"baseFeePerGas,omitempty"`
	BlobBaseFee   *hexutil.Big    `json:"blobBaseFee,omitempty"`
}

func newBlockOverrides(b *env.BlockEnv) *blockOverrides {
	o := &blockOverrides{
		Number:        (*hexutil.Big)(new(big.Int).SetUint64(b.Number)),
		Time:          (*hexutil.Uint64)(&b.Timestamp),
		GasLimit:      (*hexutil.Uint64)(&b.GasLimit),
		FeeRecipient:  &b.Coinbase,
		PrevRandao:    &b.PrevRandao,
		BaseFeePerGas: (*hexutil.Big)(b.BaseFee.ToBig()),
	}
	if b.BlobExcessGasAndPrice != nil {
		o.BlobBaseFee = (*hexutil.Big)(b.BlobExcessGasAndPrice.BlobGasPrice.ToBig())
	}
	return o
}

type accountOverride struct {
	Nonce *hexutil.Uint64 `json:"nonce,omitempty"`
}

type callArgs struct {
	From                 common.Address    `json:"from"`
	To                   *common.Address   `json:"to,omitempty"`
	Gas                  hexutil.Uint64    `json:"gas"`
	GasPrice             *hexutil.Big      `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big      `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big      `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big      `json:"value"`
	Nonce                *hexutil.Uint64   `json:"nonce,omitempty"`
	Input                hexutil.Bytes     `json:"input"`
	AccessList           *types.AccessList `json:"accessList,omitempty"`
	BlobHashes           []common.Hash     `json:"blobVersionedHashes,omitempty"`
	MaxFeePerBlobGas     *hexutil.Big      `json:"maxFeePerBlobGas,omitempty"`
}

func newCallArgs(tx *env.TxEnv) callArgs {
	args := callArgs{
		From:       tx.Caller,
		Gas:        hexutil.Uint64(tx.GasLimit),
		Value:      (*hexutil.Big)(tx.Value.ToBig()),
		Nonce:      (*hexutil.Uint64)(tx.Nonce),
		Input:      tx.Data,
		BlobHashes: tx.BlobHashes,
	}
	if tx.TransactTo.Kind == env.KindCall {
		to := tx.TransactTo.Address
		args.To = &to
	}
	if tx.GasPriorityFee != nil {
		args.MaxFeePerGas = (*hexutil.Big)(tx.GasPrice.ToBig())
		args.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasPriorityFee.ToBig())
	} else {
		args.GasPrice = (*hexutil.Big)(tx.GasPrice.ToBig())
	}
	if tx.AccessList != nil {
		al := make(types.AccessList, len(tx.AccessList))
		for i, item := range tx.AccessList {
			keys := make([]common.Hash, len(item.StorageKeys))
			for j := range item.StorageKeys {
				keys[j] = item.StorageKeys[j].Bytes32()
			}
			al[i] = types.AccessTuple{Address: item.Address, StorageKeys: keys}
		}
		args.AccessList = &al
	}
	if tx.MaxFeePerBlobGas != nil {
		args.MaxFeePerBlobGas = (*hexutil.Big)(tx.MaxFeePerBlobGas.ToBig())
	}
	return args
}

type simBlockResult struct {
	Calls []callResult `json:"calls"`
}

type callResult struct {
	ReturnData hexutil.Bytes  `json:"returnData"`
	Logs       []callLog      `json:"logs"`
	GasUsed    hexutil.Uint64 `json:"gasUsed"`
	Status     hexutil.Uint64 `json:"status"`
	Error      *callError     `json:"error,omitempty"`
}

type callLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

type callError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (r callResult) result(index int) exec.TxResult {
	res := exec.TxResult{
		Index:   index,
		Status:  exec.StatusSuccess,
		GasUsed: uint64(r.GasUsed),
		Output:  r.ReturnData,
	}
	if r.Status != 1 {
		res.Status = exec.StatusHalt
		if r.Error != nil {
			if r.Error.Code == revertCode {
				res.Status = exec.StatusRevert
			}
			res.Reason = r.Error.Message
		}
	}
	for _, l := range r.Logs {
		res.Logs = append(res.Logs, &types.Log{Address: l.Address, Topics: l.Topics, Data: l.Data})
	}
	return res
}
