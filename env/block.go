// Package env derives the execution environment of a pending block and of
// the transactions it carries.
package env

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params/forks"
	"github.com/holiman/uint256"

	"github.com/henridf/pbb/beacon"
	"github.com/henridf/pbb/spec"
)

// BlockEnv is the block context transactions execute against.
type BlockEnv struct {
	// ParentHash pins the state the block executes on top of.
	ParentHash common.Hash    `json:"parentHash"`
	Number     uint64         `json:"number"`
	Timestamp  uint64         `json:"timestamp"`
	Coinbase   common.Address `json:"coinbase"`
	GasLimit   uint64         `json:"gasLimit"`
	BaseFee    *uint256.Int   `json:"baseFee"`
	Difficulty *uint256.Int   `json:"difficulty"`
	PrevRandao common.Hash    `json:"prevRandao"`

	// Set iff the block's fork carries blobs.
	BlobExcessGasAndPrice *spec.BlobExcessGasAndPrice `json:"blobExcessGasAndPrice,omitempty"`
}

// Build derives the environment of the block that follows parent, as
// described by attrs. It also returns the fork active at attrs.Timestamp.
func Build(cs *spec.ChainSpec, parent *types.Header, attrs *beacon.BlockAttributes) (*BlockEnv, forks.Fork) {
	fork := cs.SpecAt(attrs.Timestamp)
	env := &BlockEnv{
		ParentHash: parent.Hash(),
		Number:     parent.Number.Uint64() + 1,
		Timestamp:  attrs.Timestamp,
		Coinbase:   attrs.SuggestedFeeRecipient,
		GasLimit:   parent.GasLimit,
		BaseFee:    cs.NextBlockBaseFee(parent, attrs.Timestamp),
		Difficulty: new(uint256.Int),
		PrevRandao: attrs.PrevRandao,
	}
	if p, ok := cs.BlobParamsAt(fork); ok {
		// A parent that predates blobs has no excess to carry over. This
		// holds for any blob fork, not only the first one, so the pair is
		// always present once blobs are active (DESIGN.md decision 2).
		excess, _ := spec.NextBlockExcessBlobGas(parent, p)
		env.BlobExcessGasAndPrice = spec.NewBlobExcessGasAndPrice(excess, p)
	}
	return env, fork
}

// FromHeader returns the environment a committed block executed in, for
// replaying it.
func FromHeader(cs *spec.ChainSpec, h *types.Header) (*BlockEnv, forks.Fork, error) {
	fork := cs.SpecAt(h.Time)
	baseFee := new(uint256.Int)
	if h.BaseFee != nil {
		if overflow := baseFee.SetFromBig(h.BaseFee); overflow {
			return nil, fork, fmt.Errorf("block %d: base fee %s overflows 256 bits", h.Number, h.BaseFee)
		}
	}
	difficulty := new(uint256.Int)
	if h.Difficulty != nil {
		if overflow := difficulty.SetFromBig(h.Difficulty); overflow {
			return nil, fork, fmt.Errorf("block %d: difficulty %s overflows 256 bits", h.Number, h.Difficulty)
		}
	}
	env := &BlockEnv{
		ParentHash: h.ParentHash,
		Number:     h.Number.Uint64(),
		Timestamp:  h.Time,
		Coinbase:   h.Coinbase,
		GasLimit:   h.GasLimit,
		BaseFee:    baseFee,
		Difficulty: difficulty,
		PrevRandao: h.MixDigest,
	}
	if p, ok := cs.BlobParamsAt(fork); ok {
		var excess uint64
		if h.ExcessBlobGas != nil {
			excess = *h.ExcessBlobGas
		}
		env.BlobExcessGasAndPrice = spec.NewBlobExcessGasAndPrice(excess, p)
	}
	return env, fork, nil
}
