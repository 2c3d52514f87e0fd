package spec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/params/forks"
	"github.com/holiman/uint256"
)

// BlobParams are the blob gas market parameters of one fork.
type BlobParams struct {
	Target         uint64
	Max            uint64
	UpdateFraction uint64
}

// TargetBlobGas is the per-block blob gas the market steers towards.
func (p BlobParams) TargetBlobGas() uint64 {
	return p.Target * params.BlobTxBlobGasPerBlob
}

func blobParams(c *params.BlobConfig) BlobParams {
	return BlobParams{Target: uint64(c.Target), Max: uint64(c.Max), UpdateFraction: c.UpdateFraction}
}

// BlobParamsAt returns the blob parameters of fork, and false if the fork
// predates blob-carrying transactions.
func (c *ChainSpec) BlobParamsAt(fork forks.Fork) (BlobParams, bool) {
	if fork < forks.Cancun {
		return BlobParams{}, false
	}
	schedule := c.Config.BlobScheduleConfig
	if schedule == nil {
		schedule = &params.BlobScheduleConfig{}
	}
	switch {
	case fork >= forks.Osaka && schedule.Osaka != nil:
		return blobParams(schedule.Osaka), true
	case fork >= forks.Prague && schedule.Prague != nil:
		return blobParams(schedule.Prague), true
	case fork >= forks.Prague:
		return blobParams(params.DefaultPragueBlobConfig), true
	case schedule.Cancun != nil:
		return blobParams(schedule.Cancun), true
	default:
		return blobParams(params.DefaultCancunBlobConfig), true
	}
}

// NextBlockExcessBlobGas derives the child's excess blob gas from the
// parent's blob fields. It reports false when the parent carries none.
func NextBlockExcessBlobGas(parent *types.Header, p BlobParams) (uint64, bool) {
	if parent.ExcessBlobGas == nil || parent.BlobGasUsed == nil {
		return 0, false
	}
	sum := *parent.ExcessBlobGas + *parent.BlobGasUsed
	if target := p.TargetBlobGas(); sum > target {
		return sum - target, true
	}
	return 0, true
}

// BlobExcessGasAndPrice pairs a block's excess blob gas with the blob gas
// price it implies.
type BlobExcessGasAndPrice struct {
	ExcessBlobGas uint64       `json:"excessBlobGas"`
	BlobGasPrice  *uint256.Int `json:"blobGasPrice"`
}

func NewBlobExcessGasAndPrice(excessBlobGas uint64, p BlobParams) *BlobExcessGasAndPrice {
	price := fakeExponential(big.NewInt(params.BlobTxMinBlobGasprice), new(big.Int).SetUint64(excessBlobGas), new(big.Int).SetUint64(p.UpdateFraction))
	v, overflow := uint256.FromBig(price)
	if overflow {
		v = new(uint256.Int).SetAllOne()
	}
	return &BlobExcessGasAndPrice{ExcessBlobGas: excessBlobGas, BlobGasPrice: v}
}

// fakeExponential approximates factor * e ** (numerator / denominator) using
// Taylor expansion.
func fakeExponential(factor, numerator, denominator *big.Int) *big.Int {
	if denominator.Sign() == 0 {
		return new(big.Int).Set(factor)
	}
	var (
		output = new(big.Int)
		accum  = new(big.Int).Mul(factor, denominator)
	)
	for i := 1; accum.Sign() > 0; i++ {
		output.Add(output, accum)

		accum.Mul(accum, numerator)
		accum.Div(accum, denominator)
		accum.Div(accum, big.NewInt(int64(i)))
	}
	return output.Div(output, denominator)
}
