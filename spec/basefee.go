package spec

import (
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// BaseFeeParams are the EIP-1559 base fee adjustment parameters.
type BaseFeeParams struct {
	MaxChangeDenominator uint64 `toml:"max_change_denominator" json:"maxChangeDenominator"`
	ElasticityMultiplier uint64 `toml:"elasticity_multiplier" json:"elasticityMultiplier"`
}

var DefaultBaseFeeParams = BaseFeeParams{
	MaxChangeDenominator: params.DefaultBaseFeeChangeDenominator,
	ElasticityMultiplier: params.DefaultElasticityMultiplier,
}

// BaseFeeParamsAt returns the base fee parameters in force at timestamp.
func (c *ChainSpec) BaseFeeParamsAt(timestamp uint64) BaseFeeParams {
	for f := c.SpecAt(timestamp); f >= 0; f-- {
		if p, ok := c.BaseFee[f]; ok && p.MaxChangeDenominator != 0 && p.ElasticityMultiplier != 0 {
			return p
		}
	}
	return DefaultBaseFeeParams
}

// NextBlockBaseFee computes the base fee of the child of parent. A parent
// without a base fee yields zero.
func NextBlockBaseFee(parent *types.Header, p BaseFeeParams) *uint256.Int {
	if parent.BaseFee == nil {
		return new(uint256.Int)
	}
	baseFee, overflow := uint256.FromBig(parent.BaseFee)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	if p.ElasticityMultiplier == 0 || p.MaxChangeDenominator == 0 {
		p = DefaultBaseFeeParams
	}
	target := parent.GasLimit / p.ElasticityMultiplier
	if parent.GasUsed == target {
		return baseFee
	}

	var delta uint64
	if parent.GasUsed > target {
		delta = parent.GasUsed - target
	} else {
		delta = target - parent.GasUsed
	}
	change := new(uint256.Int).Mul(baseFee, uint256.NewInt(delta))
	change.Div(change, uint256.NewInt(target))
	change.Div(change, uint256.NewInt(p.MaxChangeDenominator))

	if parent.GasUsed > target {
		if change.IsZero() {
			change.SetOne()
		}
		return change.Add(change, baseFee)
	}
	if change.Gt(baseFee) {
		return new(uint256.Int)
	}
	return change.Sub(baseFee, change)
}

// NextBlockBaseFee applies the parameters active at the child's timestamp.
func (c *ChainSpec) NextBlockBaseFee(parent *types.Header, timestamp uint64) *uint256.Int {
	return NextBlockBaseFee(parent, c.BaseFeeParamsAt(timestamp))
}
