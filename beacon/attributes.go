// Package beacon acquires the attributes of the next block to build, either
// from the latest committed header or from a beacon node's
// payload_attributes event stream.
package beacon

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BlockAttributes describe the block to build. See also
// https://github.com/ethereum/execution-apis/blob/main/src/engine/cancun.md#payloadattributesv3
type BlockAttributes struct {
	Timestamp             uint64              `json:"timestamp"`
	SuggestedFeeRecipient common.Address      `json:"suggestedFeeRecipient"`
	PrevRandao            common.Hash         `json:"prevRandao"`
	Withdrawals           []*types.Withdrawal `json:"withdrawals,omitempty"`
	ParentBeaconBlockRoot *common.Hash        `json:"parentBeaconBlockRoot,omitempty"`

	ProposalSlot      uint64      `json:"proposalSlot,omitempty"`
	ParentBlockNumber uint64      `json:"parentBlockNumber"`
	ParentBlockHash   common.Hash `json:"parentBlockHash"`
}

// Source yields the attributes of one block building attempt.
type Source interface {
	Acquire(ctx context.Context) (*BlockAttributes, error)
}

type HeaderReader interface {
	LatestHeader(ctx context.Context) (*types.Header, error)
}

// LatestSource replays the attributes recorded in the latest header.
type LatestSource struct {
	headers HeaderReader
}

func NewLatestSource(headers HeaderReader) *LatestSource {
	return &LatestSource{headers: headers}
}

func (s *LatestSource) Acquire(ctx context.Context) (*BlockAttributes, error) {
	h, err := s.headers.LatestHeader(ctx)
	if err != nil {
		return nil, err
	}
	return FromHeader(h), nil
}

// FromHeader returns the attributes a committed header was built with.
func FromHeader(h *types.Header) *BlockAttributes {
	attrs := &BlockAttributes{
		Timestamp:             h.Time,
		SuggestedFeeRecipient: h.Coinbase,
		PrevRandao:            h.MixDigest,
		ParentBeaconBlockRoot: h.ParentBeaconRoot,
		ParentBlockHash:       h.ParentHash,
	}
	if n := h.Number.Uint64(); n > 0 {
		attrs.ParentBlockNumber = n - 1
	}
	return attrs
}
