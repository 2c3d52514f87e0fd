package beacon

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PayloadAttributesEvent is the beacon API payload_attributes event. Numbers
// are quoted decimals on the wire.
type PayloadAttributesEvent struct {
	Version string                `json:"version"`
	Data    PayloadAttributesData `json:"data"`
}

type PayloadAttributesData struct {
	ProposerIndex     math.HexOrDecimal64 `json:"proposer_index"`
	ProposalSlot      math.HexOrDecimal64 `json:"proposal_slot"`
	ParentBlockNumber math.HexOrDecimal64 `json:"parent_block_number"`
	ParentBlockRoot   common.Hash         `json:"parent_block_root"`
	ParentBlockHash   common.Hash         `json:"parent_block_hash"`
	PayloadAttributes PayloadAttributes   `json:"payload_attributes"`
}

type PayloadAttributes struct {
	Timestamp             math.HexOrDecimal64 `json:"timestamp"`
	PrevRandao            common.Hash         `json:"prev_randao"`
	SuggestedFeeRecipient common.Address      `json:"suggested_fee_recipient"`
	Withdrawals           []Withdrawal        `json:"withdrawals,omitempty"`
	ParentBeaconBlockRoot *common.Hash        `json:"parent_beacon_block_root,omitempty"`
}

type Withdrawal struct {
	Index          math.HexOrDecimal64 `json:"index"`
	ValidatorIndex math.HexOrDecimal64 `json:"validator_index"`
	Address        common.Address      `json:"address"`
	Amount         math.HexOrDecimal64 `json:"amount"`
}

func decodeEvent(data []byte) (*PayloadAttributesEvent, error) {
	var ev PayloadAttributesEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (e *PayloadAttributesEvent) Attributes() *BlockAttributes {
	pa := e.Data.PayloadAttributes
	attrs := &BlockAttributes{
		Timestamp:             uint64(pa.Timestamp),
		SuggestedFeeRecipient: pa.SuggestedFeeRecipient,
		PrevRandao:            pa.PrevRandao,
		ParentBeaconBlockRoot: pa.ParentBeaconBlockRoot,
		ProposalSlot:          uint64(e.Data.ProposalSlot),
		ParentBlockNumber:     uint64(e.Data.ParentBlockNumber),
		ParentBlockHash:       e.Data.ParentBlockHash,
	}
	if pa.Withdrawals != nil {
		attrs.Withdrawals = make([]*types.Withdrawal, len(pa.Withdrawals))
		for i, w := range pa.Withdrawals {
			attrs.Withdrawals[i] = &types.Withdrawal{
				Index:     uint64(w.Index),
				Validator: uint64(w.ValidatorIndex),
				Address:   w.Address,
				Amount:    uint64(w.Amount),
			}
		}
	}
	return attrs
}
