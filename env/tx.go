package env

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidSignature  = errors.New("invalid transaction signature")
	ErrUnsupportedTxType = errors.New("unsupported transaction type")
)

// SignatureError identifies the transaction whose sender could not be
// recovered.
type SignatureError struct {
	Index int
	Hash  common.Hash
	Err   error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("tx %d (%s): %v: %v", e.Index, e.Hash.Hex(), ErrInvalidSignature, e.Err)
}

func (e *SignatureError) Unwrap() []error { return []error{ErrInvalidSignature, e.Err} }

type TransactKind uint8

const (
	KindCall TransactKind = iota
	KindCreate
)

func (k TransactKind) String() string {
	if k == KindCreate {
		return "create"
	}
	return "call"
}

// TransactTo is either a call to Address or a contract creation.
type TransactTo struct {
	Kind    TransactKind   `json:"kind"`
	Address common.Address `json:"address"`
}

func Call(addr common.Address) TransactTo { return TransactTo{Kind: KindCall, Address: addr} }

func Create() TransactTo { return TransactTo{Kind: KindCreate} }

type AccessListItem struct {
	Address     common.Address `json:"address"`
	StorageKeys []uint256.Int  `json:"storageKeys"`
}

// TxEnv is the normalized form of a signed transaction handed to the
// execution engine. Fields a transaction type has no notion of are left at
// their zero value.
type TxEnv struct {
	Caller           common.Address   `json:"caller"`
	GasLimit         uint64           `json:"gasLimit"`
	GasPrice         uint256.Int      `json:"gasPrice"`
	GasPriorityFee   *uint256.Int     `json:"gasPriorityFee,omitempty"`
	TransactTo       TransactTo       `json:"transactTo"`
	Value            uint256.Int      `json:"value"`
	Data             []byte           `json:"data"`
	Nonce            *uint64          `json:"nonce"`
	ChainID          *uint64          `json:"chainId,omitempty"`
	AccessList       []AccessListItem `json:"accessList,omitempty"`
	BlobHashes       []common.Hash    `json:"blobHashes,omitempty"`
	MaxFeePerBlobGas *uint256.Int     `json:"maxFeePerBlobGas,omitempty"`
}

// Projector turns signed transactions into TxEnvs for one chain.
type Projector struct {
	signer types.Signer
}

func NewProjector(chainID *big.Int) *Projector {
	return &Projector{signer: types.LatestSignerForChainID(chainID)}
}

// Project normalizes tx, the index-th transaction of its batch.
func (p *Projector) Project(index int, tx *types.Transaction) (*TxEnv, error) {
	switch tx.Type() {
	case types.LegacyTxType, types.AccessListTxType, types.DynamicFeeTxType, types.BlobTxType:
	default:
		return nil, fmt.Errorf("tx %d (%s): %w %d", index, tx.Hash().Hex(), ErrUnsupportedTxType, tx.Type())
	}
	caller, err := types.Sender(p.signer, tx)
	if err != nil {
		return nil, &SignatureError{Index: index, Hash: tx.Hash(), Err: err}
	}
	nonce := tx.Nonce()
	env := &TxEnv{
		Caller:   caller,
		GasLimit: tx.Gas(),
		Data:     tx.Data(),
		Nonce:    &nonce,
	}
	if err := setU256(&env.Value, tx.Value()); err != nil {
		return nil, fmt.Errorf("tx %d value: %w", index, err)
	}
	if to := tx.To(); to != nil {
		env.TransactTo = Call(*to)
	} else {
		env.TransactTo = Create()
	}

	switch tx.Type() {
	case types.LegacyTxType:
		err = setU256(&env.GasPrice, tx.GasPrice())
		if tx.Protected() {
			env.ChainID = chainID(tx)
		}
	case types.AccessListTxType:
		err = setU256(&env.GasPrice, tx.GasPrice())
		env.ChainID = chainID(tx)
		env.AccessList = accessList(tx.AccessList())
	case types.DynamicFeeTxType:
		err = setFeeMarket(env, tx)
		env.ChainID = chainID(tx)
		env.AccessList = accessList(tx.AccessList())
	case types.BlobTxType:
		err = setFeeMarket(env, tx)
		env.ChainID = chainID(tx)
		env.AccessList = accessList(tx.AccessList())
		// Blob transactions cannot create contracts.
		env.TransactTo = Call(env.TransactTo.Address)
		env.BlobHashes = append([]common.Hash(nil), tx.BlobHashes()...)
		env.MaxFeePerBlobGas = new(uint256.Int)
		if err == nil {
			err = setU256(env.MaxFeePerBlobGas, tx.BlobGasFeeCap())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("tx %d fees: %w", index, err)
	}
	return env, nil
}

// ProjectAll projects txs in order and stops at the first failure.
func (p *Projector) ProjectAll(txs []*types.Transaction) ([]*TxEnv, error) {
	envs := make([]*TxEnv, 0, len(txs))
	for i, tx := range txs {
		env, err := p.Project(i, tx)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, nil
}

func setFeeMarket(env *TxEnv, tx *types.Transaction) error {
	if err := setU256(&env.GasPrice, tx.GasFeeCap()); err != nil {
		return err
	}
	env.GasPriorityFee = new(uint256.Int)
	return setU256(env.GasPriorityFee, tx.GasTipCap())
}

func setU256(dst *uint256.Int, v *big.Int) error {
	if v == nil {
		dst.Clear()
		return nil
	}
	if overflow := dst.SetFromBig(v); overflow {
		return fmt.Errorf("%s overflows 256 bits", v)
	}
	return nil
}

func chainID(tx *types.Transaction) *uint64 {
	id := tx.ChainId().Uint64()
	return &id
}

func accessList(al types.AccessList) []AccessListItem {
	if len(al) == 0 {
		return nil
	}
	items := make([]AccessListItem, len(al))
	for i, t := range al {
		keys := make([]uint256.Int, len(t.StorageKeys))
		for j, k := range t.StorageKeys {
			keys[j].SetBytes32(k[:])
		}
		items[i] = AccessListItem{Address: t.Address, StorageKeys: keys}
	}
	return items
}
