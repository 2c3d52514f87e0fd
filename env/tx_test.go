package env

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	testKey, _ = crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	testAddr   = crypto.PubkeyToAddress(testKey.PublicKey)
	testChain  = big.NewInt(1337)
	recipient  = common.HexToAddress("0x1000")
	slotKey    = common.HexToHash("0x01")
	blobHash1  = common.HexToHash("0x0100000000000000000000000000000000000000000000000000000000000001")
	blobHash2  = common.HexToHash("0x0100000000000000000000000000000000000000000000000000000000000002")
)

func sign(t *testing.T, inner types.TxData) *types.Transaction {
	tx, err := types.SignNewTx(testKey, types.LatestSignerForChainID(testChain), inner)
	require.NoError(t, err)
	return tx
}

func ptr[T any](v T) *T { return &v }

func testAccessList() types.AccessList {
	return types.AccessList{{Address: recipient, StorageKeys: []common.Hash{slotKey}}}
}

func wantAccessList() []AccessListItem {
	return []AccessListItem{{Address: recipient, StorageKeys: []uint256.Int{*uint256.NewInt(1)}}}
}

func TestProject(t *testing.T) {
	unprotected, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce: 9, GasPrice: big.NewInt(3), Gas: 21_000, To: &recipient, Value: big.NewInt(1),
	}), types.HomesteadSigner{}, testKey)
	require.NoError(t, err)

	tests := []struct {
		name string
		tx   *types.Transaction
		want *TxEnv
	}{
		{
			name: "legacy",
			tx: sign(t, &types.LegacyTx{
				Nonce: 1, GasPrice: big.NewInt(7), Gas: 21_000, To: &recipient, Value: big.NewInt(5), Data: []byte{0xaa},
			}),
			want: &TxEnv{
				Caller:     testAddr,
				GasLimit:   21_000,
				GasPrice:   *uint256.NewInt(7),
				TransactTo: Call(recipient),
				Value:      *uint256.NewInt(5),
				Data:       []byte{0xaa},
				Nonce:      ptr(uint64(1)),
				ChainID:    ptr(uint64(1337)),
			},
		},
		{
			name: "legacy without replay protection",
			tx:   unprotected,
			want: &TxEnv{
				Caller:     testAddr,
				GasLimit:   21_000,
				GasPrice:   *uint256.NewInt(3),
				TransactTo: Call(recipient),
				Value:      *uint256.NewInt(1),
				Nonce:      ptr(uint64(9)),
			},
		},
		{
			name: "access list create",
			tx: sign(t, &types.AccessListTx{
				ChainID: testChain, Nonce: 2, GasPrice: big.NewInt(9), Gas: 100_000, Value: big.NewInt(0),
				Data: []byte{0x60, 0x00}, AccessList: testAccessList(),
			}),
			want: &TxEnv{
				Caller:     testAddr,
				GasLimit:   100_000,
				GasPrice:   *uint256.NewInt(9),
				TransactTo: Create(),
				Data:       []byte{0x60, 0x00},
				Nonce:      ptr(uint64(2)),
				ChainID:    ptr(uint64(1337)),
				AccessList: wantAccessList(),
			},
		},
		{
			name: "dynamic fee",
			tx: sign(t, &types.DynamicFeeTx{
				ChainID: testChain, Nonce: 3, GasTipCap: big.NewInt(2), GasFeeCap: big.NewInt(30), Gas: 50_000,
				To: &recipient, Value: big.NewInt(4), Data: []byte{0xbb}, AccessList: testAccessList(),
			}),
			want: &TxEnv{
				Caller:         testAddr,
				GasLimit:       50_000,
				GasPrice:       *uint256.NewInt(30),
				GasPriorityFee: uint256.NewInt(2),
				TransactTo:     Call(recipient),
				Value:          *uint256.NewInt(4),
				Data:           []byte{0xbb},
				Nonce:          ptr(uint64(3)),
				ChainID:        ptr(uint64(1337)),
				AccessList:     wantAccessList(),
			},
		},
		{
			name: "blob",
			tx: sign(t, &types.BlobTx{
				ChainID: uint256.NewInt(1337), Nonce: 4, GasTipCap: uint256.NewInt(2), GasFeeCap: uint256.NewInt(40),
				Gas: 60_000, To: recipient, Value: uint256.NewInt(6), Data: []byte{0xcc}, AccessList: testAccessList(),
				BlobFeeCap: uint256.NewInt(11), BlobHashes: []common.Hash{blobHash1, blobHash2},
			}),
			want: &TxEnv{
				Caller:           testAddr,
				GasLimit:         60_000,
				GasPrice:         *uint256.NewInt(40),
				GasPriorityFee:   uint256.NewInt(2),
				TransactTo:       Call(recipient),
				Value:            *uint256.NewInt(6),
				Data:             []byte{0xcc},
				Nonce:            ptr(uint64(4)),
				ChainID:          ptr(uint64(1337)),
				AccessList:       wantAccessList(),
				BlobHashes:       []common.Hash{blobHash1, blobHash2},
				MaxFeePerBlobGas: uint256.NewInt(11),
			},
		},
	}

	p := NewProjector(testChain)
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Project(i, tt.tx)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestProjectUnsupportedType(t *testing.T) {
	tx := types.NewTx(&types.SetCodeTx{
		ChainID: uint256.NewInt(1337), GasTipCap: uint256.NewInt(1), GasFeeCap: uint256.NewInt(1),
		Gas: 21_000, To: recipient, Value: new(uint256.Int),
	})
	_, err := NewProjector(testChain).Project(0, tx)
	require.ErrorIs(t, err, ErrUnsupportedTxType)
}

func TestProjectAllInvalidSignature(t *testing.T) {
	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID: testChain, Nonce: 1, GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(1), Gas: 21_000,
		To: &recipient, Value: big.NewInt(0),
	})
	txs := []*types.Transaction{
		sign(t, &types.DynamicFeeTx{ChainID: testChain, GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(1), Gas: 21_000, To: &recipient}),
		unsigned,
		sign(t, &types.DynamicFeeTx{ChainID: testChain, Nonce: 2, GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(1), Gas: 21_000, To: &recipient}),
	}

	envs, err := NewProjector(testChain).ProjectAll(txs)
	require.Nil(t, envs)
	require.ErrorIs(t, err, ErrInvalidSignature)

	var sigErr *SignatureError
	require.True(t, errors.As(err, &sigErr))
	require.Equal(t, 1, sigErr.Index)
	require.Equal(t, unsigned.Hash(), sigErr.Hash)
}

func TestProjectAllPreservesOrder(t *testing.T) {
	var txs []*types.Transaction
	for nonce := uint64(0); nonce < 5; nonce++ {
		txs = append(txs, sign(t, &types.DynamicFeeTx{
			ChainID: testChain, Nonce: nonce, GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(1), Gas: 21_000, To: &recipient,
		}))
	}

	envs, err := NewProjector(testChain).ProjectAll(txs)
	require.NoError(t, err)
	require.Len(t, envs, 5)
	for i, env := range envs {
		require.Equal(t, uint64(i), *env.Nonce)
	}
}
