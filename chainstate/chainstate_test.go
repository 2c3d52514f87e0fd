package chainstate

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/henridf/pbb/evmcode"
)

var (
	alice = common.HexToAddress("0xa1")
	bob   = common.HexToAddress("0xb0")
	slot1 = common.HexToHash("0x01")
	slot2 = common.HexToHash("0x02")
)

type countingSnapshot struct {
	*Memory
	accountReads atomic.Int32
	fail         error
}

func (s *countingSnapshot) Account(ctx context.Context, addr common.Address) (*Account, error) {
	s.accountReads.Add(1)
	if s.fail != nil {
		return nil, s.fail
	}
	return s.Memory.Account(ctx, addr)
}

func baseState() *Memory {
	base := NewMemory(nil)
	base.SetAccount(alice, &Account{Balance: *uint256.NewInt(100), Nonce: 1, CodeHash: types.EmptyCodeHash})
	base.SetStorage(alice, slot1, common.HexToHash("0x11"))
	base.SetBlockHash(7, common.HexToHash("0x77"))
	return base
}

func TestMemoryFallback(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(baseState())
	mem.SetAccount(bob, &Account{Nonce: 5})

	acc, err := mem.Account(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1), acc.Nonce)

	acc, err = mem.Account(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(5), acc.Nonce)

	v, err := mem.Storage(ctx, alice, slot1)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x11"), v)

	h, err := mem.BlockHash(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x77"), h)

	acc, err = NewMemory(nil).Account(ctx, alice)
	require.NoError(t, err)
	require.Nil(t, acc)
}

func TestOverlayCommit(t *testing.T) {
	ctx := context.Background()
	base := baseState()
	o := NewOverlay(base)

	o.Commit(StateChanges{
		alice: {
			Account: &Account{Balance: *uint256.NewInt(60), Nonce: 2, CodeHash: types.EmptyCodeHash},
			Storage: map[common.Hash]common.Hash{slot2: common.HexToHash("0x22")},
		},
		bob: {Account: &Account{Balance: *uint256.NewInt(40), CodeHash: types.EmptyCodeHash}},
	})

	acc, err := o.Account(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(2), acc.Nonce)
	require.Equal(t, uint64(60), acc.Balance.Uint64())

	acc, err = o.Account(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(40), acc.Balance.Uint64())

	v, err := o.Storage(ctx, alice, slot1)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x11"), v, "untouched slots read through")
	v, err = o.Storage(ctx, alice, slot2)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x22"), v)

	// The base snapshot is never written.
	acc, err = base.Account(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1), acc.Nonce)

	o.Commit(StateChanges{alice: {}})
	acc, err = o.Account(ctx, alice)
	require.NoError(t, err)
	require.Nil(t, acc)
	v, err = o.Storage(ctx, alice, slot1)
	require.NoError(t, err)
	require.Equal(t, common.Hash{}, v)

	h, err := o.BlockHash(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x77"), h)
}

func TestOverlayReturnsCopies(t *testing.T) {
	o := NewOverlay(NewMemory(nil))
	o.Commit(StateChanges{alice: {Account: &Account{Nonce: 1}}})

	acc, err := o.Account(context.Background(), alice)
	require.NoError(t, err)
	acc.Nonce = 99

	acc, err = o.Account(context.Background(), alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1), acc.Nonce)
}

func TestLoad(t *testing.T) {
	snap := &countingSnapshot{Memory: baseState()}

	mem, err := Load(context.Background(), snap, []common.Address{alice, bob, alice}, []uint64{7}, 2)
	require.NoError(t, err)
	require.Equal(t, int32(2), snap.accountReads.Load())
	require.Equal(t, 2, mem.Len())

	acc, err := mem.Account(context.Background(), bob)
	require.NoError(t, err)
	require.Nil(t, acc)
	require.Equal(t, int32(2), snap.accountReads.Load(), "missing accounts are cached too")

	boom := errors.New("boom")
	_, err = Load(context.Background(), &countingSnapshot{Memory: baseState(), fail: boom}, []common.Address{alice}, nil, 0)
	require.ErrorIs(t, err, boom)
}

func testBlocks(t *testing.T, first, count uint64) []*types.Block {
	var (
		blocks []*types.Block
		parent common.Hash
	)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := types.LatestSignerForChainID(big.NewInt(1337))
	for n := first; n < first+count; n++ {
		tx, err := types.SignNewTx(key, signer, &types.DynamicFeeTx{
			ChainID: big.NewInt(1337), Nonce: n, GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(10), Gas: 21_000, To: &bob,
		})
		require.NoError(t, err)
		header := &types.Header{
			ParentHash: parent,
			Number:     new(big.Int).SetUint64(n),
			Difficulty: big.NewInt(0),
			GasLimit:   30_000_000,
			Time:       n * 12,
			BaseFee:    big.NewInt(7),
		}
		b := types.NewBlockWithHeader(header).WithBody(types.Body{Transactions: []*types.Transaction{tx}})
		blocks = append(blocks, b)
		parent = b.Hash()
	}
	return blocks
}

func encodeBlocks(t *testing.T, blocks []*types.Block) []byte {
	var buf bytes.Buffer
	for _, b := range blocks {
		require.NoError(t, rlp.Encode(&buf, b))
	}
	return buf.Bytes()
}

func TestRLPFile(t *testing.T) {
	blocks := testBlocks(t, 10, 4)
	dir := t.TempDir()
	first := filepath.Join(dir, "a.rlp")
	second := filepath.Join(dir, "b.rlp")
	require.NoError(t, os.WriteFile(first, encodeBlocks(t, blocks[:2]), 0o644))
	require.NoError(t, os.WriteFile(second, encodeBlocks(t, blocks[2:]), 0o644))

	f, err := OpenRLPFiles(zerolog.Nop(), first, second)
	require.NoError(t, err)
	require.Equal(t, 4, f.Len())

	head, err := f.LatestHeader(context.Background())
	require.NoError(t, err)
	require.Equal(t, blocks[3].Hash(), head.Hash())

	b, err := f.BlockByNumber(11)
	require.NoError(t, err)
	require.Equal(t, blocks[1].Hash(), b.Hash())
	require.Equal(t, blocks[1].Transactions()[0].Hash(), b.Transactions()[0].Hash())

	_, err = f.BlockByNumber(14)
	require.ErrorIs(t, err, ErrDatabase)

	_, err = f.StateByBlockHash(context.Background(), head.Hash())
	require.ErrorIs(t, err, ErrDatabase)
	require.ErrorIs(t, err, errNoState)
}

func TestRLPFileNonConsecutive(t *testing.T) {
	blocks := testBlocks(t, 0, 3)
	_, err := ReadRLP(bytes.NewReader(encodeBlocks(t, []*types.Block{blocks[0], blocks[2]})), zerolog.Nop())
	require.ErrorIs(t, err, ErrDatabase)
	require.ErrorContains(t, err, "non-consecutive")

	_, err = ReadRLP(bytes.NewReader(nil), zerolog.Nop())
	require.ErrorIs(t, err, ErrDatabase)
}

type fakeEth struct {
	head    *types.Header
	balance map[common.Address]*big.Int
	nonce   map[common.Address]uint64
	code    map[common.Address][]byte
	storage map[common.Hash]common.Hash
}

func (f *fakeEth) GetBlockByNumber(number rpc.BlockNumber, full bool) (*types.Header, error) {
	if number == rpc.LatestBlockNumber || uint64(number) == f.head.Number.Uint64() {
		return f.head, nil
	}
	return nil, nil
}

func (f *fakeEth) GetBlockByHash(hash common.Hash, full bool) (*types.Header, error) {
	if hash == f.head.Hash() {
		return f.head, nil
	}
	return nil, nil
}

func (f *fakeEth) GetBalance(addr common.Address, at rpc.BlockNumberOrHash) (*hexutil.Big, error) {
	if b, ok := f.balance[addr]; ok {
		return (*hexutil.Big)(b), nil
	}
	return (*hexutil.Big)(new(big.Int)), nil
}

func (f *fakeEth) GetTransactionCount(addr common.Address, at rpc.BlockNumberOrHash) (hexutil.Uint64, error) {
	return hexutil.Uint64(f.nonce[addr]), nil
}

func (f *fakeEth) GetCode(addr common.Address, at rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	return f.code[addr], nil
}

func (f *fakeEth) GetStorageAt(addr common.Address, key common.Hash, at rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	v := f.storage[key]
	return v[:], nil
}

func newTestRPCProvider(t *testing.T, eth *fakeEth, codes *evmcode.Cache) *RPCProvider {
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", eth))
	t.Cleanup(srv.Stop)
	p := NewRPCProvider(rpc.DialInProc(srv), codes)
	t.Cleanup(p.Close)
	return p
}

func TestRPCProvider(t *testing.T) {
	ctx := context.Background()
	code := []byte{0x5b, 0x60, 0x5b, 0x00}
	eth := &fakeEth{
		head:    &types.Header{Number: big.NewInt(42), Difficulty: big.NewInt(0), GasLimit: 30_000_000, Time: 504},
		balance: map[common.Address]*big.Int{alice: big.NewInt(1000)},
		nonce:   map[common.Address]uint64{alice: 3},
		code:    map[common.Address][]byte{alice: code},
		storage: map[common.Hash]common.Hash{slot1: common.HexToHash("0xbeef")},
	}
	codes, err := evmcode.NewCache(8)
	require.NoError(t, err)
	p := newTestRPCProvider(t, eth, codes)

	head, err := p.LatestHeader(ctx)
	require.NoError(t, err)
	require.Equal(t, eth.head.Hash(), head.Hash())

	_, err = p.StateByBlockHash(ctx, common.HexToHash("0xdead"))
	require.ErrorIs(t, err, ErrDatabase)

	snap, err := p.StateByBlockHash(ctx, head.Hash())
	require.NoError(t, err)

	acc, err := snap.Account(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), acc.Balance.Uint64())
	require.Equal(t, uint64(3), acc.Nonce)
	require.Equal(t, crypto.Keccak256Hash(code), acc.CodeHash)
	require.True(t, acc.Code.IsJumpDest(0))
	require.False(t, acc.Code.IsJumpDest(2))
	require.Equal(t, 1, codes.Len())

	acc, err = snap.Account(ctx, bob)
	require.NoError(t, err)
	require.Nil(t, acc)

	v, err := snap.Storage(ctx, alice, slot1)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0xbeef"), v)

	h, err := snap.BlockHash(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, head.Hash(), h)

	_, err = snap.BlockHash(ctx, 41)
	require.ErrorIs(t, err, ErrDatabase)
}
