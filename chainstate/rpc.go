package chainstate

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/errgroup"

	"github.com/henridf/pbb/evmcode"
)

// RPCProvider reads the chain and its state from an execution client's
// JSON-RPC endpoint.
type RPCProvider struct {
	client *ethclient.Client
	codes  *evmcode.Cache
}

func DialRPC(ctx context.Context, url string, codes *evmcode.Cache) (*RPCProvider, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, dbError("dialing %s: %v", url, err)
	}
	return NewRPCProvider(c, codes), nil
}

func NewRPCProvider(c *rpc.Client, codes *evmcode.Cache) *RPCProvider {
	return &RPCProvider{client: ethclient.NewClient(c), codes: codes}
}

// RPC returns the underlying connection, for calls outside the eth namespace.
func (p *RPCProvider) RPC() *rpc.Client { return p.client.Client() }

func (p *RPCProvider) Close() { p.client.Close() }

func (p *RPCProvider) LatestHeader(ctx context.Context) (*types.Header, error) {
	h, err := p.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, dbError("latest header: %v", err)
	}
	return h, nil
}

func (p *RPCProvider) StateByBlockHash(ctx context.Context, hash common.Hash) (Snapshot, error) {
	if _, err := p.client.HeaderByHash(ctx, hash); err != nil {
		return nil, dbError("header %s: %v", hash.Hex(), err)
	}
	return &rpcSnapshot{client: p.client, hash: hash, codes: p.codes}, nil
}

type rpcSnapshot struct {
	client *ethclient.Client
	hash   common.Hash
	codes  *evmcode.Cache
}

func (s *rpcSnapshot) Account(ctx context.Context, addr common.Address) (*Account, error) {
	var (
		balance *big.Int
		nonce   uint64
		code    []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		balance, err = s.client.BalanceAtHash(gctx, addr, s.hash)
		return err
	})
	g.Go(func() (err error) {
		nonce, err = s.client.NonceAtHash(gctx, addr, s.hash)
		return err
	})
	g.Go(func() (err error) {
		code, err = s.client.CodeAtHash(gctx, addr, s.hash)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dbError("account %s at %s: %v", addr.Hex(), s.hash.Hex(), err)
	}
	if balance.Sign() == 0 && nonce == 0 && len(code) == 0 {
		return nil, nil
	}

	acc := &Account{Nonce: nonce, CodeHash: types.EmptyCodeHash}
	if overflow := acc.Balance.SetFromBig(balance); overflow {
		return nil, dbError("account %s: balance %s overflows 256 bits", addr.Hex(), balance)
	}
	if len(code) > 0 {
		acc.CodeHash = crypto.Keccak256Hash(code)
		if s.codes != nil {
			acc.Code = s.codes.AnalyzeWithHash(acc.CodeHash, code)
		} else {
			acc.Code = evmcode.Analyze(evmcode.Raw(code))
		}
	}
	return acc, nil
}

func (s *rpcSnapshot) Storage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	v, err := s.client.StorageAtHash(ctx, addr, slot, s.hash)
	if err != nil {
		return common.Hash{}, dbError("storage %s/%s at %s: %v", addr.Hex(), slot.Hex(), s.hash.Hex(), err)
	}
	return common.BytesToHash(v), nil
}

func (s *rpcSnapshot) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	h, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return common.Hash{}, dbError("header %d: %v", number, err)
	}
	return h.Hash(), nil
}
