package chainstate

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// DefaultLoadConcurrency bounds the concurrent snapshot reads of Load.
const DefaultLoadConcurrency = 16

// Load materializes the given accounts and block hashes of snap into memory,
// reading up to limit entries concurrently. Reads outside the loaded set fall
// through to snap.
func Load(ctx context.Context, snap Snapshot, addrs []common.Address, blockNumbers []uint64, limit int) (*Memory, error) {
	if limit <= 0 {
		limit = DefaultLoadConcurrency
	}
	mem := NewMemory(snap)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	seen := make(map[common.Address]struct{}, len(addrs))
	for _, addr := range addrs {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		g.Go(func() error {
			acc, err := snap.Account(gctx, addr)
			if err != nil {
				return fmt.Errorf("loading account %s: %w", addr.Hex(), err)
			}
			mem.SetAccount(addr, acc)
			return nil
		})
	}
	for _, n := range blockNumbers {
		g.Go(func() error {
			hash, err := snap.BlockHash(gctx, n)
			if err != nil {
				return fmt.Errorf("loading hash of block %d: %w", n, err)
			}
			mem.SetBlockHash(n, hash)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mem, nil
}
