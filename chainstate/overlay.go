package chainstate

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Overlay layers committed transaction writes over a read-only snapshot.
// It is not safe for concurrent use.
type Overlay struct {
	base      Snapshot
	accounts  map[common.Address]*Account
	storage   map[common.Address]map[common.Hash]common.Hash
	destroyed map[common.Address]bool
}

func NewOverlay(base Snapshot) *Overlay {
	return &Overlay{
		base:      base,
		accounts:  make(map[common.Address]*Account),
		storage:   make(map[common.Address]map[common.Hash]common.Hash),
		destroyed: make(map[common.Address]bool),
	}
}

// Commit applies changes so that later reads observe them.
func (o *Overlay) Commit(changes StateChanges) {
	for addr, change := range changes {
		if change == nil {
			continue
		}
		if change.Account == nil {
			o.destroyed[addr] = true
			delete(o.accounts, addr)
			delete(o.storage, addr)
			continue
		}
		o.accounts[addr] = change.Account.Copy()
		if len(change.Storage) == 0 {
			continue
		}
		slots, ok := o.storage[addr]
		if !ok {
			slots = make(map[common.Hash]common.Hash, len(change.Storage))
			o.storage[addr] = slots
		}
		for k, v := range change.Storage {
			slots[k] = v
		}
	}
}

func (o *Overlay) Account(ctx context.Context, addr common.Address) (*Account, error) {
	if acc, ok := o.accounts[addr]; ok {
		return acc.Copy(), nil
	}
	if o.destroyed[addr] {
		return nil, nil
	}
	return o.base.Account(ctx, addr)
}

func (o *Overlay) Storage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	if value, ok := o.storage[addr][slot]; ok {
		return value, nil
	}
	if o.destroyed[addr] {
		return common.Hash{}, nil
	}
	return o.base.Storage(ctx, addr, slot)
}

func (o *Overlay) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	return o.base.BlockHash(ctx, number)
}
