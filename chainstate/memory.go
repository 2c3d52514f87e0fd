package chainstate

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Memory is an in-memory snapshot. Reads that miss go to the fallback
// snapshot when there is one, and report an empty state otherwise.
type Memory struct {
	mu          sync.RWMutex
	accounts    map[common.Address]*Account
	storage     map[common.Address]map[common.Hash]common.Hash
	blockHashes map[uint64]common.Hash
	fallback    Snapshot
}

func NewMemory(fallback Snapshot) *Memory {
	return &Memory{
		accounts:    make(map[common.Address]*Account),
		storage:     make(map[common.Address]map[common.Hash]common.Hash),
		blockHashes: make(map[uint64]common.Hash),
		fallback:    fallback,
	}
}

// SetAccount records acc, which may be nil for a known missing account.
func (m *Memory) SetAccount(addr common.Address, acc *Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[addr] = acc
}

func (m *Memory) SetStorage(addr common.Address, slot, value common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slots, ok := m.storage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		m.storage[addr] = slots
	}
	slots[slot] = value
}

func (m *Memory) SetBlockHash(number uint64, hash common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockHashes[number] = hash
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

func (m *Memory) Account(ctx context.Context, addr common.Address) (*Account, error) {
	m.mu.RLock()
	acc, ok := m.accounts[addr]
	m.mu.RUnlock()
	if ok {
		return acc, nil
	}
	if m.fallback == nil {
		return nil, nil
	}
	return m.fallback.Account(ctx, addr)
}

func (m *Memory) Storage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	m.mu.RLock()
	value, ok := m.storage[addr][slot]
	m.mu.RUnlock()
	if ok || m.fallback == nil {
		return value, nil
	}
	return m.fallback.Storage(ctx, addr, slot)
}

func (m *Memory) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	m.mu.RLock()
	hash, ok := m.blockHashes[number]
	m.mu.RUnlock()
	if ok || m.fallback == nil {
		return hash, nil
	}
	return m.fallback.BlockHash(ctx, number)
}
