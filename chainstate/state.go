// Package chainstate provides the chain head and read-only state views that
// pending transactions execute against.
package chainstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/henridf/pbb/evmcode"
)

// ErrDatabase marks failures of the underlying chain storage.
var ErrDatabase = errors.New("database error")

func dbError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDatabase, fmt.Sprintf(format, args...))
}

type Account struct {
	Balance  uint256.Int
	Nonce    uint64
	CodeHash common.Hash
	// Nil for accounts without code.
	Code *evmcode.Analyzed
}

func (a *Account) Copy() *Account {
	cpy := *a
	return &cpy
}

// Snapshot is a read-only view of the state at one block. Account returns
// nil for accounts that do not exist.
type Snapshot interface {
	Account(ctx context.Context, addr common.Address) (*Account, error)
	Storage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error)
	BlockHash(ctx context.Context, number uint64) (common.Hash, error)
}

// Provider gives access to the chain head and historical state.
type Provider interface {
	LatestHeader(ctx context.Context) (*types.Header, error)
	StateByBlockHash(ctx context.Context, hash common.Hash) (Snapshot, error)
}

// AccountChange is the post-transaction state of one account. A nil Account
// means the account was destroyed along with its storage.
type AccountChange struct {
	Account *Account
	Storage map[common.Hash]common.Hash
}

// StateChanges are the writes of one executed transaction.
type StateChanges map[common.Address]*AccountChange
