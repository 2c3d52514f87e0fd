// Package txsource fetches the candidate transactions of the next block from
// an execution client.
package txsource

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// DefaultMethod returns the pool transactions that the builder in
// charge of the next block left out.
const DefaultMethod = "txpoolExt_getCensoredTransactions"

// Caller is the subset of *rpc.Client used here.
type Caller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Fetch calls method, or DefaultMethod if empty, and returns the
// transactions in the order the client listed them.
func Fetch(ctx context.Context, c Caller, method string) ([]*types.Transaction, error) {
	if method == "" {
		method = DefaultMethod
	}
	var txs []*types.Transaction
	if err := c.CallContext(ctx, &txs, method); err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	for i, tx := range txs {
		if tx == nil {
			return nil, fmt.Errorf("%s returned null transaction at %d", method, i)
		}
	}
	return txs, nil
}

// Source fetches candidate transactions with a fixed method.
type Source struct {
	c      Caller
	method string
}

var _ Caller = (*rpc.Client)(nil)

func NewSource(c Caller, method string) *Source {
	return &Source{c: c, method: method}
}

func (s *Source) Fetch(ctx context.Context) ([]*types.Transaction, error) {
	return Fetch(ctx, s.c, s.method)
}
