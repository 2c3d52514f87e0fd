// Package evmcode turns contract bytecode into the analyzed form an
// interpreter consumes: zero padded code plus a bitmap of valid jump
// destinations.
package evmcode

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
)

// Padding is the number of zero bytes appended to analyzed code so that a
// PUSH32 starting at the last byte can read its immediate without bounds
// checks.
const Padding = 33

// Bytecode is either Raw or *Analyzed.
type Bytecode interface {
	// Original returns the code as deployed, without padding.
	Original() []byte
}

// Raw is bytecode that has not been analyzed yet.
type Raw []byte

func (r Raw) Original() []byte { return r }

// Analyzed is immutable once built and may be shared between goroutines.
type Analyzed struct {
	code        []byte
	originalLen int
	jumpTable   *bitset.BitSet
	hash        common.Hash
}

// Analyze returns the analyzed form of code. Already analyzed code is
// returned unchanged.
func Analyze(code Bytecode) *Analyzed {
	switch c := code.(type) {
	case *Analyzed:
		return c
	case Raw:
		return analyze(c, crypto.Keccak256Hash(c))
	default:
		original := c.Original()
		return analyze(original, crypto.Keccak256Hash(original))
	}
}

func analyze(raw []byte, hash common.Hash) *Analyzed {
	n := len(raw)
	padded := make([]byte, n+Padding)
	copy(padded, raw)

	jumps := bitset.New(uint(n))
	for pc := 0; pc < n; {
		op := vm.OpCode(padded[pc])
		switch {
		case op == vm.JUMPDEST:
			jumps.Set(uint(pc))
			pc++
		case op >= vm.PUSH1 && op <= vm.PUSH32:
			pc += 1 + int(op-vm.PUSH1) + 1
		default:
			pc++
		}
	}
	return &Analyzed{code: padded, originalLen: n, jumpTable: jumps, hash: hash}
}

func (a *Analyzed) Original() []byte { return a.code[:a.originalLen] }

// Bytecode returns the padded code. Callers must not modify it.
func (a *Analyzed) Bytecode() []byte { return a.code }

func (a *Analyzed) OriginalLen() int { return a.originalLen }

func (a *Analyzed) Hash() common.Hash { return a.hash }

// JumpTable returns the jump destination bitmap. Callers must not modify it.
func (a *Analyzed) JumpTable() *bitset.BitSet { return a.jumpTable }

// IsJumpDest reports whether pc holds a JUMPDEST that is not push data.
func (a *Analyzed) IsJumpDest(pc uint64) bool {
	if pc >= uint64(a.originalLen) {
		return false
	}
	return a.jumpTable.Test(uint(pc))
}
