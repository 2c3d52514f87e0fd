package evmcode

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 4096

// Cache shares analyzed code between accounts and batches by code hash.
type Cache struct {
	codes *lru.Cache[common.Hash, *Analyzed]
}

func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	codes, err := lru.New[common.Hash, *Analyzed](size)
	if err != nil {
		return nil, err
	}
	return &Cache{codes: codes}, nil
}

// Analyze returns the analyzed form of raw, reusing a cached analysis of
// identical code.
func (c *Cache) Analyze(raw []byte) *Analyzed {
	return c.AnalyzeWithHash(crypto.Keccak256Hash(raw), raw)
}

// AnalyzeWithHash is Analyze for callers that already know the code hash.
func (c *Cache) AnalyzeWithHash(hash common.Hash, raw []byte) *Analyzed {
	if a, ok := c.codes.Get(hash); ok {
		return a
	}
	a := analyze(raw, hash)
	c.codes.Add(hash, a)
	return a
}

func (c *Cache) Len() int { return c.codes.Len() }
