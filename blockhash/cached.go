package blockhash

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/common/lru"

	"github.com/TEENet-io/bribe-go/spv"
)

const DefaultCacheSize = 1024

// CachedSource keeps recent successful lookups in memory. Failures are
// never cached.
type CachedSource struct {
	source spv.BlockHashSource
	cache  *lru.Cache[uint64, chainhash.Hash]
}

func NewCachedSource(source spv.BlockHashSource, size int) *CachedSource {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &CachedSource{
		source: source,
		cache:  lru.NewCache[uint64, chainhash.Hash](size),
	}
}

func (s *CachedSource) BlockHash(ctx context.Context, height uint64) (chainhash.Hash, error) {
	if h, ok := s.cache.Get(height); ok {
		return h, nil
	}

	h, err := s.source.BlockHash(ctx, height)
	if err != nil {
		return chainhash.Hash{}, err
	}
	s.cache.Add(height, h)
	return h, nil
}
