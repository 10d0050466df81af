// Package blockhash provides the canonical height to block hash lookups used
// by the header validator.
package blockhash

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/TEENet-io/bribe-go/spv"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	ErrUnknownHeight    = errors.New("no block hash known for height")
	ErrUnexpectedStatus = errors.New("unexpected http status")
	ErrMalformedHash    = errors.New("malformed block hash")
)

var (
	_ spv.BlockHashSource = (*StaticSource)(nil)
	_ spv.BlockHashSource = (*RPCSource)(nil)
	_ spv.BlockHashSource = (*EsploraSource)(nil)
	_ spv.BlockHashSource = (*CachedSource)(nil)
	_ spv.BlockHashSource = (*BoltSource)(nil)
)

// StaticSource serves a fixed set of heights. Used on regtest and in tests.
type StaticSource struct {
	mu     sync.RWMutex
	hashes map[uint64]chainhash.Hash
}

func NewStaticSource() *StaticSource {
	return &StaticSource{hashes: make(map[uint64]chainhash.Hash)}
}

func (s *StaticSource) Set(height uint64, hash chainhash.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[height] = hash
}

func (s *StaticSource) BlockHash(ctx context.Context, height uint64) (chainhash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return chainhash.Hash{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hashes[height]
	if !ok {
		return chainhash.Hash{}, fmt.Errorf("%w: %d", ErrUnknownHeight, height)
	}
	return h, nil
}

// HashFetcher is the part of the node rpc client RPCSource needs.
type HashFetcher interface {
	GetBlockHash(height int64) (*chainhash.Hash, error)
}

// RPCSource asks a bitcoin node for the hash of its best chain at a height.
type RPCSource struct {
	client HashFetcher
}

func NewRPCSource(client HashFetcher) *RPCSource {
	return &RPCSource{client: client}
}

func (s *RPCSource) BlockHash(ctx context.Context, height uint64) (chainhash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return chainhash.Hash{}, err
	}

	h, err := s.client.GetBlockHash(int64(height))
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("getblockhash %d: %w", height, err)
	}
	return *h, nil
}
