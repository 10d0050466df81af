package blockhash

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	logger "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/TEENet-io/bribe-go/spv"
)

var bucketBlockHashes = []byte("blockhashes")

// BoltSource persists lookups of the wrapped source in a bbolt file so a
// restarted server does not ask the node again.
type BoltSource struct {
	source spv.BlockHashSource
	db     *bolt.DB
}

func NewBoltSource(path string, source spv.BlockHashSource) (*BoltSource, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlockHashes)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", string(bucketBlockHashes), err)
	}

	return &BoltSource{source: source, db: db}, nil
}

func (s *BoltSource) Close() error {
	return s.db.Close()
}

func heightKey(height uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], height)
	return k[:]
}

func (s *BoltSource) get(height uint64) (chainhash.Hash, bool, error) {
	var (
		h     chainhash.Hash
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlockHashes).Get(heightKey(height))
		if v == nil {
			return nil
		}
		if len(v) != chainhash.HashSize {
			return fmt.Errorf("%w: stored value for %d is %d bytes", ErrMalformedHash, height, len(v))
		}
		copy(h[:], v)
		found = true
		return nil
	})
	return h, found, err
}

func (s *BoltSource) put(height uint64, h chainhash.Hash) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlockHashes).Put(heightKey(height), h[:])
	})
}

func (s *BoltSource) BlockHash(ctx context.Context, height uint64) (chainhash.Hash, error) {
	h, found, err := s.get(height)
	if err != nil {
		return chainhash.Hash{}, err
	}
	if found {
		return h, nil
	}

	h, err = s.source.BlockHash(ctx, height)
	if err != nil {
		return chainhash.Hash{}, err
	}
	if err := s.put(height, h); err != nil {
		logger.WithField("height", height).Warnf("failed to persist block hash: %v", err)
	}
	return h, nil
}
