package spv

import (
	"context"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	logger "github.com/sirupsen/logrus"
)

// BlockHashSource returns the canonical block hash at a height, in internal
// byte order. Implementations must not retry.
type BlockHashSource interface {
	BlockHash(ctx context.Context, height uint64) (chainhash.Hash, error)
}

// HeaderValidator anchors a header to the block hash source and optionally
// re-checks its proof of work.
type HeaderValidator struct {
	source   BlockHashSource
	params   *chaincfg.Params
	checkPoW bool
}

func NewHeaderValidator(source BlockHashSource, params *chaincfg.Params, checkPoW bool) *HeaderValidator {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	return &HeaderValidator{source: source, params: params, checkPoW: checkPoW}
}

// ValidateHeader checks that the raw header hashes to the reference hash of
// height. It returns the decoded header and its hash.
func (v *HeaderValidator) ValidateHeader(ctx context.Context, raw *RawBlockHeader, height uint64) (*wire.BlockHeader, chainhash.Hash, error) {
	header, err := raw.Header()
	if err != nil {
		return nil, chainhash.Hash{}, err
	}

	serialized, err := SerializeHeader(header)
	if err != nil {
		return nil, chainhash.Hash{}, err
	}
	computed := DoubleHash(serialized)

	reference, err := v.source.BlockHash(ctx, height)
	if err != nil {
		logger.WithField("height", height).Warnf("block hash lookup failed: %v", err)
		return nil, chainhash.Hash{}, fmt.Errorf("%w: height %d: %v", ErrLookupUnavailable, height, err)
	}

	if !computed.IsEqual(&reference) {
		logger.WithFields(logger.Fields{
			"height":    height,
			"computed":  computed.String(),
			"reference": reference.String(),
		}).Debug("header hash mismatch")
		return nil, chainhash.Hash{}, fmt.Errorf("%w: height %d: got %s, want %s", ErrHeightMismatch, height, computed, reference)
	}

	if v.checkPoW {
		if err := CheckProofOfWork(computed, header.Bits, v.params.PowLimit); err != nil {
			return nil, chainhash.Hash{}, err
		}
	}

	return header, computed, nil
}

// CheckProofOfWork decodes the compact bits into a target and requires
// 0 < target <= powLimit and hash <= target. A nil powLimit skips the
// limit check.
func CheckProofOfWork(hash chainhash.Hash, bits uint32, powLimit *big.Int) error {
	target := blockchain.CompactToBig(bits)
	if target.Sign() <= 0 {
		return fmt.Errorf("%w: target from bits %08x is not positive", ErrInsufficientWork, bits)
	}
	if powLimit != nil && target.Cmp(powLimit) > 0 {
		return fmt.Errorf("%w: target from bits %08x is above the network limit", ErrInsufficientWork, bits)
	}
	if blockchain.HashToBig(&hash).Cmp(target) > 0 {
		return fmt.Errorf("%w: hash %s above target %064x", ErrInsufficientWork, hash, target)
	}
	return nil
}
