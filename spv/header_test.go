package spv

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateHeader(t *testing.T) {
	ctx := context.Background()
	v := NewHeaderValidator(fixtureSource(), &chaincfg.RegressionNetParams, true)

	raw := fixtureHeader()
	header, hash, err := v.ValidateHeader(ctx, &raw, fixtureHeight)
	require.NoError(t, err)
	assert.Equal(t, fixtureBlockHash, hash.String())
	assert.Equal(t, hash, header.BlockHash())
}

func TestValidateHeaderTamperedNonce(t *testing.T) {
	v := NewHeaderValidator(fixtureSource(), &chaincfg.RegressionNetParams, false)

	raw := fixtureHeader()
	raw.Nonce[3] = 0xff
	_, _, err := v.ValidateHeader(context.Background(), &raw, fixtureHeight)
	assert.ErrorIs(t, err, ErrHeightMismatch)
}

func TestValidateHeaderWrongHeight(t *testing.T) {
	source := fixtureSource()
	source[fixtureHeight+1] = DoubleHash([]byte("another block"))
	v := NewHeaderValidator(source, &chaincfg.RegressionNetParams, false)

	raw := fixtureHeader()
	_, _, err := v.ValidateHeader(context.Background(), &raw, fixtureHeight+1)
	assert.ErrorIs(t, err, ErrHeightMismatch)
}

func TestValidateHeaderLookupUnavailable(t *testing.T) {
	v := NewHeaderValidator(mapSource{}, &chaincfg.RegressionNetParams, false)

	raw := fixtureHeader()
	_, _, err := v.ValidateHeader(context.Background(), &raw, fixtureHeight)
	assert.ErrorIs(t, err, ErrLookupUnavailable)
	assert.NotErrorIs(t, err, ErrHeightMismatch)
}

func TestValidateHeaderMalformed(t *testing.T) {
	v := NewHeaderValidator(fixtureSource(), &chaincfg.RegressionNetParams, false)

	raw := fixtureHeader()
	raw.Bits = raw.Bits[:2]
	_, _, err := v.ValidateHeader(context.Background(), &raw, fixtureHeight)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestValidateHeaderPowLimit(t *testing.T) {
	// Regtest difficulty is far above the mainnet limit.
	v := NewHeaderValidator(fixtureSource(), &chaincfg.MainNetParams, true)

	raw := fixtureHeader()
	_, _, err := v.ValidateHeader(context.Background(), &raw, fixtureHeight)
	assert.ErrorIs(t, err, ErrInsufficientWork)

	// The same header passes when proof of work is not re-checked.
	v = NewHeaderValidator(fixtureSource(), &chaincfg.MainNetParams, false)
	_, _, err = v.ValidateHeader(context.Background(), &raw, fixtureHeight)
	assert.NoError(t, err)
}

func TestCheckProofOfWork(t *testing.T) {
	hash := mustDisplayHash(fixtureBlockHash)

	assert.NoError(t, CheckProofOfWork(hash, 0x207fffff, chaincfg.RegressionNetParams.PowLimit))
	assert.NoError(t, CheckProofOfWork(hash, 0x207fffff, nil))

	// Mainnet genesis difficulty: the regtest hash is nowhere near it.
	err := CheckProofOfWork(hash, 0x1d00ffff, nil)
	assert.ErrorIs(t, err, ErrInsufficientWork)

	// Zero and negative targets.
	assert.ErrorIs(t, CheckProofOfWork(hash, 0, nil), ErrInsufficientWork)
	assert.ErrorIs(t, CheckProofOfWork(hash, 0x04923456, nil), ErrInsufficientWork)

	// Mainnet genesis block satisfies its own target.
	genesis := *chaincfg.MainNetParams.GenesisHash
	assert.NoError(t, CheckProofOfWork(genesis, 0x1d00ffff, chaincfg.MainNetParams.PowLimit))

	// All-zero hash meets any positive target.
	assert.NoError(t, CheckProofOfWork(chainhash.Hash{}, 0x03000001, nil))
}
