package spv

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	raw := fixtureHeader()

	b, err := raw.Bytes()
	require.NoError(t, err)
	assert.Len(t, b, HeaderSize)

	header, err := raw.Header()
	require.NoError(t, err)
	assert.Equal(t, int32(0x20000000), header.Version)
	assert.Equal(t, uint32(0x207fffff), header.Bits)
	assert.Equal(t, uint32(0), header.Nonce)

	serialized, err := SerializeHeader(header)
	require.NoError(t, err)
	assert.Equal(t, b, serialized)

	back, err := RawHeaderFromWire(header)
	require.NoError(t, err)
	assert.Equal(t, raw, back)
}

func TestHeaderFieldWidths(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *RawBlockHeader)
	}{
		{"short version", func(r *RawBlockHeader) { r.Version = r.Version[:3] }},
		{"long prevBlock", func(r *RawBlockHeader) { r.PrevBlock = append(r.PrevBlock, 0) }},
		{"empty merkleRoot", func(r *RawBlockHeader) { r.MerkleRoot = nil }},
		{"short time", func(r *RawBlockHeader) { r.Time = r.Time[:1] }},
		{"long bits", func(r *RawBlockHeader) { r.Bits = append(r.Bits, 0) }},
		{"empty nonce", func(r *RawBlockHeader) { r.Nonce = hexutil.Bytes{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := fixtureHeader()
			tt.mutate(&raw)
			_, err := raw.Header()
			assert.ErrorIs(t, err, ErrMalformedInput)
		})
	}
}

func TestDeserializeHeaderLength(t *testing.T) {
	_, err := DeserializeHeader(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrMalformedInput)
	_, err = DeserializeHeader(make([]byte, HeaderSize+1))
	assert.ErrorIs(t, err, ErrMalformedInput)

	h, err := DeserializeHeader(make([]byte, HeaderSize))
	assert.NoError(t, err)
	assert.NotNil(t, h)
}

func TestTxParamsSerialize(t *testing.T) {
	params := fixtureCoinbase().Params

	b, err := params.Serialize()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, params.Version))
	assert.True(t, bytes.HasSuffix(b, params.Locktime))
	assert.Len(t, b, len(params.Version)+len(params.Inputs)+len(params.Outputs)+len(params.Locktime))

	txid, err := params.TxID()
	require.NoError(t, err)
	assert.Equal(t, mustInternalHash(fixtureCoinbaseTxID), txid)

	msgTx, err := params.MsgTx()
	require.NoError(t, err)
	assert.Equal(t, txid, msgTx.TxHash())
	assert.Len(t, msgTx.TxIn, 1)
	assert.Len(t, msgTx.TxOut, 3)

	split, err := TxParamsFromMsgTx(msgTx)
	require.NoError(t, err)
	assert.Equal(t, params, split)
}

func TestTxParamsMalformed(t *testing.T) {
	params := fixtureCoinbase().Params
	params.Locktime = params.Locktime[:3]
	_, err := params.Serialize()
	assert.ErrorIs(t, err, ErrMalformedInput)

	params = fixtureCoinbase().Params
	params.Version = append(params.Version, 0)
	_, err = params.Serialize()
	assert.ErrorIs(t, err, ErrMalformedInput)

	params = fixtureCoinbase().Params
	params.Outputs = nil
	_, err = params.Serialize()
	assert.ErrorIs(t, err, ErrMalformedInput)

	// Truncated output blob still serializes but no longer decodes.
	params = fixtureCoinbase().Params
	params.Outputs = params.Outputs[:len(params.Outputs)-4]
	_, err = params.MsgTx()
	assert.ErrorIs(t, err, ErrMalformedInput)

	// Extra bytes after the locktime.
	params = fixtureCoinbase().Params
	params.Outputs = append(append(hexutil.Bytes{}, params.Outputs...), 0, 0, 0, 0)
	_, err = params.MsgTx()
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestParseProofPath(t *testing.T) {
	path, err := ParseProofPath(nil)
	assert.NoError(t, err)
	assert.Empty(t, path)

	b := make([]byte, 64)
	b[0], b[32] = 1, 2
	path, err = ParseProofPath(b)
	require.NoError(t, err)
	require.Len(t, path, 2)
	assert.Equal(t, byte(1), path[0][0])
	assert.Equal(t, byte(2), path[1][0])
	assert.Equal(t, b, EncodeProofPath(path))

	_, err = ParseProofPath(make([]byte, 33))
	assert.ErrorIs(t, err, ErrMalformedInput)
}
