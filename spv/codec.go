package spv

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	HeaderSize = wire.MaxBlockHeaderPayload // 80 bytes

	versionSize  = 4
	timeSize     = 4
	bitsSize     = 4
	nonceSize    = 4
	locktimeSize = 4
)

// RawBlockHeader holds the six header fields exactly as a caller submits
// them: raw little-endian bytes, no display-order reversal.
type RawBlockHeader struct {
	Version    hexutil.Bytes `json:"version"`
	PrevBlock  hexutil.Bytes `json:"prevBlock"`
	MerkleRoot hexutil.Bytes `json:"merkleRoot"`
	Time       hexutil.Bytes `json:"time"`
	Bits       hexutil.Bytes `json:"bits"`
	Nonce      hexutil.Bytes `json:"nonce"`
}

// TxParams is a transaction split into pre-serialized segments. Inputs and
// Outputs each carry their own varint count. Witness data is never part of
// it, so the double hash of Serialize() is the txid.
type TxParams struct {
	Version  hexutil.Bytes `json:"version"`
	Inputs   hexutil.Bytes `json:"inputs"`
	Outputs  hexutil.Bytes `json:"outputs"`
	Locktime hexutil.Bytes `json:"locktime"`
}

func checkWidth(field string, b []byte, size int) error {
	if len(b) != size {
		return fmt.Errorf("%w: %s is %d bytes, want %d", ErrMalformedInput, field, len(b), size)
	}
	return nil
}

// Bytes concatenates the fields in header order after checking each width.
func (r *RawBlockHeader) Bytes() ([]byte, error) {
	fields := []struct {
		name string
		b    []byte
		size int
	}{
		{"version", r.Version, versionSize},
		{"prevBlock", r.PrevBlock, chainhash.HashSize},
		{"merkleRoot", r.MerkleRoot, chainhash.HashSize},
		{"time", r.Time, timeSize},
		{"bits", r.Bits, bitsSize},
		{"nonce", r.Nonce, nonceSize},
	}

	out := make([]byte, 0, HeaderSize)
	for _, f := range fields {
		if err := checkWidth(f.name, f.b, f.size); err != nil {
			return nil, err
		}
		out = append(out, f.b...)
	}
	return out, nil
}

// Header decodes the raw fields into a wire.BlockHeader.
func (r *RawBlockHeader) Header() (*wire.BlockHeader, error) {
	b, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	return DeserializeHeader(b)
}

// RawHeaderFromWire splits a header back into its raw fields.
func RawHeaderFromWire(h *wire.BlockHeader) (RawBlockHeader, error) {
	b, err := SerializeHeader(h)
	if err != nil {
		return RawBlockHeader{}, err
	}

	off := 0
	next := func(n int) hexutil.Bytes {
		field := make([]byte, n)
		copy(field, b[off:off+n])
		off += n
		return field
	}

	return RawBlockHeader{
		Version:    next(versionSize),
		PrevBlock:  next(chainhash.HashSize),
		MerkleRoot: next(chainhash.HashSize),
		Time:       next(timeSize),
		Bits:       next(bitsSize),
		Nonce:      next(nonceSize),
	}, nil
}

// SerializeHeader returns the canonical 80-byte encoding of h.
func SerializeHeader(h *wire.BlockHeader) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	if err := h.Serialize(&buf); err != nil {
		return nil, err
	}
	if buf.Len() != HeaderSize {
		return nil, fmt.Errorf("%w: header serialized to %d bytes", ErrMalformedInput, buf.Len())
	}
	return buf.Bytes(), nil
}

// DeserializeHeader decodes exactly 80 bytes into a wire.BlockHeader.
func DeserializeHeader(b []byte) (*wire.BlockHeader, error) {
	if len(b) != HeaderSize {
		return nil, fmt.Errorf("%w: header is %d bytes, want %d", ErrMalformedInput, len(b), HeaderSize)
	}

	h := &wire.BlockHeader{}
	if err := h.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return h, nil
}

// Serialize concatenates version, inputs, outputs and locktime as supplied.
func (p *TxParams) Serialize() ([]byte, error) {
	if err := checkWidth("tx version", p.Version, versionSize); err != nil {
		return nil, err
	}
	if err := checkWidth("tx locktime", p.Locktime, locktimeSize); err != nil {
		return nil, err
	}
	if len(p.Inputs) == 0 || len(p.Outputs) == 0 {
		return nil, fmt.Errorf("%w: empty inputs or outputs", ErrMalformedInput)
	}

	out := make([]byte, 0, len(p.Version)+len(p.Inputs)+len(p.Outputs)+len(p.Locktime))
	out = append(out, p.Version...)
	out = append(out, p.Inputs...)
	out = append(out, p.Outputs...)
	out = append(out, p.Locktime...)
	return out, nil
}

// TxID is the double hash of the serialized params.
func (p *TxParams) TxID() (chainhash.Hash, error) {
	b, err := p.Serialize()
	if err != nil {
		return chainhash.Hash{}, err
	}
	return DoubleHash(b), nil
}

// MsgTx decodes the serialized params. The segments must describe exactly
// one transaction with no trailing bytes.
func (p *TxParams) MsgTx() (*wire.MsgTx, error) {
	b, err := p.Serialize()
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(b)
	tx := &wire.MsgTx{}
	if err := tx.DeserializeNoWitness(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after transaction", ErrMalformedInput, r.Len())
	}
	return tx, nil
}

// TxParamsFromMsgTx splits the stripped encoding of tx into its segments.
func TxParamsFromMsgTx(tx *wire.MsgTx) (TxParams, error) {
	var buf bytes.Buffer
	buf.Grow(tx.SerializeSizeStripped())
	if err := tx.SerializeNoWitness(&buf); err != nil {
		return TxParams{}, err
	}
	b := buf.Bytes()

	outputsLen := wire.VarIntSerializeSize(uint64(len(tx.TxOut)))
	for _, out := range tx.TxOut {
		outputsLen += out.SerializeSize()
	}
	inputsEnd := len(b) - locktimeSize - outputsLen
	if inputsEnd <= versionSize {
		return TxParams{}, fmt.Errorf("%w: transaction too short", ErrMalformedInput)
	}

	clone := func(s []byte) hexutil.Bytes {
		return append(hexutil.Bytes{}, s...)
	}
	return TxParams{
		Version:  clone(b[:versionSize]),
		Inputs:   clone(b[versionSize:inputsEnd]),
		Outputs:  clone(b[inputsEnd : len(b)-locktimeSize]),
		Locktime: clone(b[len(b)-locktimeSize:]),
	}, nil
}

// ParseProofPath splits a concatenation of 32-byte sibling hashes.
func ParseProofPath(b []byte) ([]chainhash.Hash, error) {
	if len(b)%chainhash.HashSize != 0 {
		return nil, fmt.Errorf("%w: proof is %d bytes, not a multiple of %d", ErrMalformedInput, len(b), chainhash.HashSize)
	}

	path := make([]chainhash.Hash, len(b)/chainhash.HashSize)
	for i := range path {
		copy(path[i][:], b[i*chainhash.HashSize:])
	}
	return path, nil
}

// EncodeProofPath is the inverse of ParseProofPath.
func EncodeProofPath(path []chainhash.Hash) []byte {
	out := make([]byte, 0, len(path)*chainhash.HashSize)
	for i := range path {
		out = append(out, path[i][:]...)
	}
	return out
}
