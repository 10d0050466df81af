package spv

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// DoubleHash is SHA-256 applied twice. The result is in internal byte
// order; only chainhash.Hash.String() reverses it for display.
func DoubleHash(b []byte) chainhash.Hash {
	return chainhash.DoubleHashH(b)
}

// HeaderHash returns the block hash of the raw header fields.
func HeaderHash(r *RawBlockHeader) (chainhash.Hash, error) {
	b, err := r.Bytes()
	if err != nil {
		return chainhash.Hash{}, err
	}
	return DoubleHash(b), nil
}
