package spv

import "errors"

var (
	// input validation
	ErrMalformedInput      = errors.New("malformed input")
	ErrProofLengthMismatch = errors.New("proof length mismatch")
	ErrZeroWTXID           = errors.New("wTXID can't be zero")

	// header validation
	ErrLookupUnavailable = errors.New("block hash lookup unavailable")
	ErrHeightMismatch    = errors.New("block hash does not match reference for height")
	ErrInsufficientWork  = errors.New("block hash does not satisfy target")

	// inclusion
	ErrTxNotInBlock        = errors.New("transaction not included under merkle root")
	ErrCoinbaseNotInBlock  = errors.New("coinbase transaction not in block")
	ErrWitnessRootMismatch = errors.New("witness root does not match coinbase commitment")
)
