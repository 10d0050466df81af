// Package prover assembles claims from full blocks fetched from a node.
package prover

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/bribe-go/spv"
)

var (
	ErrTxNotFound          = errors.New("transaction not found in block")
	ErrEmptyBlock          = errors.New("block has no transactions")
	ErrMerkleRootMismatch  = errors.New("transactions do not hash to the header's merkle root")
	ErrNoWitnessCommitment = errors.New("coinbase has no witness commitment")
)

func txids(block *wire.MsgBlock) []chainhash.Hash {
	ids := make([]chainhash.Hash, len(block.Transactions))
	for i, tx := range block.Transactions {
		ids[i] = tx.TxHash()
	}
	return ids
}

// wtxids lists witness hashes with the coinbase entry zeroed.
func wtxids(block *wire.MsgBlock) []chainhash.Hash {
	ids := make([]chainhash.Hash, len(block.Transactions))
	for i, tx := range block.Transactions {
		if i == 0 {
			continue
		}
		ids[i] = tx.WitnessHash()
	}
	return ids
}

// witnessReserved returns the coinbase witness reserved value, nil when the
// coinbase carries none.
func witnessReserved(coinbase *wire.MsgTx) []byte {
	if len(coinbase.TxIn) == 0 || len(coinbase.TxIn[0].Witness) != 1 {
		return nil
	}
	v := coinbase.TxIn[0].Witness[0]
	if len(v) != chainhash.HashSize {
		return nil
	}
	return append([]byte{}, v...)
}

// BuildClaim proves that the transaction with the given wtxid is part of
// block at height. Segwit blocks get a witness proof through the coinbase
// commitment. Blocks without a commitment get a direct proof, where the
// wtxid equals the txid.
func BuildClaim(block *wire.MsgBlock, height uint64, wtxid common.Hash) (*spv.Claim, error) {
	if wtxid == (common.Hash{}) {
		return nil, spv.ErrZeroWTXID
	}
	if len(block.Transactions) == 0 {
		return nil, ErrEmptyBlock
	}

	newLogger := logger.WithFields(logger.Fields{
		"height": height,
		"wtxid":  wtxid.String(),
	})

	header, err := spv.RawHeaderFromWire(&block.Header)
	if err != nil {
		return nil, err
	}

	ids := txids(block)
	coinbaseMsg := block.Transactions[0]
	_, hasCommitment := blockchain.ExtractWitnessCommitment(btcutil.NewTx(coinbaseMsg))

	if !hasCommitment {
		idx := indexOf(ids, chainhash.Hash(wtxid))
		if idx <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrTxNotFound, wtxid)
		}
		path, root, err := spv.BuildMerkleProof(ids, idx)
		if err != nil {
			return nil, err
		}
		if !root.IsEqual(&block.Header.MerkleRoot) {
			return nil, ErrMerkleRootMismatch
		}
		newLogger.Debug("built direct claim")
		return &spv.Claim{
			Header: header,
			Tx: spv.BribedTx{
				WTXID: wtxid,
				Proof: spv.EncodeProofPath(path),
				Index: uint64(idx),
			},
			Height: height,
		}, nil
	}

	wids := wtxids(block)
	idx := indexOf(wids, chainhash.Hash(wtxid))
	if idx <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, wtxid)
	}

	coinbasePath, root, err := spv.BuildMerkleProof(ids, 0)
	if err != nil {
		return nil, err
	}
	if !root.IsEqual(&block.Header.MerkleRoot) {
		return nil, ErrMerkleRootMismatch
	}
	witnessPath, _, err := spv.BuildMerkleProof(wids, idx)
	if err != nil {
		return nil, err
	}

	params, err := spv.TxParamsFromMsgTx(coinbaseMsg)
	if err != nil {
		return nil, err
	}

	newLogger.WithField("index", idx).Debug("built witness claim")
	return &spv.Claim{
		Coinbase: &spv.CoinbaseTx{
			Params:          params,
			Proof:           spv.EncodeProofPath(coinbasePath),
			Index:           0,
			WitnessReserved: hexutil.Bytes(witnessReserved(coinbaseMsg)),
		},
		Header: header,
		Tx: spv.BribedTx{
			WTXID: wtxid,
			Proof: spv.EncodeProofPath(witnessPath),
			Index: uint64(idx),
		},
		Height: height,
	}, nil
}

func indexOf(hashes []chainhash.Hash, h chainhash.Hash) int {
	for i := range hashes {
		if hashes[i].IsEqual(&h) {
			return i
		}
	}
	return -1
}
