package spv

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// minerIndexSize is the payload of the OP_RETURN output a miner adds to its
// coinbase to name the payout slot it registered.
const minerIndexSize = 8

// BribedTx is the transaction a bribe is placed on. WTXID is the leaf,
// Proof the concatenated sibling path, Index its position in the tree.
type BribedTx struct {
	WTXID common.Hash   `json:"wTXID"`
	Proof hexutil.Bytes `json:"proof"`
	Index uint64        `json:"index"`
}

// CoinbaseTx is the block's coinbase with its proof under the header's
// merkle root. WitnessReserved is the value hashed with the witness root to
// form the commitment; empty means 32 zero bytes.
type CoinbaseTx struct {
	Params          TxParams      `json:"coinbaseTxParams"`
	Proof           hexutil.Bytes `json:"proof"`
	Index           uint64        `json:"index"`
	WitnessReserved hexutil.Bytes `json:"witnessReserved,omitempty"`
}

// InclusionProof is either a DirectProof or a WitnessProof.
type InclusionProof interface {
	bribedTx() *BribedTx
}

// DirectProof proves the leaf under the header's merkle root itself.
type DirectProof struct {
	Tx BribedTx
}

// WitnessProof proves the coinbase under the header's merkle root and the
// leaf under the witness root committed to by that coinbase.
type WitnessProof struct {
	Coinbase CoinbaseTx
	Tx       BribedTx
}

func (p *DirectProof) bribedTx() *BribedTx  { return &p.Tx }
func (p *WitnessProof) bribedTx() *BribedTx { return &p.Tx }

func (tx *BribedTx) merkleProof() (*MerkleProof, error) {
	if tx.WTXID == (common.Hash{}) {
		return nil, ErrZeroWTXID
	}
	path, err := ParseProofPath(tx.Proof)
	if err != nil {
		return nil, err
	}
	return &MerkleProof{Leaf: chainhash.Hash(tx.WTXID), Path: path, Index: tx.Index}, nil
}

// ValidateBribedTxInclusion checks that the bribed transaction is part of
// the block described by header.
func ValidateBribedTxInclusion(proof InclusionProof, header *wire.BlockHeader) error {
	mp, err := proof.bribedTx().merkleProof()
	if err != nil {
		return err
	}

	switch p := proof.(type) {
	case *DirectProof:
		ok, err := mp.Verify(header.MerkleRoot)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrTxNotInBlock, mp.Leaf)
		}
		return nil

	case *WitnessProof:
		commitment, err := p.Coinbase.verifyInBlock(header)
		if err != nil {
			return err
		}
		witnessRoot, err := ComputeRoot(mp.Leaf, mp.Path, mp.Index)
		if err != nil {
			return err
		}
		reserved, err := p.Coinbase.witnessReserved()
		if err != nil {
			return err
		}
		expected := WitnessCommitment(witnessRoot, reserved)
		if !bytes.Equal(expected[:], commitment) {
			return fmt.Errorf("%w: root %x commits to %x, coinbase has %x", ErrWitnessRootMismatch, witnessRoot[:], expected[:], commitment)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown inclusion proof %T", ErrMalformedInput, proof)
	}
}

// WitnessCommitment is the value a coinbase commits to for a witness root.
func WitnessCommitment(witnessRoot chainhash.Hash, reserved []byte) chainhash.Hash {
	preimage := make([]byte, 0, 2*chainhash.HashSize)
	preimage = append(preimage, witnessRoot[:]...)
	preimage = append(preimage, reserved...)
	return DoubleHash(preimage)
}

func (c *CoinbaseTx) witnessReserved() ([]byte, error) {
	if len(c.WitnessReserved) == 0 {
		return make([]byte, chainhash.HashSize), nil
	}
	if err := checkWidth("witness reserved value", c.WitnessReserved, chainhash.HashSize); err != nil {
		return nil, err
	}
	return c.WitnessReserved, nil
}

// verifyInBlock proves the coinbase is the first transaction of the block
// and returns the witness commitment it carries.
func (c *CoinbaseTx) verifyInBlock(header *wire.BlockHeader) ([]byte, error) {
	if c.Index != 0 {
		return nil, fmt.Errorf("%w: coinbase index is %d", ErrCoinbaseNotInBlock, c.Index)
	}

	msgTx, err := c.Params.MsgTx()
	if err != nil {
		return nil, err
	}
	if !blockchain.IsCoinBaseTx(msgTx) {
		return nil, fmt.Errorf("%w: transaction is not a coinbase", ErrCoinbaseNotInBlock)
	}

	path, err := ParseProofPath(c.Proof)
	if err != nil {
		return nil, err
	}
	txid, err := c.Params.TxID()
	if err != nil {
		return nil, err
	}
	ok, err := VerifyInclusion(txid, path, c.Index, header.MerkleRoot)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: txid %s", ErrCoinbaseNotInBlock, txid)
	}

	commitment, found := blockchain.ExtractWitnessCommitment(btcutil.NewTx(msgTx))
	if !found {
		return nil, fmt.Errorf("%w: coinbase has no witness commitment output", ErrWitnessRootMismatch)
	}
	return commitment, nil
}

// MinerIndex reads the miner's payout index from a coinbase output of the
// form OP_RETURN <8 byte big-endian index>.
func MinerIndex(tx *wire.MsgTx) (uint64, bool) {
	for _, out := range tx.TxOut {
		if txscript.GetScriptClass(out.PkScript) != txscript.NullDataTy {
			continue
		}
		pushes, err := txscript.PushedData(out.PkScript)
		if err != nil || len(pushes) != 1 || len(pushes[0]) != minerIndexSize {
			continue
		}
		return binary.BigEndian.Uint64(pushes[0]), true
	}
	return 0, false
}

// MinerIndexScript builds the coinbase output script MinerIndex reads.
func MinerIndexScript(index uint64) ([]byte, error) {
	var payload [minerIndexSize]byte
	binary.BigEndian.PutUint64(payload[:], index)
	return txscript.NullDataScript(payload[:])
}
