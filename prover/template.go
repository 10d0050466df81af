package prover

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/TEENet-io/bribe-go/spv"
)

var ErrNonceExhausted = errors.New("no nonce satisfies the target")

// CommitCoinbase prepares a block template for a bribe-aware miner: the
// coinbase gets the zero witness reserved value, a witness commitment over
// the block's wtxids and an output naming minerIndex. Existing commitment
// and index outputs are replaced. The header's merkle root is recomputed.
func CommitCoinbase(block *wire.MsgBlock, minerIndex uint64) error {
	if len(block.Transactions) == 0 {
		return ErrEmptyBlock
	}
	coinbase := block.Transactions[0]
	if !blockchain.IsCoinBaseTx(coinbase) {
		return fmt.Errorf("first transaction is not a coinbase")
	}

	reserved := make([]byte, chainhash.HashSize)
	coinbase.TxIn[0].Witness = wire.TxWitness{reserved}

	_, witnessRoot, err := spv.BuildMerkleProof(wtxids(block), 0)
	if err != nil {
		return err
	}
	commitment := spv.WitnessCommitment(witnessRoot, reserved)
	indexScript, err := spv.MinerIndexScript(minerIndex)
	if err != nil {
		return err
	}

	outs := coinbase.TxOut[:0]
	for _, out := range coinbase.TxOut {
		if bytes.HasPrefix(out.PkScript, blockchain.WitnessMagicBytes) {
			continue
		}
		if _, ok := spv.MinerIndex(&wire.MsgTx{TxOut: []*wire.TxOut{out}}); ok {
			continue
		}
		outs = append(outs, out)
	}
	coinbase.TxOut = outs
	coinbase.AddTxOut(wire.NewTxOut(0, append(append([]byte{}, blockchain.WitnessMagicBytes...), commitment[:]...)))
	coinbase.AddTxOut(wire.NewTxOut(0, indexScript))

	if _, ok := blockchain.ExtractWitnessCommitment(btcutil.NewTx(coinbase)); !ok {
		return ErrNoWitnessCommitment
	}

	_, root, err := spv.BuildMerkleProof(txids(block), 0)
	if err != nil {
		return err
	}
	block.Header.MerkleRoot = root
	return nil
}

// SolveHeader searches nonces from the current one until the header hash
// meets its target. Only practical for regtest difficulty.
func SolveHeader(header *wire.BlockHeader, powLimit *big.Int) error {
	for nonce := uint64(header.Nonce); nonce <= math.MaxUint32; nonce++ {
		header.Nonce = uint32(nonce)
		if spv.CheckProofOfWork(header.BlockHash(), header.Bits, powLimit) == nil {
			return nil
		}
	}
	return ErrNonceExhausted
}

// BuildBlock assembles a solved block on top of prev at height. The coinbase
// pays the subsidy to payoutScript and commits minerIndex; fees of txs are
// left unclaimed. Difficulty is copied from prev, which only holds on
// networks without retargeting such as regtest.
func BuildBlock(params *chaincfg.Params, prev *wire.BlockHeader, height int32, payoutScript []byte,
	txs []*wire.MsgTx, minerIndex uint64, now time.Time) (*wire.MsgBlock, error) {
	// BIP34 height push, padded to the two-byte minimum
	sigScript, err := txscript.NewScriptBuilder().AddInt64(int64(height)).AddInt64(0).Script()
	if err != nil {
		return nil, err
	}

	coinbase := wire.NewMsgTx(2)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex),
		SignatureScript:  sigScript,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	coinbase.AddTxOut(wire.NewTxOut(blockchain.CalcBlockSubsidy(height, params), payoutScript))

	timestamp := now.Truncate(time.Second)
	if !timestamp.After(prev.Timestamp) {
		timestamp = prev.Timestamp.Add(time.Second)
	}
	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   0x20000000,
			PrevBlock: prev.BlockHash(),
			Timestamp: timestamp,
			Bits:      prev.Bits,
		},
	}
	if err := block.AddTransaction(coinbase); err != nil {
		return nil, err
	}
	for _, tx := range txs {
		if err := block.AddTransaction(tx); err != nil {
			return nil, err
		}
	}

	if err := CommitCoinbase(block, minerIndex); err != nil {
		return nil, err
	}
	if err := SolveHeader(&block.Header, params.PowLimit); err != nil {
		return nil, err
	}
	return block, nil
}
