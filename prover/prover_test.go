package prover

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/bribe-go/blockhash"
	"github.com/TEENet-io/bribe-go/spv"
)

const testHeight = 1000

// Coinbase of regtest block 52641 including its witness.
const fixtureCoinbaseHex = "020000000001010000000000000000000000000000000000000000000000000000000000000000ffffffff0403a1cd00fdffffff0300000000000000001600142ae1df7f8d8251fb543c333f4a838d133170b2020000000000000000266a24aa21a9ed84e963438d247aee0bbf65c9f28856d6ed1ce9d1eebe20cbb9d38b472078085300000000000000000a6a0800000000000000010120000000000000000000000000000000000000000000000000000000000000000000000000"

func newCoinbase() *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), []byte{0x02, 0xe8, 0x03}, nil))
	tx.AddTxOut(wire.NewTxOut(50*1e8, append([]byte{0x00, 0x14}, bytes.Repeat([]byte{0x2a}, 20)...)))
	return tx
}

func newSpend(seed byte, withWitness bool) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	var witness wire.TxWitness
	if withWitness {
		witness = wire.TxWitness{bytes.Repeat([]byte{seed}, 71), bytes.Repeat([]byte{seed}, 33)}
	}
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{seed}, 0), nil, witness))
	tx.AddTxOut(wire.NewTxOut(int64(seed)*1000, append([]byte{0x00, 0x14}, bytes.Repeat([]byte{seed}, 20)...)))
	return tx
}

func newBlock(n int, withWitness bool) *wire.MsgBlock {
	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   0x20000000,
			PrevBlock: chainhash.Hash{0xab},
			Timestamp: time.Unix(1736292482, 0),
			Bits:      0x207fffff,
		},
	}
	block.AddTransaction(newCoinbase())
	for i := 1; i < n; i++ {
		block.AddTransaction(newSpend(byte(i), withWitness))
	}
	return block
}

func mineSegwitBlock(t *testing.T, n int, minerIndex uint64) *wire.MsgBlock {
	block := newBlock(n, true)
	require.NoError(t, CommitCoinbase(block, minerIndex))
	require.NoError(t, SolveHeader(&block.Header, chaincfg.RegressionNetParams.PowLimit))
	return block
}

func verifierFor(block *wire.MsgBlock) *spv.Verifier {
	src := blockhash.NewStaticSource()
	src.Set(testHeight, block.BlockHash())
	return spv.NewVerifier(src, &chaincfg.RegressionNetParams, true)
}

func TestBuildClaimWitness(t *testing.T) {
	for _, n := range []int{2, 3, 4, 7} {
		block := mineSegwitBlock(t, n, 7)
		v := verifierFor(block)

		for i := 1; i < n; i++ {
			wtxid := common.Hash(block.Transactions[i].WitnessHash())
			claim, err := BuildClaim(block, testHeight, wtxid)
			require.NoError(t, err)
			require.NotNil(t, claim.Coinbase)
			assert.Equal(t, uint64(i), claim.Tx.Index)

			verdict, err := v.VerifyClaim(context.Background(), claim)
			require.NoError(t, err, "n=%d i=%d", n, i)
			assert.True(t, verdict.HasMiner)
			assert.Equal(t, uint64(7), verdict.MinerIndex)
		}
	}
}

func TestBuildClaimTxidIsNotWtxid(t *testing.T) {
	block := mineSegwitBlock(t, 3, 0)

	_, err := BuildClaim(block, testHeight, common.Hash(block.Transactions[1].TxHash()))
	assert.ErrorIs(t, err, ErrTxNotFound)
}

func TestBuildClaimDirect(t *testing.T) {
	block := newBlock(5, false)
	_, root, err := spv.BuildMerkleProof(txids(block), 0)
	require.NoError(t, err)
	block.Header.MerkleRoot = root
	require.NoError(t, SolveHeader(&block.Header, chaincfg.RegressionNetParams.PowLimit))

	wtxid := common.Hash(block.Transactions[3].TxHash())
	claim, err := BuildClaim(block, testHeight, wtxid)
	require.NoError(t, err)
	assert.Nil(t, claim.Coinbase)

	verdict, err := verifierFor(block).VerifyClaim(context.Background(), claim)
	require.NoError(t, err)
	assert.False(t, verdict.HasMiner)
}

func TestBuildClaimErrors(t *testing.T) {
	block := mineSegwitBlock(t, 3, 1)

	_, err := BuildClaim(block, testHeight, common.Hash{})
	assert.ErrorIs(t, err, spv.ErrZeroWTXID)

	_, err = BuildClaim(block, testHeight, common.Hash{0x01})
	assert.ErrorIs(t, err, ErrTxNotFound)

	_, err = BuildClaim(&wire.MsgBlock{}, testHeight, common.Hash{0x01})
	assert.ErrorIs(t, err, ErrEmptyBlock)

	block.Header.MerkleRoot = chainhash.Hash{}
	_, err = BuildClaim(block, testHeight, common.Hash(block.Transactions[1].WitnessHash()))
	assert.ErrorIs(t, err, ErrMerkleRootMismatch)
}

func TestCommitCoinbaseReplacesOutputs(t *testing.T) {
	block := newBlock(3, true)
	require.NoError(t, CommitCoinbase(block, 1))
	require.NoError(t, CommitCoinbase(block, 9))

	coinbase := block.Transactions[0]
	assert.Len(t, coinbase.TxOut, 3)
	idx, ok := spv.MinerIndex(coinbase)
	assert.True(t, ok)
	assert.Equal(t, uint64(9), idx)
	assert.Equal(t, make([]byte, chainhash.HashSize), witnessReserved(coinbase))
}

func TestBuildBlock(t *testing.T) {
	params := &chaincfg.RegressionNetParams
	prev := newBlock(1, false).Header
	payout := append([]byte{0x00, 0x14}, bytes.Repeat([]byte{0x2a}, 20)...)
	spends := []*wire.MsgTx{newSpend(1, true), newSpend(2, false), newSpend(3, true)}

	block, err := BuildBlock(params, &prev, testHeight, payout, spends, 11, prev.Timestamp.Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, prev.BlockHash(), block.Header.PrevBlock)
	assert.Equal(t, prev.Bits, block.Header.Bits)
	assert.True(t, block.Header.Timestamp.After(prev.Timestamp))
	require.Len(t, block.Transactions, 4)

	coinbase := block.Transactions[0]
	assert.Equal(t, payout, coinbase.TxOut[0].PkScript)
	// 50 BTC halved every 150 blocks on regtest
	assert.Equal(t, int64(50*1e8)>>(testHeight/150), coinbase.TxOut[0].Value)
	assert.Equal(t, []byte{0x02, 0xe8, 0x03, 0x00}, coinbase.TxIn[0].SignatureScript)

	v := verifierFor(block)
	for _, tx := range spends {
		claim, err := BuildClaim(block, testHeight, common.Hash(tx.WitnessHash()))
		require.NoError(t, err)
		verdict, err := v.VerifyClaim(context.Background(), claim)
		require.NoError(t, err)
		assert.True(t, verdict.HasMiner)
		assert.Equal(t, uint64(11), verdict.MinerIndex)
	}
}

func TestFixtureCoinbaseParams(t *testing.T) {
	raw, err := hex.DecodeString(fixtureCoinbaseHex)
	require.NoError(t, err)
	tx := &wire.MsgTx{}
	require.NoError(t, tx.Deserialize(bytes.NewReader(raw)))

	assert.Equal(t, make([]byte, chainhash.HashSize), witnessReserved(tx))

	params, err := spv.TxParamsFromMsgTx(tx)
	require.NoError(t, err)
	assert.Equal(t, "0x010000000000000000000000000000000000000000000000000000000000000000ffffffff0403a1cd00fdffffff", params.Inputs.String())
	assert.Equal(t, "0x00000000", params.Locktime.String())

	txid, err := params.TxID()
	require.NoError(t, err)
	assert.Equal(t, tx.TxHash(), txid)
}
