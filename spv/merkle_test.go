package spv

import (
	"testing"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoubleHash(t *testing.T) {
	a := DoubleHash([]byte("header"))
	b := DoubleHash([]byte("header"))
	assert.Equal(t, a, b)
	assert.Len(t, a[:], chainhash.HashSize)
	assert.NotEqual(t, a, DoubleHash([]byte("headeR")))

	// Empty input is still 32 bytes.
	empty := DoubleHash(nil)
	assert.Equal(t, "56944c5d3f98413ef45cf54545538103cc9f298e0575820ad3591376e2e0f65d", empty.String())
}

func TestHeaderHashFixture(t *testing.T) {
	raw := fixtureHeader()

	h1, err := HeaderHash(&raw)
	require.NoError(t, err)
	h2, err := HeaderHash(&raw)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, fixtureBlockHash, h1.String())

	header, err := raw.Header()
	require.NoError(t, err)
	assert.Equal(t, h1, header.BlockHash())

	// A single byte in the nonce changes the hash.
	raw.Nonce[0] ^= 0x01
	h3, err := HeaderHash(&raw)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func makeTxs(n int) []*btcutil.Tx {
	txs := make([]*btcutil.Tx, 0, n)
	for i := 0; i < n; i++ {
		tx := wire.NewMsgTx(wire.TxVersion)
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{byte(i)}, uint32(i)), nil, nil))
		tx.AddTxOut(wire.NewTxOut(int64(i), []byte{0x51}))
		tx.LockTime = uint32(i)
		txs = append(txs, btcutil.NewTx(tx))
	}
	return txs
}

func TestBuildAndVerifyProofs(t *testing.T) {
	for n := 1; n <= 33; n++ {
		txs := makeTxs(n)
		leaves := make([]chainhash.Hash, n)
		for i, tx := range txs {
			leaves[i] = *tx.Hash()
		}
		store := blockchain.BuildMerkleTreeStore(txs, false)
		want := *store[len(store)-1]

		for idx := 0; idx < n; idx++ {
			path, root, err := BuildMerkleProof(leaves, idx)
			require.NoError(t, err)
			require.Equal(t, want, root, "n=%d idx=%d", n, idx)

			ok, err := VerifyInclusion(leaves[idx], path, uint64(idx), root)
			require.NoError(t, err)
			assert.True(t, ok, "n=%d idx=%d", n, idx)

			for _, pos := range []int{0, 17, 31} {
				bad := root
				bad[pos] ^= 0x80
				ok, err = VerifyInclusion(leaves[idx], path, uint64(idx), bad)
				require.NoError(t, err)
				assert.False(t, ok)
			}
		}
	}
}

func TestVerifyInclusionLengthMismatch(t *testing.T) {
	leaf := DoubleHash([]byte("leaf"))
	sibling := DoubleHash([]byte("sibling"))

	_, err := VerifyInclusion(leaf, []chainhash.Hash{sibling}, 2, leaf)
	assert.ErrorIs(t, err, ErrProofLengthMismatch)

	_, err = VerifyInclusion(leaf, nil, 1, leaf)
	assert.ErrorIs(t, err, ErrProofLengthMismatch)

	long := make([]chainhash.Hash, maxProofDepth+1)
	_, err = VerifyInclusion(leaf, long, 0, leaf)
	assert.ErrorIs(t, err, ErrProofLengthMismatch)

	// A single-leaf tree: empty path, the root is the leaf.
	ok, err := VerifyInclusion(leaf, nil, 0, leaf)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestWitnessRootFixture(t *testing.T) {
	// Witness tree of [zero coinbase wtxid, bribed wtxid].
	tx := fixtureBribedTx()
	path, err := ParseProofPath(tx.Proof)
	require.NoError(t, err)

	ok, err := VerifyInclusion(chainhash.Hash(tx.WTXID), path, tx.Index, mustInternalHash(fixtureWitnessRoot))
	require.NoError(t, err)
	assert.True(t, ok)

	_, root, err := BuildMerkleProof([]chainhash.Hash{{}, chainhash.Hash(tx.WTXID)}, 1)
	require.NoError(t, err)
	assert.Equal(t, mustInternalHash(fixtureWitnessRoot), root)
}

func TestBuildMerkleProofErrors(t *testing.T) {
	_, _, err := BuildMerkleProof(nil, 0)
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, _, err = BuildMerkleProof([]chainhash.Hash{{}}, 1)
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, _, err = BuildMerkleProof([]chainhash.Hash{{}}, -1)
	assert.ErrorIs(t, err, ErrMalformedInput)
}
