package rpc

import (
	"os"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/bribe-go/prover"
	"github.com/TEENet-io/bribe-go/spv"
)

const (
	MIN_BLOCKS = 1 // Minimum step to generate blocks

	// Coinbase receiver on regtest.
	p1_legacy_addr_str = "mkVXZnqaaKt4puQNr4ovPHYg48mjguFCnT"
)

var (
	server   string
	port     string
	username string
	password string
)

// Initial setup for bitcoin rpc server
func setup() bool {
	server = os.Getenv("SERVER")
	port = os.Getenv("PORT")
	username = os.Getenv("USER")
	password = os.Getenv("PASS")
	return server != "" && port != "" && username != "" && password != ""
}

func setupClient(t *testing.T) *RpcClient {
	if !setup() {
		t.Skip("export env variables first: SERVER, PORT, USER, PASS before running the tests")
	}

	r, err := NewRpcClient(&RpcClientConfig{
		ServerAddr: server,
		Port:       port,
		Username:   username,
		Pwd:        password,
	})
	require.NoError(t, err, "cannot create RpcClient with given credentials")
	return r
}

func TestGetBlockHash(t *testing.T) {
	r := setupClient(t)
	defer r.Close()

	addr, err := btcutil.DecodeAddress(p1_legacy_addr_str, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	_, err = r.GenerateBlocks(MIN_BLOCKS, addr)
	require.NoError(t, err)

	height, err := r.GetLatestBlockHeight()
	require.NoError(t, err)

	hash, err := r.GetBlockHash(height)
	require.NoError(t, err)

	header, err := r.GetBlockHeader(height)
	require.NoError(t, err)
	assert.Equal(t, *hash, header.BlockHash())

	block, err := r.GetBlockByHeight(height)
	require.NoError(t, err)
	assert.Equal(t, *hash, block.BlockHash())

	h, err := r.GetBlockHeightByHash(hash)
	require.NoError(t, err)
	assert.Equal(t, height, int64(h))

	_, err = r.GetBlockHash(-1)
	assert.Error(t, err)
}

func TestSubmitBlock(t *testing.T) {
	r := setupClient(t)
	defer r.Close()

	params := &chaincfg.RegressionNetParams
	addr, err := btcutil.DecodeAddress(p1_legacy_addr_str, params)
	require.NoError(t, err)
	payout, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	tip, err := r.GetLatestBlockHeight()
	require.NoError(t, err)
	prev, err := r.GetBlockHeader(tip)
	require.NoError(t, err)

	block, err := prover.BuildBlock(params, prev, int32(tip+1), payout, nil, 3, time.Now())
	require.NoError(t, err)
	require.NoError(t, r.SubmitBlock(block))

	hash := block.BlockHash()
	h, err := r.GetBlockHeightByHash(&hash)
	require.NoError(t, err)
	assert.Equal(t, tip+1, int64(h))

	mined, err := r.GetBlockByHeight(tip + 1)
	require.NoError(t, err)
	idx, ok := spv.MinerIndex(mined.Transactions[0])
	assert.True(t, ok)
	assert.Equal(t, uint64(3), idx)

	// The same block again is a duplicate.
	assert.Error(t, r.SubmitBlock(block))
}
