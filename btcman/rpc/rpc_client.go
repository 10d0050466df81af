package rpc

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

type RpcClientConfig struct {
	ServerAddr string // ip address of server
	Port       string // port of server
	Username   string
	Pwd        string
}

// Wrapper of btc rpc client.
type RpcClient struct {
	ServerAddr string // ip address of server
	Port       string // port of server
	Username   string
	Pwd        string
	client     *rpcclient.Client
}

// Create a new RPC client which serves block hashes,
// headers and full blocks to the SPV prover and verifier.
func NewRpcClient(rcc *RpcClientConfig) (*RpcClient, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         rcc.ServerAddr + ":" + rcc.Port,
		User:         rcc.Username,
		Pass:         rcc.Pwd,
		HTTPPostMode: true, // original bitcoin only supports HTTP POST mode
		DisableTLS:   true, // original bitcoin does not support TLS
	}, nil)

	if err != nil {
		return nil, err
	}

	return &RpcClient{rcc.ServerAddr, rcc.Port, rcc.Username, rcc.Pwd, client}, nil
}

// Close the rpc client
func (r *RpcClient) Close() {
	r.client.Shutdown()
}

// Get the latest block height.
func (r *RpcClient) GetLatestBlockHeight() (int64, error) {
	latestHeight, err := r.client.GetBlockCount()
	if err != nil {
		return 0, err
	}
	return latestHeight, nil
}

// Get the hash of the block at the given height of the best chain.
func (r *RpcClient) GetBlockHash(height int64) (*chainhash.Hash, error) {
	if height < 0 {
		return nil, fmt.Errorf("invalid block height: %d", height)
	}
	return r.client.GetBlockHash(height)
}

// Get the header of the block at the given height.
func (r *RpcClient) GetBlockHeader(height int64) (*wire.BlockHeader, error) {
	hash, err := r.GetBlockHash(height)
	if err != nil {
		return nil, err
	}
	return r.client.GetBlockHeader(hash)
}

// Get the full block, witnesses included, at the given height.
func (r *RpcClient) GetBlockByHeight(height int64) (*wire.MsgBlock, error) {
	hash, err := r.GetBlockHash(height)
	if err != nil {
		return nil, err
	}
	return r.client.GetBlock(hash)
}

// Get the block height by providing block hash.
func (r *RpcClient) GetBlockHeightByHash(blockHash *chainhash.Hash) (int32, error) {
	blockHeaderVerbose, err := r.client.GetBlockHeaderVerbose(blockHash)
	if err != nil {
		return 0, err
	}
	return blockHeaderVerbose.Height, nil
}

// Submit a solved block to the node. A rejected block is reported as an
// error.
func (r *RpcClient) SubmitBlock(block *wire.MsgBlock) error {
	return r.client.SubmitBlock(btcutil.NewBlock(block), nil)
}

// Generate a given number of blocks.
// This function is useful for testing purposes.
func (r *RpcClient) GenerateBlocks(numBlocks int64, coinbase btcutil.Address) ([]*chainhash.Hash, error) {
	blockHashes, err := r.client.GenerateToAddress(numBlocks, coinbase, nil)
	if err != nil {
		return nil, err
	}
	return blockHashes, nil
}
