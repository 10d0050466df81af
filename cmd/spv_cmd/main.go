// Command line helper around the spv engine and the bribe server.
//
//	spv_cmd prove <height> <wtxid>   print the claim for a mined transaction
//	spv_cmd verify <claim.json>      check a claim against the configured source
//	spv_cmd submit <claim.json>      send a claim to the bribe server
//	spv_cmd fund <address> <amount>  credit a treasury account (server stopped)
//	spv_cmd mine <index> <payout> [rawtx...]
//	                                 mine a regtest block committing a miner index
//
// wtxid is in display order, as bitcoin-cli prints it.
// Settings come from the environment, see cmd/bribe_server.

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/TEENet-io/bribe-go/blockhash"
	"github.com/TEENet-io/bribe-go/bribe"
	"github.com/TEENet-io/bribe-go/cmd"
	mycommon "github.com/TEENet-io/bribe-go/common"
	"github.com/TEENet-io/bribe-go/database"
	"github.com/TEENet-io/bribe-go/logconfig"
	"github.com/TEENet-io/bribe-go/prover"
	"github.com/TEENet-io/bribe-go/reporter"
	"github.com/TEENet-io/bribe-go/spv"
)

const requestTimeout = 30 * time.Second

func usage() {
	fmt.Println("usage:")
	fmt.Println("  spv_cmd prove <height> <wtxid>")
	fmt.Println("  spv_cmd verify <claim.json>")
	fmt.Println("  spv_cmd submit <claim.json>")
	fmt.Println("  spv_cmd fund <address> <amount>")
	fmt.Println("  spv_cmd mine <index> <payout> [rawtx...]")
}

func main() {
	viper.AutomaticEnv()
	viper.SetDefault("BLOCK_HASH_SOURCE", cmd.SOURCE_RPC)
	viper.SetDefault("CHECK_POW", true)
	viper.SetDefault("BRIBE_SERVER_URL", "http://127.0.0.1:8080")

	if err := logconfig.ConfigLogger(viper.GetString("LOG_LEVEL")); err != nil {
		fmt.Printf("Error configuring logger: %s\n", err)
		os.Exit(1)
	}

	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "prove":
		if len(os.Args) != 4 {
			usage()
			os.Exit(1)
		}
		err = prove(os.Args[2], os.Args[3])
	case "verify":
		err = verify(ctx, os.Args[2])
	case "submit":
		err = submit(ctx, os.Args[2])
	case "fund":
		if len(os.Args) != 4 {
			usage()
			os.Exit(1)
		}
		err = fund(os.Args[2], os.Args[3])
	case "mine":
		if len(os.Args) < 4 {
			usage()
			os.Exit(1)
		}
		err = mine(os.Args[2], os.Args[3], os.Args[4:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func prove(heightStr string, wtxidStr string) error {
	height, err := strconv.ParseUint(heightStr, 10, 64)
	if err != nil {
		return fmt.Errorf("bad height: %w", err)
	}
	h, err := chainhash.NewHashFromStr(wtxidStr)
	if err != nil {
		return fmt.Errorf("bad wtxid: %w", err)
	}

	r, err := cmd.SetupBtcRpc(
		viper.GetString("BTC_RPC_SERVER"),
		viper.GetString("BTC_RPC_PORT"),
		viper.GetString("BTC_RPC_USERNAME"),
		viper.GetString("BTC_RPC_PWD"),
	)
	if err != nil {
		return err
	}
	defer r.Close()

	block, err := r.GetBlockByHeight(int64(height))
	if err != nil {
		return err
	}
	claim, err := prover.BuildClaim(block, height, common.Hash(*h))
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(claim, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func readClaim(path string) (*spv.Claim, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var claim spv.Claim
	if err := json.Unmarshal(raw, &claim); err != nil {
		return nil, err
	}
	return &claim, nil
}

func verify(ctx context.Context, path string) error {
	claim, err := readClaim(path)
	if err != nil {
		return err
	}

	var source spv.BlockHashSource
	switch viper.GetString("BLOCK_HASH_SOURCE") {
	case cmd.SOURCE_ESPLORA:
		source = blockhash.NewEsploraSource(viper.GetString("ESPLORA_URL"))
	case cmd.SOURCE_RPC:
		r, err := cmd.SetupBtcRpc(
			viper.GetString("BTC_RPC_SERVER"),
			viper.GetString("BTC_RPC_PORT"),
			viper.GetString("BTC_RPC_USERNAME"),
			viper.GetString("BTC_RPC_PWD"),
		)
		if err != nil {
			return err
		}
		defer r.Close()
		source = blockhash.NewRPCSource(r)
	default:
		return fmt.Errorf("%w: %s", cmd.ErrUnknownSource, viper.GetString("BLOCK_HASH_SOURCE"))
	}

	params := cmd.ChainParams(viper.GetString("BTC_CHAIN_CONFIG"))
	verdict, err := spv.NewVerifier(source, params, viper.GetBool("CHECK_POW")).VerifyClaim(ctx, claim)
	if err != nil {
		return err
	}

	fmt.Printf("valid: block %s at height %d\n", verdict.BlockHash, verdict.Height)
	if verdict.HasMiner {
		fmt.Printf("miner index: %d\n", verdict.MinerIndex)
	}
	return nil
}

func submit(ctx context.Context, path string) error {
	claim, err := readClaim(path)
	if err != nil {
		return err
	}

	ev, err := reporter.NewHttpReaderWithURL(viper.GetString("BRIBE_SERVER_URL")).Claim(ctx, claim)
	if err != nil {
		return err
	}
	fmt.Printf("claimed %s for miner %s (index %d)\n", ev.Amount, ev.Miner, ev.MinerIndex)
	return nil
}

func fund(addrStr string, amountStr string) error {
	addr, err := mycommon.ParseAddress(addrStr)
	if err != nil {
		return err
	}
	amount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok {
		return fmt.Errorf("bad amount: %s", amountStr)
	}

	db, err := database.OpenSQLite(viper.GetString("DB_FILE_PATH"))
	if err != nil {
		return err
	}
	defer db.Close()

	treasury, err := bribe.NewSQLiteTreasury(db)
	if err != nil {
		return err
	}
	defer treasury.Close()

	if err := treasury.Fund(addr, amount); err != nil {
		return err
	}
	balance, err := treasury.Balance(addr)
	if err != nil {
		return err
	}
	fmt.Printf("%s balance: %s\n", addr, balance)
	return nil
}

// mine builds a block on the node's tip whose coinbase commits the miner
// index, includes the given raw transactions and submits it.
func mine(indexStr string, payoutStr string, rawTxs []string) error {
	params := cmd.ChainParams(viper.GetString("BTC_CHAIN_CONFIG"))
	if params.Name != chaincfg.RegressionNetParams.Name {
		return fmt.Errorf("mine only runs on regtest, configured %s", params.Name)
	}

	index, err := strconv.ParseUint(indexStr, 10, 64)
	if err != nil {
		return fmt.Errorf("bad miner index: %w", err)
	}
	payout, err := btcutil.DecodeAddress(payoutStr, params)
	if err != nil {
		return fmt.Errorf("bad payout address: %w", err)
	}
	payoutScript, err := txscript.PayToAddrScript(payout)
	if err != nil {
		return err
	}

	txs := make([]*wire.MsgTx, 0, len(rawTxs))
	for _, rawHex := range rawTxs {
		raw, err := hex.DecodeString(rawHex)
		if err != nil {
			return fmt.Errorf("bad raw transaction: %w", err)
		}
		tx := &wire.MsgTx{}
		if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
			return fmt.Errorf("bad raw transaction: %w", err)
		}
		txs = append(txs, tx)
	}

	r, err := cmd.SetupBtcRpc(
		viper.GetString("BTC_RPC_SERVER"),
		viper.GetString("BTC_RPC_PORT"),
		viper.GetString("BTC_RPC_USERNAME"),
		viper.GetString("BTC_RPC_PWD"),
	)
	if err != nil {
		return err
	}
	defer r.Close()

	tip, err := r.GetLatestBlockHeight()
	if err != nil {
		return err
	}
	prev, err := r.GetBlockHeader(tip)
	if err != nil {
		return err
	}

	block, err := prover.BuildBlock(params, prev, int32(tip+1), payoutScript, txs, index, time.Now())
	if err != nil {
		return err
	}
	if err := r.SubmitBlock(block); err != nil {
		return err
	}

	hash := block.BlockHash()
	height, err := r.GetBlockHeightByHash(&hash)
	if err != nil {
		return err
	}
	fmt.Printf("mined block %s at height %d\n", hash, height)
	for _, tx := range txs {
		fmt.Printf("wtxid: %s\n", tx.WitnessHash())
	}
	return nil
}
