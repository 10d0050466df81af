// Server = block hash source + spv verifier + bribe ledger + http reporter.
// All components are configured via environment variables (strings!).

package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/bribe-go/blockhash"
	btcrpc "github.com/TEENet-io/bribe-go/btcman/rpc"
	"github.com/TEENet-io/bribe-go/bribe"
	"github.com/TEENet-io/bribe-go/database"
	"github.com/TEENet-io/bribe-go/reporter"
	"github.com/TEENet-io/bribe-go/spv"
)

const (
	SOURCE_RPC     = "rpc"
	SOURCE_ESPLORA = "esplora"

	// bribe publisher-observer config
	CHANNEL_BUFFER_SIZE = 16
)

var ErrUnknownSource = errors.New("unknown block hash source")

// Keep the configuration's fields as "text" as possible.
// Its easier to load it from env vars or a config file.
type BribeServerConfig struct {
	// state side
	DbFilePath  string        // sqlite file of the ledger and treasury
	UnlockDelay time.Duration // 0 = bribe.DefaultUnlockDelay

	// btc side
	BlockHashSource    string           // "rpc" or "esplora"
	BtcRpcServer       string           // btc rpc server info
	BtcRpcPort         string           // btc rpc server info
	BtcRpcUsername     string           // btc rpc server info
	BtcRpcPwd          string           // btc rpc server info
	EsploraUrl         string           // eg. https://blockstream.info/api
	BlockHashCacheSize int              // 0 = blockhash.DefaultCacheSize
	BlockHashDbPath    string           // bolt file persisting looked up hashes, "" = none
	BtcChainConfig     *chaincfg.Params // regtest, testnet, mainnet?
	CheckPoW           bool             // check header work against the chain's pow limit

	// Http side
	HttpIp   string // eg. 0.0.0.0
	HttpPort string // eg. 8080
}

// BribeServer holds the objects that consists of the bribe server.
type BribeServer struct {
	Db *sql.DB

	// btc side
	BtcRpcClient *btcrpc.RpcClient // nil unless the source is rpc
	BoltSource   *blockhash.BoltSource
	Source       spv.BlockHashSource
	Verifier     *spv.Verifier

	// state side
	Storage  *bribe.SQLiteStorage
	Treasury *bribe.SQLiteTreasury
	Ledger   *bribe.Ledger
	EventLog *bribe.ObserverEventLog

	Reporter *reporter.HttpReporter
}

// setupBlockHashSource builds the lookup chain:
// remote (rpc|esplora) -> bolt (optional) -> lru.
func setupBlockHashSource(bsc *BribeServerConfig, bs *BribeServer) error {
	var remote spv.BlockHashSource
	switch bsc.BlockHashSource {
	case SOURCE_RPC, "":
		r, err := SetupBtcRpc(bsc.BtcRpcServer, bsc.BtcRpcPort, bsc.BtcRpcUsername, bsc.BtcRpcPwd)
		if err != nil {
			return err
		}
		bs.BtcRpcClient = r
		remote = blockhash.NewRPCSource(r)
	case SOURCE_ESPLORA:
		remote = blockhash.NewEsploraSource(bsc.EsploraUrl)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSource, bsc.BlockHashSource)
	}

	if bsc.BlockHashDbPath != "" {
		b, err := blockhash.NewBoltSource(bsc.BlockHashDbPath, remote)
		if err != nil {
			return err
		}
		bs.BoltSource = b
		remote = b
	}

	bs.Source = blockhash.NewCachedSource(remote, bsc.BlockHashCacheSize)
	return nil
}

// NewBribeServer creates a new bribe server.
// ctx is used for parental context to cancel the operation of bribe server.
// wg is used to wait for all the goroutines inside the server (event log, http reporter) to finish.
func NewBribeServer(bsc *BribeServerConfig, ctx context.Context, wg *sync.WaitGroup) (*BribeServer, error) {
	bs := &BribeServer{}

	// 0) block hash source + verifier
	if err := setupBlockHashSource(bsc, bs); err != nil {
		logger.Errorf("cannot set up block hash source: %v", err)
		bs.Close()
		return nil, err
	}
	params := bsc.BtcChainConfig
	if params == nil {
		params = &chaincfg.RegressionNetParams
	}
	bs.Verifier = spv.NewVerifier(bs.Source, params, bsc.CheckPoW)

	// 1) sql db shared by storage and treasury
	db, err := database.OpenSQLite(bsc.DbFilePath)
	if err != nil {
		logger.Errorf("failed to open db file: %v", err)
		bs.Close()
		return nil, err
	}
	bs.Db = db

	bs.Storage, err = bribe.NewSQLiteStorage(db)
	if err != nil {
		logger.Errorf("failed to create bribe storage: %v", err)
		bs.Close()
		return nil, err
	}
	bs.Treasury, err = bribe.NewSQLiteTreasury(db)
	if err != nil {
		logger.Errorf("failed to create treasury: %v", err)
		bs.Close()
		return nil, err
	}

	// 2) ledger
	cfg := bribe.DefaultConfig()
	cfg.ChannelSize = CHANNEL_BUFFER_SIZE
	if bsc.UnlockDelay > 0 {
		cfg.UnlockDelay = bsc.UnlockDelay
	}
	publisher := bribe.NewPublisherService()
	bs.Ledger = bribe.NewLedger(cfg, bs.Storage, bs.Treasury, bs.Verifier, publisher)

	// 3) event log observer, registered before anything can emit
	bs.EventLog = bribe.NewObserverEventLog(bs.Storage, cfg.ChannelSize)
	bs.EventLog.Subscribe(publisher)

	wg.Add(1)
	go func() {
		defer wg.Done()
		// nothing reads the backlog once the log stops
		defer publisher.Close()
		if err := bs.EventLog.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("event log stopped: %v", err)
		}
	}()

	// *** Setup a http server ***
	bs.Reporter = reporter.NewHttpReporter(bsc.HttpIp, bsc.HttpPort, bs.Ledger, bs.Verifier)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := bs.Reporter.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http reporter stopped: %v", err)
		}
	}()

	logger.WithFields(logger.Fields{
		"source": bsc.BlockHashSource,
		"chain":  params.Name,
		"http":   bsc.HttpIp + ":" + bsc.HttpPort,
	}).Info("bribe server started")

	return bs, nil
}

// Close releases what NewBribeServer opened. Call it after the goroutines
// have finished.
func (bs *BribeServer) Close() {
	if bs.Storage != nil {
		bs.Storage.Close()
	}
	if bs.Treasury != nil {
		bs.Treasury.Close()
	}
	if bs.Db != nil {
		bs.Db.Close()
	}
	if bs.BoltSource != nil {
		bs.BoltSource.Close()
	}
	if bs.BtcRpcClient != nil {
		bs.BtcRpcClient.Close()
	}
}

// Create, then start the bribe server and wait.
// Press Ctrl-C to kill the server.
func StartBribeServerAndWait(bsc *BribeServerConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up a signal channel to listen for Ctrl-C (SIGINT) or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Printf("Received signal: %v, cancelling context...\n", sig)
		cancel()
	}()

	var wg sync.WaitGroup

	bs, err := NewBribeServer(bsc, ctx, &wg)
	if err != nil {
		logger.Fatalf("failed to create bribe server: %v", err)
		return
	}

	wg.Wait()
	bs.Close()
}
