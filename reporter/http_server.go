// This is a http type of reporter.
// It serves the bribe ledger and the SPV verifier
// on the http routes.

package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/bribe-go/bribe"
	mycommon "github.com/TEENet-io/bribe-go/common"
	"github.com/TEENet-io/bribe-go/spv"
)

const (
	ROUTE_HELLO    = "/hello"
	ROUTE_BRIBE    = "/bribe"
	ROUTE_EVENTS   = "/events"
	ROUTE_MINER    = "/miner"
	ROUTE_VERIFY   = "/verify"
	ROUTE_UNLOCK   = "/unlock"
	ROUTE_WITHDRAW = "/withdraw"
	ROUTE_CLAIM    = "/claim"

	ctxKeyCaller = "caller"
)

var (
	ErrMissingSignature = errors.New("missing " + HEADER_SIGNATURE + " header")
	ErrBadSignature     = errors.New("invalid signature")
)

// Ledger is the part of *bribe.Ledger the reporter serves.
type Ledger interface {
	RecordTx(caller common.Address, wtxid common.Hash, ipfsHash string, amount *big.Int) error
	UnlockFunds(caller common.Address, wtxid common.Hash) (int64, error)
	WithdrawBribe(caller common.Address, wtxid common.Hash, payout common.Address) error
	GetBribe(wtxid common.Hash) (*bribe.Bribe, error)
	AcceptRequest(caller common.Address, nonce uint64, expiresAt int64) error
	RegisterMinerAt(addr common.Address, index uint64) (uint64, error)
	MinerAddress(index uint64) (common.Address, error)
	ClaimBribe(ctx context.Context, claim *spv.Claim) (*bribe.BribeClaimedEvent, error)
	Events(wtxid common.Hash) ([]bribe.EventRecord, error)
}

type HttpReporter struct {
	serverIP   string // listen ip
	serverPort string // listen port

	ledger   Ledger
	verifier bribe.ClaimVerifier
}

func NewHttpReporter(serverIP string, serverPort string, ledger Ledger, verifier bribe.ClaimVerifier) *HttpReporter {
	return &HttpReporter{
		serverIP:   serverIP,
		serverPort: serverPort,
		ledger:     ledger,
		verifier:   verifier,
	}
}

// Hook up routes & handlers
func (h *HttpReporter) SetupRouter() *gin.Engine {
	router := gin.Default()

	router.GET(ROUTE_HELLO, Hello)
	router.GET(ROUTE_BRIBE, h.GetBribe)
	router.GET(ROUTE_EVENTS, h.GetEvents)
	router.GET(ROUTE_MINER, h.GetMiner)
	router.POST(ROUTE_VERIFY, h.Verify)
	router.POST(ROUTE_CLAIM, h.Claim)

	signed := router.Group("/", h.Authenticate)
	signed.POST(ROUTE_BRIBE, h.RecordTx)
	signed.POST(ROUTE_UNLOCK, h.Unlock)
	signed.POST(ROUTE_WITHDRAW, h.Withdraw)
	signed.POST(ROUTE_MINER, h.RegisterMiner)

	return router
}

// Run serves until ctx is done.
func (h *HttpReporter) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    h.serverIP + ":" + h.serverPort,
		Handler: h.SetupRouter(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("stopping http reporter")
		return srv.Shutdown(context.Background())
	}
}

// Example route.
func Hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "world",
	})
}

// Authenticate recovers the caller from the signature over the request
// body, a 65-byte [R || S || V] secp256k1 signature of keccak256(body).
// The body's nonce and expiry are spent with the ledger so a signed request
// runs at most once.
func (h *HttpReporter) Authenticate(c *gin.Context) {
	sigHex := c.GetHeader(HEADER_SIGNATURE)
	if sigHex == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrMissingSignature.Error()})
		return
	}
	sig, err := hexutil.Decode(mycommon.Prepend0xPrefix(sigHex))
	if err != nil || len(sig) != crypto.SignatureLength {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrBadSignature.Error()})
		return
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	body, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	pub, err := crypto.SigToPub(crypto.Keccak256(body), sig)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrBadSignature.Error()})
		return
	}
	addr := crypto.PubkeyToAddress(*pub)

	var req SignedRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ledger.AcceptRequest(addr, req.Nonce, req.ExpiresAt); err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			logger.Errorf("failed to accept request: path=%s, err=%v", c.FullPath(), err)
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}

	c.Set(ctxKeyCaller, addr)
	c.Next()
}

func caller(c *gin.Context) common.Address {
	return c.MustGet(ctxKeyCaller).(common.Address)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, spv.ErrMalformedInput),
		errors.Is(err, spv.ErrProofLengthMismatch),
		errors.Is(err, bribe.ErrZeroWTXID),
		errors.Is(err, bribe.ErrZeroBribe),
		errors.Is(err, bribe.ErrZeroAddress),
		errors.Is(err, bribe.ErrMinerIndexOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, bribe.ErrRequestExpired):
		return http.StatusUnauthorized
	case errors.Is(err, bribe.ErrNotTheBriber):
		return http.StatusForbidden
	case errors.Is(err, bribe.ErrBribeNotFound),
		errors.Is(err, bribe.ErrMinerNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, bribe.ErrTransactionAlreadyBribed),
		errors.Is(err, bribe.ErrUnlockFundsCalledBefore),
		errors.Is(err, bribe.ErrBribeStillValid),
		errors.Is(err, bribe.ErrNonceUsed),
		errors.Is(err, bribe.ErrMinerIndexTaken),
		errors.Is(err, bribe.ErrMinerAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, bribe.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, spv.ErrHeightMismatch),
		errors.Is(err, spv.ErrInsufficientWork),
		errors.Is(err, spv.ErrTxNotInBlock),
		errors.Is(err, spv.ErrCoinbaseNotInBlock),
		errors.Is(err, spv.ErrWitnessRootMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, spv.ErrLookupUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("request failed: path=%s, err=%v", c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func queryHash(c *gin.Context, key string) (common.Hash, bool) {
	h, err := mycommon.ParseHash(c.Query(key))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return common.Hash{}, false
	}
	return h, true
}

func (h *HttpReporter) GetBribe(c *gin.Context) {
	wtxid, ok := queryHash(c, "wtxid")
	if !ok {
		return
	}

	b, err := h.ledger.GetBribe(wtxid)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newBribeJSON(b)})
}

func (h *HttpReporter) GetEvents(c *gin.Context) {
	wtxid, ok := queryHash(c, "wtxid")
	if !ok {
		return
	}

	records, err := h.ledger.Events(wtxid)
	if err != nil {
		abort(c, err)
		return
	}
	if records == nil {
		records = []bribe.EventRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

func (h *HttpReporter) GetMiner(c *gin.Context) {
	index, err := strconv.ParseUint(c.Query("index"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an unsigned integer"})
		return
	}

	addr, err := h.ledger.MinerAddress(index)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": &MinerJSON{Index: index, Address: addr}})
}

// Verify checks a claim without touching the ledger.
func (h *HttpReporter) Verify(c *gin.Context) {
	var claim spv.Claim
	if err := c.ShouldBindJSON(&claim); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	verdict, err := h.verifier.VerifyClaim(c.Request.Context(), &claim)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newVerdictJSON(verdict)})
}

// Claim pays a bribe to the registered miner of the proven block. Anyone may
// submit it since the payout address comes from the miner registry.
func (h *HttpReporter) Claim(c *gin.Context) {
	var claim spv.Claim
	if err := c.ShouldBindJSON(&claim); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev, err := h.ledger.ClaimBribe(c.Request.Context(), &claim)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": ev})
}

func (h *HttpReporter) RecordTx(c *gin.Context) {
	var req RecordTxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ledger.RecordTx(caller(c), req.WTXID, req.IpfsHash, req.Amount); err != nil {
		abort(c, err)
		return
	}

	b, err := h.ledger.GetBribe(req.WTXID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newBribeJSON(b)})
}

func (h *HttpReporter) Unlock(c *gin.Context) {
	var req UnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	validUntil, err := h.ledger.UnlockFunds(caller(c), req.WTXID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": &UnlockJSON{WTXID: req.WTXID, ValidUntil: validUntil}})
}

func (h *HttpReporter) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ledger.WithdrawBribe(caller(c), req.WTXID, req.Payout); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"wTXID": req.WTXID}})
}

func (h *HttpReporter) RegisterMiner(c *gin.Context) {
	var req RegisterMinerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	addr := caller(c)
	index, err := h.ledger.RegisterMinerAt(addr, req.Index)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": &MinerJSON{Index: index, Address: addr}})
}
