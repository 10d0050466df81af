package bribe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/bribe-go/spv"
)

var (
	ErrZeroWTXID                = spv.ErrZeroWTXID
	ErrZeroBribe                = errors.New("bribe amount must be greater than zero")
	ErrZeroAddress              = errors.New("address can't be zero")
	ErrTransactionAlreadyBribed = errors.New("transaction already bribed")
	ErrNotTheBriber             = errors.New("caller is not the briber")
	ErrUnlockFundsCalledBefore  = errors.New("unlock funds called before")
	ErrBribeStillValid          = errors.New("bribe still valid")
	ErrBribeNotFound            = errors.New("no open bribe for wTXID")
	ErrMinerNotRegistered       = errors.New("miner not registered")
	ErrMinerIndexTaken          = errors.New("miner index taken")
	ErrMinerAlreadyRegistered   = errors.New("miner registered under another index")
	ErrMinerIndexOutOfRange     = errors.New("miner index out of range")
	ErrRequestExpired           = errors.New("request expired")
	ErrNonceUsed                = errors.New("request nonce already used")
)

// ClaimVerifier checks a claim end to end. *spv.Verifier implements it.
type ClaimVerifier interface {
	VerifyClaim(ctx context.Context, claim *spv.Claim) (*spv.Verdict, error)
}

// Ledger holds bribes in escrow keyed by wTXID. A bribe leaves escrow either
// back to its briber after the unlock delay, or to the miner that proves the
// transaction was mined.
type Ledger struct {
	cfg       *Config
	storage   Storage
	treasury  Treasury
	verifier  ClaimVerifier
	publisher *PublisherService

	mu  sync.Mutex // serializes state transitions
	now func() time.Time
}

func NewLedger(cfg *Config, storage Storage, treasury Treasury, verifier ClaimVerifier, publisher *PublisherService) *Ledger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.RequestTTL <= 0 {
		c := *cfg
		c.RequestTTL = DefaultRequestTTL
		cfg = &c
	}
	if publisher == nil {
		publisher = NewPublisherService()
	}
	return &Ledger{
		cfg:       cfg,
		storage:   storage,
		treasury:  treasury,
		verifier:  verifier,
		publisher: publisher,
		now:       time.Now,
	}
}

// activeBribe returns the stored bribe for wtxid, nil if it is unknown or
// closed.
func (l *Ledger) activeBribe(wtxid common.Hash) (*Bribe, error) {
	b, err := l.storage.GetBribe(wtxid)
	if err != nil {
		return nil, err
	}
	if b == nil || !b.Active() {
		return nil, nil
	}
	return b, nil
}

// RecordTx escrows amount from caller as a bribe for mining wtxid.
func (l *Ledger) RecordTx(caller common.Address, wtxid common.Hash, ipfsHash string, amount *big.Int) error {
	if wtxid == (common.Hash{}) {
		return ErrZeroWTXID
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroBribe
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.activeBribe(wtxid)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrTransactionAlreadyBribed
	}

	if err := l.treasury.Escrow(caller, amount); err != nil {
		return err
	}

	b := &Bribe{
		WTXID:    wtxid,
		Amount:   new(big.Int).Set(amount),
		Briber:   caller,
		IpfsHash: ipfsHash,
		Status:   StatusOpen,
	}
	if err := l.storage.SaveBribe(b); err != nil {
		if rerr := l.treasury.Release(caller, amount); rerr != nil {
			logger.Errorf("failed to refund escrow after failed insert: wtxid=%s, err=%v", wtxid.String(), rerr)
		}
		return err
	}

	logger.WithFields(logger.Fields{
		"wtxid":  wtxid.String(),
		"amount": amount.String(),
		"briber": caller.String(),
	}).Info("bribe placed")

	l.publisher.NotifyPlaced(BribePlacedEvent{
		WTXID:    wtxid,
		Amount:   new(big.Int).Set(amount),
		IpfsHash: ipfsHash,
	})
	return nil
}

// UnlockFunds starts the unlock delay after which the briber can withdraw.
// It returns the time from which withdrawal is allowed.
func (l *Ledger) UnlockFunds(caller common.Address, wtxid common.Hash) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.activeBribe(wtxid)
	if err != nil {
		return 0, err
	}
	if b == nil || b.Briber != caller {
		return 0, ErrNotTheBriber
	}
	if b.Status == StatusUnlockRequested {
		return 0, ErrUnlockFundsCalledBefore
	}

	b.ValidUntil = l.now().Add(l.cfg.UnlockDelay).Unix()
	b.Status = StatusUnlockRequested
	if err := l.storage.SaveBribe(b); err != nil {
		return 0, err
	}

	logger.WithFields(logger.Fields{
		"wtxid":      wtxid.String(),
		"validUntil": b.ValidUntil,
	}).Info("bribe unlock requested")
	return b.ValidUntil, nil
}

// close zeroes the bribe and pays its amount to payout. The record is
// closed before the transfer and restored if the transfer fails.
func (l *Ledger) close(b *Bribe, payout common.Address) error {
	if err := l.storage.SaveBribe(emptyBribe(b.WTXID, StatusClosed)); err != nil {
		return err
	}
	if err := l.treasury.Release(payout, b.Amount); err != nil {
		if rerr := l.storage.SaveBribe(b); rerr != nil {
			logger.Errorf("failed to restore bribe after failed transfer: wtxid=%s, err=%v", b.WTXID.String(), rerr)
		}
		return err
	}
	return nil
}

// WithdrawBribe returns the escrowed amount to payout once the unlock delay
// has passed.
func (l *Ledger) WithdrawBribe(caller common.Address, wtxid common.Hash, payout common.Address) error {
	if payout == (common.Address{}) {
		return ErrZeroAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.activeBribe(wtxid)
	if err != nil {
		return err
	}
	if b == nil || b.Briber != caller {
		return ErrNotTheBriber
	}
	if !b.Withdrawable(l.now().Unix()) {
		return ErrBribeStillValid
	}

	if err := l.close(b, payout); err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"wtxid":  wtxid.String(),
		"amount": b.Amount.String(),
		"payout": payout.String(),
	}).Info("bribe withdrawn")

	l.publisher.NotifyWithdrawn(BribeWithdrawnEvent{WTXID: wtxid})
	return nil
}

// GetBribe returns the bribe for wtxid. Closed and unknown bribes have zero
// fields and are told apart by Status.
func (l *Ledger) GetBribe(wtxid common.Hash) (*Bribe, error) {
	b, err := l.storage.GetBribe(wtxid)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return emptyBribe(wtxid, StatusNone), nil
	}
	return b, nil
}

// AcceptRequest admits a signed request from caller once. The request must
// expire in the future but no later than the configured TTL, and the
// (caller, nonce) pair must not have been accepted before it expired.
func (l *Ledger) AcceptRequest(caller common.Address, nonce uint64, expiresAt int64) error {
	now := l.now()
	if expiresAt <= now.Unix() {
		return ErrRequestExpired
	}
	if expiresAt > now.Add(l.cfg.RequestTTL).Unix() {
		return fmt.Errorf("%w: expiry more than %s ahead", ErrRequestExpired, l.cfg.RequestTTL)
	}

	fresh, err := l.storage.UseNonce(caller, nonce, expiresAt, now.Unix())
	if err != nil {
		return err
	}
	if !fresh {
		return ErrNonceUsed
	}
	return nil
}

// RegisterMinerAt registers addr under the index a miner commits to in its
// coinbase, or under the next free index when index is 0. Registering the same pair again is a no-op.
func (l *Ledger) RegisterMinerAt(addr common.Address, index uint64) (uint64, error) {
	if addr == (common.Address{}) {
		return 0, ErrZeroAddress
	}
	if index > math.MaxInt64 {
		return 0, ErrMinerIndexOutOfRange
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if index == 0 {
		index, err = l.storage.InsertMiner(addr)
	} else {
		err = l.registerMinerAt(addr, index)
	}
	if err != nil {
		return 0, err
	}

	logger.WithFields(logger.Fields{
		"miner": addr.String(),
		"index": index,
	}).Debug("miner registered")
	return index, nil
}

func (l *Ledger) registerMinerAt(addr common.Address, index uint64) error {
	current, ok, err := l.storage.MinerIndex(addr)
	if err != nil {
		return err
	}
	if ok {
		if current == index {
			return nil
		}
		return fmt.Errorf("%w: index %d", ErrMinerAlreadyRegistered, current)
	}

	_, taken, err := l.storage.GetMiner(index)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: index %d", ErrMinerIndexTaken, index)
	}
	return l.storage.InsertMinerAt(index, addr)
}

func (l *Ledger) MinerAddress(index uint64) (common.Address, error) {
	addr, ok, err := l.storage.GetMiner(index)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, fmt.Errorf("%w: index %d", ErrMinerNotRegistered, index)
	}
	return addr, nil
}

// ClaimBribe pays the bribe on the claimed transaction to the miner whose
// index is committed in the coinbase of the block that includes it.
func (l *Ledger) ClaimBribe(ctx context.Context, claim *spv.Claim) (*BribeClaimedEvent, error) {
	wtxid := claim.Tx.WTXID
	if wtxid == (common.Hash{}) {
		return nil, ErrZeroWTXID
	}

	newLogger := logger.WithFields(logger.Fields{
		"wtxid":  wtxid.String(),
		"height": claim.Height,
	})

	b, err := l.activeBribe(wtxid)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBribeNotFound
	}

	verdict, err := l.verifier.VerifyClaim(ctx, claim)
	if err != nil {
		newLogger.Debugf("claim rejected: %v", err)
		return nil, err
	}
	if !verdict.HasMiner {
		return nil, fmt.Errorf("%w: coinbase carries no miner index", ErrMinerNotRegistered)
	}
	miner, err := l.MinerAddress(verdict.MinerIndex)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// The bribe may have been withdrawn or claimed while verifying.
	b, err = l.activeBribe(wtxid)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBribeNotFound
	}

	if err := l.close(b, miner); err != nil {
		return nil, err
	}

	ev := BribeClaimedEvent{
		WTXID:      wtxid,
		Miner:      miner,
		MinerIndex: verdict.MinerIndex,
		Amount:     b.Amount,
		BlockHash:  verdict.BlockHash,
		Height:     verdict.Height,
	}
	newLogger.WithFields(logger.Fields{
		"miner":  miner.String(),
		"amount": b.Amount.String(),
		"block":  verdict.BlockHash.String(),
	}).Info("bribe claimed")

	l.publisher.NotifyClaimed(ev)
	return &ev, nil
}

// Events returns the stored events of wtxid in emission order.
func (l *Ledger) Events(wtxid common.Hash) ([]EventRecord, error) {
	return l.storage.GetEvents(wtxid)
}
