package bribe

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultUnlockDelay = 14 * 24 * time.Hour
	DefaultRequestTTL  = 10 * time.Minute
)

type Status string

const (
	StatusNone            Status = ""                 // never recorded
	StatusOpen            Status = "open"             // escrowed, briber may request unlock
	StatusUnlockRequested Status = "unlock_requested" // withdrawable once ValidUntil is reached
	StatusClosed          Status = "closed"           // withdrawn or claimed, fields zeroed
)

type Bribe struct {
	WTXID      common.Hash
	Amount     *big.Int
	Briber     common.Address
	IpfsHash   string
	ValidUntil int64 // unix seconds, 0 until unlock is requested
	Status     Status
}

// Active reports whether the bribe still holds escrowed funds.
func (b *Bribe) Active() bool {
	return b.Status == StatusOpen || b.Status == StatusUnlockRequested
}

// Withdrawable reports whether the briber may take the funds back at now.
func (b *Bribe) Withdrawable(now int64) bool {
	return b.Status == StatusUnlockRequested && now >= b.ValidUntil
}

// emptyBribe is what a read returns for a closed or unknown wTXID.
func emptyBribe(wtxid common.Hash, status Status) *Bribe {
	return &Bribe{WTXID: wtxid, Amount: big.NewInt(0), Status: status}
}

type Config struct {
	UnlockDelay time.Duration
	ChannelSize int
	RequestTTL  time.Duration // how far ahead a signed request may expire; 0 = DefaultRequestTTL
}

func DefaultConfig() *Config {
	return &Config{UnlockDelay: DefaultUnlockDelay, ChannelSize: 16, RequestTTL: DefaultRequestTTL}
}

// Events emitted once per state transition.

type BribePlacedEvent struct {
	WTXID    common.Hash `json:"wTXID"`
	Amount   *big.Int    `json:"amount"`
	IpfsHash string      `json:"ipfsHash"`
}

type BribeWithdrawnEvent struct {
	WTXID common.Hash `json:"wTXID"`
}

type BribeClaimedEvent struct {
	WTXID      common.Hash    `json:"wTXID"`
	Miner      common.Address `json:"miner"`
	MinerIndex uint64         `json:"minerIndex"`
	Amount     *big.Int       `json:"amount"`
	BlockHash  chainhash.Hash `json:"blockHash"`
	Height     uint64         `json:"height"`
}

type EventKind string

const (
	EventPlaced    EventKind = "placed"
	EventWithdrawn EventKind = "withdrawn"
	EventClaimed   EventKind = "claimed"
)

// Event is one ledger notification. The payload field matching Kind is set.
type Event struct {
	Kind      EventKind
	WTXID     common.Hash
	Placed    *BribePlacedEvent
	Withdrawn *BribeWithdrawnEvent
	Claimed   *BribeClaimedEvent
}

// Data returns the payload stored for the event.
func (e *Event) Data() any {
	switch e.Kind {
	case EventPlaced:
		return e.Placed
	case EventWithdrawn:
		return e.Withdrawn
	default:
		return e.Claimed
	}
}

// EventRecord is an event as kept for indexers.
type EventRecord struct {
	ID    int64           `json:"id"`
	WTXID common.Hash     `json:"wTXID"`
	Kind  EventKind       `json:"kind"`
	Data  json.RawMessage `json:"data"`
}
