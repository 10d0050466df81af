package reporter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/TEENet-io/bribe-go/bribe"
	"github.com/TEENet-io/bribe-go/spv"
)

const HEADER_SIGNATURE = "X-Signature"

type BribeJSON struct {
	WTXID      common.Hash    `json:"wTXID"`
	Amount     *big.Int       `json:"amount"`
	Briber     common.Address `json:"briber"`
	IpfsHash   string         `json:"ipfsHash"`
	ValidUntil int64          `json:"validUntil"`
	Status     string         `json:"status"`
}

func newBribeJSON(b *bribe.Bribe) *BribeJSON {
	return &BribeJSON{
		WTXID:      b.WTXID,
		Amount:     b.Amount,
		Briber:     b.Briber,
		IpfsHash:   b.IpfsHash,
		ValidUntil: b.ValidUntil,
		Status:     string(b.Status),
	}
}

type VerdictJSON struct {
	BlockHash  string      `json:"blockHash"` // display order
	Height     uint64      `json:"height"`
	WTXID      common.Hash `json:"wTXID"`
	MinerIndex uint64      `json:"minerIndex"`
	HasMiner   bool        `json:"hasMiner"`
}

func newVerdictJSON(v *spv.Verdict) *VerdictJSON {
	return &VerdictJSON{
		BlockHash:  v.BlockHash.String(),
		Height:     v.Height,
		WTXID:      v.WTXID,
		MinerIndex: v.MinerIndex,
		HasMiner:   v.HasMiner,
	}
}

type MinerJSON struct {
	Index   uint64         `json:"index"`
	Address common.Address `json:"address"`
}

type UnlockJSON struct {
	WTXID      common.Hash `json:"wTXID"`
	ValidUntil int64       `json:"validUntil"`
}

// SignedRequest makes a signed body single use. The server accepts each
// (signer, nonce) pair once and only until ExpiresAt (unix seconds).
type SignedRequest struct {
	Nonce     uint64 `json:"nonce"`
	ExpiresAt int64  `json:"expiresAt"`
}

type RecordTxRequest struct {
	SignedRequest
	WTXID    common.Hash `json:"wTXID"`
	IpfsHash string      `json:"ipfsHash"`
	Amount   *big.Int    `json:"amount"`
}

type UnlockRequest struct {
	SignedRequest
	WTXID common.Hash `json:"wTXID"`
}

type WithdrawRequest struct {
	SignedRequest
	WTXID  common.Hash    `json:"wTXID"`
	Payout common.Address `json:"payout"`
}

// RegisterMinerRequest registers the signer under Index, or under the next
// free index when Index is 0.
type RegisterMinerRequest struct {
	SignedRequest
	Index uint64 `json:"index,omitempty"`
}
