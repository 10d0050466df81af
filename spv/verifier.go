package spv

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"
)

// Claim is everything needed to prove a bribed transaction was mined at
// Height. A nil Coinbase selects the direct proof shape.
type Claim struct {
	Coinbase *CoinbaseTx    `json:"coinbase,omitempty"`
	Header   RawBlockHeader `json:"header"`
	Tx       BribedTx       `json:"bribedTx"`
	Height   uint64         `json:"height"`
}

// Proof resolves the claim into its inclusion proof shape.
func (c *Claim) Proof() InclusionProof {
	if c.Coinbase == nil {
		return &DirectProof{Tx: c.Tx}
	}
	return &WitnessProof{Coinbase: *c.Coinbase, Tx: c.Tx}
}

// Verdict is the result of a successful claim verification.
type Verdict struct {
	BlockHash  chainhash.Hash
	Height     uint64
	WTXID      common.Hash
	MinerIndex uint64
	HasMiner   bool // false for direct proofs or coinbases without an index output
}

// Verifier checks claims end to end: header against the block hash source,
// then the transaction against the header.
type Verifier struct {
	headers *HeaderValidator
}

func NewVerifier(source BlockHashSource, params *chaincfg.Params, checkPoW bool) *Verifier {
	return &Verifier{headers: NewHeaderValidator(source, params, checkPoW)}
}

func (v *Verifier) VerifyClaim(ctx context.Context, claim *Claim) (*Verdict, error) {
	newLogger := logger.WithFields(logger.Fields{
		"wtxid":  claim.Tx.WTXID.String(),
		"height": claim.Height,
	})

	if claim.Tx.WTXID == (common.Hash{}) {
		return nil, ErrZeroWTXID
	}

	header, blockHash, err := v.headers.ValidateHeader(ctx, &claim.Header, claim.Height)
	if err != nil {
		newLogger.Debugf("header rejected: %v", err)
		return nil, err
	}

	if err := ValidateBribedTxInclusion(claim.Proof(), header); err != nil {
		newLogger.Debugf("inclusion rejected: %v", err)
		return nil, err
	}

	verdict := &Verdict{
		BlockHash: blockHash,
		Height:    claim.Height,
		WTXID:     claim.Tx.WTXID,
	}
	if claim.Coinbase != nil {
		msgTx, err := claim.Coinbase.Params.MsgTx()
		if err != nil {
			return nil, err
		}
		verdict.MinerIndex, verdict.HasMiner = MinerIndex(msgTx)
	}

	newLogger.WithField("block", blockHash.String()).Info("claim verified")
	return verdict, nil
}
