package bribe

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	mycommon "github.com/TEENet-io/bribe-go/common"
)

type sqlBribe struct {
	WTXID      string // hex without 0x prefix
	Amount     string // decimal
	Briber     string // hex without 0x prefix
	IpfsHash   string
	ValidUntil int64
	Status     string
}

func (s *sqlBribe) encode(b *Bribe) *sqlBribe {
	amount := "0"
	if b.Amount != nil {
		amount = b.Amount.String()
	}

	s.WTXID = mycommon.Trim0xPrefix(b.WTXID.String())
	s.Amount = amount
	s.Briber = mycommon.ByteSliceToPureHexStr(b.Briber.Bytes())
	s.IpfsHash = b.IpfsHash
	s.ValidUntil = b.ValidUntil
	s.Status = string(b.Status)

	return s
}

func (s *sqlBribe) decode() (*Bribe, error) {
	amount, ok := new(big.Int).SetString(s.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("stored amount %q is not a decimal", s.Amount)
	}

	return &Bribe{
		WTXID:      mycommon.HexStrToBytes32(s.WTXID),
		Amount:     amount,
		Briber:     common.HexToAddress(s.Briber),
		IpfsHash:   s.IpfsHash,
		ValidUntil: s.ValidUntil,
		Status:     Status(s.Status),
	}, nil
}
