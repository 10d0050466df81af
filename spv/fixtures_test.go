package spv

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Regtest block mined by a bribe-aware miner: coinbase at index 0, the bribed
// transaction at index 1, witness commitment and miner index in the coinbase.
const (
	fixtureHeight = 52641

	// display order
	fixtureBlockHash = "6314592aab6b22bfd4556424b7b0777bcd2d615e7a6108359a4ff3bbf7a2a6c7"
	// internal order
	fixtureCoinbaseTxID = "02c40db21a9c8d496e7469ad77752b173c05c10a6a7f4c959acfaecffeeae28d"
	fixtureWitnessRoot  = "da927053edb38bd5446e669622a3cceef7e23d727075297c035c0f56639773f0"
)

func fixtureHeader() RawBlockHeader {
	return RawBlockHeader{
		Version:    hexutil.MustDecode("0x00000020"),
		PrevBlock:  hexutil.MustDecode("0xc39d77db298add34c9e059d2b6581fe6563feb5b30e4a6a4fa0c8bb9b266b625"),
		MerkleRoot: hexutil.MustDecode("0x0c9d9455e1fdb4487706621290dfa896cfd73f68ce9be858ec3ba2a8e8810968"),
		Time:       hexutil.MustDecode("0x82b87d67"),
		Bits:       hexutil.MustDecode("0xffff7f20"),
		Nonce:      hexutil.MustDecode("0x00000000"),
	}
}

func fixtureCoinbase() CoinbaseTx {
	return CoinbaseTx{
		Params: TxParams{
			Version:  hexutil.MustDecode("0x02000000"),
			Inputs:   hexutil.MustDecode("0x010000000000000000000000000000000000000000000000000000000000000000ffffffff0403a1cd00fdffffff"),
			Outputs:  hexutil.MustDecode("0x0300000000000000001600142ae1df7f8d8251fb543c333f4a838d133170b2020000000000000000266a24aa21a9ed84e963438d247aee0bbf65c9f28856d6ed1ce9d1eebe20cbb9d38b472078085300000000000000000a6a080000000000000001"),
			Locktime: hexutil.MustDecode("0x00000000"),
		},
		Proof: hexutil.MustDecode("0xb1d36f6fd95eb480f0e30adbab3d527e20e1324e6f32f983bc015f25d6376a8c"),
		Index: 0,
	}
}

func fixtureBribedTx() BribedTx {
	return BribedTx{
		WTXID: common.HexToHash("0x97722D07C233FAA5752DB046E0BA85D06ECD911425DD5A4816CDD00CB3EB71A0"),
		Proof: hexutil.MustDecode("0x0000000000000000000000000000000000000000000000000000000000000000"),
		Index: 1,
	}
}

func fixtureClaim() *Claim {
	cb := fixtureCoinbase()
	return &Claim{
		Coinbase: &cb,
		Header:   fixtureHeader(),
		Tx:       fixtureBribedTx(),
		Height:   fixtureHeight,
	}
}

func mustDisplayHash(s string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return *h
}

func mustInternalHash(s string) chainhash.Hash {
	var h chainhash.Hash
	copy(h[:], hexutil.MustDecode("0x"+s))
	return h
}

var errSourceDown = errors.New("source down")

// mapSource serves block hashes from a map; a missing height is an error.
type mapSource map[uint64]chainhash.Hash

func (m mapSource) BlockHash(_ context.Context, height uint64) (chainhash.Hash, error) {
	h, ok := m[height]
	if !ok {
		return chainhash.Hash{}, errSourceDown
	}
	return h, nil
}

func fixtureSource() mapSource {
	return mapSource{fixtureHeight: mustDisplayHash(fixtureBlockHash)}
}
