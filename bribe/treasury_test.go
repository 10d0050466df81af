package bribe

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mycommon "github.com/TEENet-io/bribe-go/common"
	"github.com/TEENet-io/bribe-go/database"
)

func TestTreasury(t *testing.T) {
	db, err := database.OpenSQLite(database.MemoryDSN)
	require.NoError(t, err)
	defer db.Close()
	tr, err := NewSQLiteTreasury(db)
	require.NoError(t, err)
	defer tr.Close()

	alice, bob := mycommon.RandEthAddress(), mycommon.RandEthAddress()
	bal := func(f func() (*big.Int, error)) int64 {
		b, err := f()
		require.NoError(t, err)
		return b.Int64()
	}
	balanceOf := func(a common.Address) func() (*big.Int, error) {
		return func() (*big.Int, error) { return tr.Balance(a) }
	}

	assert.ErrorIs(t, tr.Fund(alice, big.NewInt(0)), ErrInvalidAmount)
	require.NoError(t, tr.Fund(alice, big.NewInt(100)))
	require.NoError(t, tr.Fund(alice, big.NewInt(50)))
	assert.Equal(t, int64(150), bal(balanceOf(alice)))
	assert.Equal(t, int64(0), bal(balanceOf(bob)))

	assert.ErrorIs(t, tr.Escrow(alice, big.NewInt(151)), ErrInsufficientFunds)
	assert.ErrorIs(t, tr.Escrow(alice, big.NewInt(-1)), ErrInvalidAmount)
	require.NoError(t, tr.Escrow(alice, big.NewInt(120)))
	assert.Equal(t, int64(30), bal(balanceOf(alice)))
	assert.Equal(t, int64(120), bal(tr.Escrowed))

	assert.ErrorIs(t, tr.Release(bob, big.NewInt(121)), ErrInsufficientEscrow)
	require.NoError(t, tr.Release(bob, big.NewInt(120)))
	assert.Equal(t, int64(120), bal(balanceOf(bob)))
	assert.Equal(t, int64(0), bal(tr.Escrowed))
	assert.Equal(t, int64(30), bal(balanceOf(alice)))
}
