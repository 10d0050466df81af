package bribe

import (
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	mycommon "github.com/TEENet-io/bribe-go/common"
	"github.com/TEENet-io/bribe-go/database"
)

const (
	escrowAccount = "escrow"

	queryBalance    = `SELECT balance FROM account WHERE account = ?`
	querySetBalance = `INSERT OR REPLACE INTO account (account, balance) VALUES (?, ?)`
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientEscrow = errors.New("escrow holds less than the amount to release")
	ErrInvalidAmount      = errors.New("amount must be positive")
)

// Treasury moves value between accounts and the escrow pool.
type Treasury interface {
	// Escrow moves amount from the account of from into escrow.
	Escrow(from common.Address, amount *big.Int) error
	// Release moves amount out of escrow to the account of to.
	Release(to common.Address, amount *big.Int) error
}

var _ Treasury = (*SQLiteTreasury)(nil)

// SQLiteTreasury keeps balances in the account table.
type SQLiteTreasury struct {
	stmtCache *database.StmtCache
	updateMu  sync.Mutex // prevent concurrent updates
}

func NewSQLiteTreasury(db *sql.DB) (*SQLiteTreasury, error) {
	if _, err := db.Exec(accountTable); err != nil {
		return nil, err
	}
	// Statements are used inside transactions only, so prepare them up front.
	sc := database.NewStmtCache(db)
	for _, q := range []string{queryBalance, querySetBalance} {
		if _, err := sc.Prepare(q); err != nil {
			return nil, err
		}
	}
	return &SQLiteTreasury{stmtCache: sc}, nil
}

func (t *SQLiteTreasury) Close() {
	t.stmtCache.Clear()
}

func accountKey(addr common.Address) string {
	return mycommon.ByteSliceToPureHexStr(addr.Bytes())
}

func (t *SQLiteTreasury) balance(tx *sql.Tx, account string) (*big.Int, error) {
	stmt, err := t.stmtCache.PrepareTx(tx, queryBalance)
	if err != nil {
		return nil, err
	}

	var s string
	if err := stmt.QueryRow(account).Scan(&s); err != nil {
		if err == sql.ErrNoRows {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("stored balance %q of %s is not a decimal", s, account)
	}
	return b, nil
}

func (t *SQLiteTreasury) setBalance(tx *sql.Tx, account string, b *big.Int) error {
	stmt, err := t.stmtCache.PrepareTx(tx, querySetBalance)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(account, b.String())
	return err
}

// transfer moves amount between two accounts in one transaction. short is
// returned when from holds less than amount.
func (t *SQLiteTreasury) transfer(from, to string, amount *big.Int, short error) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	t.updateMu.Lock()
	defer t.updateMu.Unlock()

	return database.WithTx(t.stmtCache.DB(), func(tx *sql.Tx) error {
		fromBal, err := t.balance(tx, from)
		if err != nil {
			return err
		}
		if fromBal.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s has %s, needs %s", short, from, fromBal, amount)
		}
		toBal, err := t.balance(tx, to)
		if err != nil {
			return err
		}

		if err := t.setBalance(tx, from, fromBal.Sub(fromBal, amount)); err != nil {
			return err
		}
		return t.setBalance(tx, to, toBal.Add(toBal, amount))
	})
}

func (t *SQLiteTreasury) Escrow(from common.Address, amount *big.Int) error {
	return t.transfer(accountKey(from), escrowAccount, amount, ErrInsufficientFunds)
}

func (t *SQLiteTreasury) Release(to common.Address, amount *big.Int) error {
	return t.transfer(escrowAccount, accountKey(to), amount, ErrInsufficientEscrow)
}

// Fund credits addr with amount out of thin air. It is how deposits enter
// the ledger.
func (t *SQLiteTreasury) Fund(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	t.updateMu.Lock()
	defer t.updateMu.Unlock()

	err := database.WithTx(t.stmtCache.DB(), func(tx *sql.Tx) error {
		bal, err := t.balance(tx, accountKey(addr))
		if err != nil {
			return err
		}
		return t.setBalance(tx, accountKey(addr), bal.Add(bal, amount))
	})
	if err == nil {
		logger.WithFields(logger.Fields{
			"account": addr.String(),
			"amount":  amount.String(),
		}).Debug("account funded")
	}
	return err
}

func (t *SQLiteTreasury) Balance(addr common.Address) (*big.Int, error) {
	return t.read(accountKey(addr))
}

// Escrowed is the total value currently held for open bribes.
func (t *SQLiteTreasury) Escrowed() (*big.Int, error) {
	return t.read(escrowAccount)
}

func (t *SQLiteTreasury) read(account string) (*big.Int, error) {
	var b *big.Int
	err := database.WithTx(t.stmtCache.DB(), func(tx *sql.Tx) error {
		var err error
		b, err = t.balance(tx, account)
		return err
	})
	return b, err
}
