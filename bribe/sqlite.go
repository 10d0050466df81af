package bribe

import (
	"database/sql"
	"encoding/json"
	"math"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	mycommon "github.com/TEENet-io/bribe-go/common"
	"github.com/TEENet-io/bribe-go/database"
)

// Storage persists bribe records, the miner registry and emitted events.
type Storage interface {
	// GetBribe returns nil when wtxid was never recorded.
	GetBribe(wtxid common.Hash) (*Bribe, error)
	// SaveBribe inserts or replaces the record for b.WTXID.
	SaveBribe(b *Bribe) error

	// InsertMiner registers addr and returns its index. Registering the same
	// address again returns the existing index.
	InsertMiner(addr common.Address) (uint64, error)
	// InsertMinerAt registers addr under a chosen index.
	InsertMinerAt(index uint64, addr common.Address) error
	GetMiner(index uint64) (common.Address, bool, error)
	MinerIndex(addr common.Address) (uint64, bool, error)

	// UseNonce records (caller, nonce) until expiresAt and reports whether
	// the pair was unused. Pairs that expired before now are forgotten.
	UseNonce(caller common.Address, nonce uint64, expiresAt, now int64) (bool, error)

	AddEvent(wtxid common.Hash, kind EventKind, data any) error
	GetEvents(wtxid common.Hash) ([]EventRecord, error)
}

var _ Storage = (*SQLiteStorage)(nil)

type SQLiteStorage struct {
	stmtCache *database.StmtCache
}

func NewSQLiteStorage(db *sql.DB) (*SQLiteStorage, error) {
	// 1. Create the tables.
	if _, err := db.Exec(bribeTable + minerTable + eventTable + nonceTable); err != nil {
		return nil, err
	}

	// 2. A stmt cache + db.
	return &SQLiteStorage{
		stmtCache: database.NewStmtCache(db),
	}, nil
}

func (st *SQLiteStorage) Close() {
	st.stmtCache.Clear()
}

func (st *SQLiteStorage) GetBribe(wtxid common.Hash) (*Bribe, error) {
	query := `SELECT` + bribeParamList + `FROM bribe WHERE wtxid = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}

	var s sqlBribe
	err = stmt.QueryRow(mycommon.Trim0xPrefix(wtxid.String())).
		Scan(&s.WTXID, &s.Amount, &s.Briber, &s.IpfsHash, &s.ValidUntil, &s.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return s.decode()
}

func (st *SQLiteStorage) SaveBribe(b *Bribe) error {
	query := `INSERT OR REPLACE INTO bribe (` + bribeParamList + `) VALUES (?, ?, ?, ?, ?, ?)`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	s := (&sqlBribe{}).encode(b)
	_, err = stmt.Exec(s.WTXID, s.Amount, s.Briber, s.IpfsHash, s.ValidUntil, s.Status)
	return err
}

func (st *SQLiteStorage) InsertMiner(addr common.Address) (uint64, error) {
	query := `INSERT OR IGNORE INTO miner (address) VALUES (?)`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return 0, err
	}

	addrHex := mycommon.ByteSliceToPureHexStr(addr.Bytes())
	if _, err := stmt.Exec(addrHex); err != nil {
		return 0, err
	}

	stmt, err = st.stmtCache.Prepare(`SELECT idx FROM miner WHERE address = ?`)
	if err != nil {
		return 0, err
	}
	var idx uint64
	if err := stmt.QueryRow(addrHex).Scan(&idx); err != nil {
		return 0, err
	}
	return idx, nil
}

func (st *SQLiteStorage) InsertMinerAt(index uint64, addr common.Address) error {
	if index > math.MaxInt64 {
		return ErrMinerIndexOutOfRange
	}
	stmt, err := st.stmtCache.Prepare(`INSERT INTO miner (idx, address) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(int64(index), mycommon.ByteSliceToPureHexStr(addr.Bytes()))
	return err
}

func (st *SQLiteStorage) MinerIndex(addr common.Address) (uint64, bool, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT idx FROM miner WHERE address = ?`)
	if err != nil {
		return 0, false, err
	}

	var idx uint64
	if err := stmt.QueryRow(mycommon.ByteSliceToPureHexStr(addr.Bytes())).Scan(&idx); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return idx, true, nil
}

func (st *SQLiteStorage) GetMiner(index uint64) (common.Address, bool, error) {
	// sqlite integers are signed
	if index > math.MaxInt64 {
		return common.Address{}, false, nil
	}
	stmt, err := st.stmtCache.Prepare(`SELECT address FROM miner WHERE idx = ?`)
	if err != nil {
		return common.Address{}, false, err
	}

	var addrHex string
	if err := stmt.QueryRow(int64(index)).Scan(&addrHex); err != nil {
		if err == sql.ErrNoRows {
			return common.Address{}, false, nil
		}
		return common.Address{}, false, err
	}
	return common.HexToAddress(addrHex), true, nil
}

func (st *SQLiteStorage) UseNonce(caller common.Address, nonce uint64, expiresAt, now int64) (bool, error) {
	var fresh bool
	err := database.WithTx(st.stmtCache.DB(), func(tx *sql.Tx) error {
		stmt, err := st.stmtCache.PrepareTx(tx, `DELETE FROM request_nonce WHERE expiresAt < ?`)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(now); err != nil {
			return err
		}

		stmt, err = st.stmtCache.PrepareTx(tx, `INSERT OR IGNORE INTO request_nonce (caller, nonce, expiresAt) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		res, err := stmt.Exec(mycommon.ByteSliceToPureHexStr(caller.Bytes()), strconv.FormatUint(nonce, 10), expiresAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		fresh = n == 1
		return nil
	})
	return fresh, err
}

func (st *SQLiteStorage) AddEvent(wtxid common.Hash, kind EventKind, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}

	stmt, err := st.stmtCache.Prepare(`INSERT INTO event (wtxid, kind, data) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(mycommon.Trim0xPrefix(wtxid.String()), string(kind), string(b))
	return err
}

func (st *SQLiteStorage) GetEvents(wtxid common.Hash) ([]EventRecord, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT id, kind, data FROM event WHERE wtxid = ? ORDER BY id`)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(mycommon.Trim0xPrefix(wtxid.String()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var (
			r    EventRecord
			kind string
			data string
		)
		if err := rows.Scan(&r.ID, &kind, &data); err != nil {
			return nil, err
		}
		r.WTXID = wtxid
		r.Kind = EventKind(kind)
		r.Data = json.RawMessage(data)
		records = append(records, r)
	}
	return records, rows.Err()
}
