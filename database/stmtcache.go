package database

import (
	"database/sql"
	"sync"
)

// StmtCache caches prepared statements by query string.
type StmtCache struct {
	db *sql.DB
	m  sync.Map
}

func NewStmtCache(db *sql.DB) *StmtCache {
	return &StmtCache{db: db}
}

func (sc *StmtCache) DB() *sql.DB {
	return sc.db
}

func (sc *StmtCache) Prepare(query string) (*sql.Stmt, error) {
	cached, _ := sc.m.Load(query)
	if cached == nil {
		stmt, err := sc.db.Prepare(query)
		if err != nil {
			return nil, err
		}
		if prev, loaded := sc.m.LoadOrStore(query, stmt); loaded {
			_ = stmt.Close()
			return prev.(*sql.Stmt), nil
		}
		cached = stmt
	}
	return cached.(*sql.Stmt), nil
}

// PrepareTx returns a statement bound to tx. A statement not cached yet is
// prepared on the transaction itself, since the pool may have no other
// connection to spare.
func (sc *StmtCache) PrepareTx(tx *sql.Tx, query string) (*sql.Stmt, error) {
	if cached, ok := sc.m.Load(query); ok {
		return tx.Stmt(cached.(*sql.Stmt)), nil
	}
	return tx.Prepare(query)
}

func (sc *StmtCache) Clear() {
	sc.m.Range(func(k, v interface{}) bool {
		_ = v.(*sql.Stmt).Close()
		sc.m.Delete(k)
		return true
	})
}
