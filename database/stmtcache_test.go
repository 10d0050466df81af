package database

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	db, err := OpenSQLite(MemoryDSN)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE kv (key TEXT PRIMARY KEY, value TEXT NOT NULL);`)
	require.NoError(t, err)
	return db
}

func TestStmtCache(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	sc := NewStmtCache(db)
	defer sc.Clear()

	q := `INSERT INTO kv (key, value) VALUES (?, ?)`
	s1, err := sc.Prepare(q)
	require.NoError(t, err)
	s2, err := sc.Prepare(q)
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	_, err = s1.Exec("a", "1")
	assert.NoError(t, err)

	_, err = sc.Prepare(`SELECT nothing FROM nowhere`)
	assert.Error(t, err)
}

func TestWithTx(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	sc := NewStmtCache(db)
	defer sc.Clear()

	insert := `INSERT INTO kv (key, value) VALUES (?, ?)`
	count := func() int {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n))
		return n
	}

	errAbort := errors.New("abort")
	err := WithTx(db, func(tx *sql.Tx) error {
		stmt, err := sc.PrepareTx(tx, insert)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec("a", "1"); err != nil {
			return err
		}
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)
	assert.Equal(t, 0, count())

	err = WithTx(db, func(tx *sql.Tx) error {
		stmt, err := sc.PrepareTx(tx, insert)
		if err != nil {
			return err
		}
		_, err = stmt.Exec("b", "2")
		return err
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, count())
}
