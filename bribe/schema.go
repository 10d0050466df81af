package bribe

import "strings"

var (
	strZeroBytes32 = strings.Repeat("0", 64)
	strZeroBytes20 = strings.Repeat("0", 40)

	// one row per wTXID; a closed row keeps only its key so the wTXID can be
	// bribed again
	bribeTable = `CREATE TABLE IF NOT EXISTS bribe (
		wtxid CHAR(64) PRIMARY KEY NOT NULL,
		amount TEXT NOT NULL,
		briber CHAR(40) NOT NULL,
		ipfsHash TEXT NOT NULL,
		validUntil BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL,
		CONSTRAINT chk_status CHECK (status IN ('open', 'unlock_requested', 'closed')),
		CONSTRAINT chk_wtxid CHECK (wtxid != '` + strZeroBytes32 + `'),
		CONSTRAINT chk_active CHECK (status = 'closed' OR (amount != '0' AND briber != '` + strZeroBytes20 + `')),
		CONSTRAINT chk_closed CHECK (status != 'closed' OR (amount = '0' AND briber = '` + strZeroBytes20 + `' AND ipfsHash = '' AND validUntil = 0)),
		CONSTRAINT chk_validUntil CHECK (status != 'unlock_requested' OR validUntil > 0)
	);`

	// payout addresses; idx is the value miners put in their coinbase
	minerTable = `CREATE TABLE IF NOT EXISTS miner (
		idx INTEGER PRIMARY KEY AUTOINCREMENT,
		address CHAR(40) UNIQUE NOT NULL,
		CONSTRAINT chk_address CHECK (address != '` + strZeroBytes20 + `')
	);`

	eventTable = `CREATE TABLE IF NOT EXISTS event (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		wtxid CHAR(64) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		data TEXT NOT NULL,
		CONSTRAINT chk_kind CHECK (kind IN ('placed', 'withdrawn', 'claimed'))
	);
	CREATE INDEX IF NOT EXISTS idx_event_wtxid ON event (wtxid);`

	// signed requests accepted per caller; rows are dropped once expired
	nonceTable = `CREATE TABLE IF NOT EXISTS request_nonce (
		caller CHAR(40) NOT NULL,
		nonce TEXT NOT NULL,
		expiresAt BIGINT NOT NULL,
		PRIMARY KEY (caller, nonce)
	);
	CREATE INDEX IF NOT EXISTS idx_request_nonce_expiry ON request_nonce (expiresAt);`

	// balances are decimal strings; the escrow pool is the row keyed 'escrow'
	accountTable = `CREATE TABLE IF NOT EXISTS account (
		account VARCHAR(40) PRIMARY KEY NOT NULL,
		balance TEXT NOT NULL
	);`

	bribeParamList = " wtxid, amount, briber, ipfsHash, validUntil, status "
)
