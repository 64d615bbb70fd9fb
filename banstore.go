package raknet

import (
	"database/sql"
	"errors"

	_ "github.com/mattn/go-sqlite3"
)

// banStore persists an Endpoint's ban list across restarts, grounded on
// HimbeerserverDE-multiserver's ban.go which backs its own ban list with a
// sqlite table of (addr, name) rows. Unlike that version, which opens and
// closes a *sql.DB per call, banStore keeps one connection open for the
// Endpoint's lifetime.
type banStore struct {
	db *sql.DB
}

func openBanStore(path string) (*banStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ban (
		addr TEXT PRIMARY KEY,
		reason TEXT
	);`); err != nil {
		db.Close()
		return nil, err
	}
	return &banStore{db: db}, nil
}

func (bs *banStore) add(addr, reason string) error {
	_, err := bs.db.Exec(`INSERT INTO ban (addr, reason) VALUES (?, ?)
		ON CONFLICT(addr) DO UPDATE SET reason = excluded.reason;`, addr, reason)
	return err
}

func (bs *banStore) remove(addr string) error {
	_, err := bs.db.Exec(`DELETE FROM ban WHERE addr = ?;`, addr)
	return err
}

// list returns every banned IP mapped to its stored reason.
func (bs *banStore) list() map[string]string {
	out := make(map[string]string)
	rows, err := bs.db.Query(`SELECT addr, reason FROM ban;`)
	if err != nil {
		return out
	}
	defer rows.Close()
	for rows.Next() {
		var addr, reason string
		if err := rows.Scan(&addr, &reason); err != nil {
			continue
		}
		out[addr] = reason
	}
	return out
}

func (bs *banStore) close() error {
	if bs.db == nil {
		return errors.New("banstore: already closed")
	}
	err := bs.db.Close()
	bs.db = nil
	return err
}
