package syncx

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ariefcatur/go-menu-orders.git/internal/orders"
)

// Store is the durable per-outlet client state: active order, completed
// history and last sync time as independent string-keyed entries, cleared
// only by an explicit Clear, never by TTL.
type Store struct {
	db *sql.DB
}

const (
	keyActiveOrder  = "activeOrder"
	keyOrderHistory = "orderHistory"
	keyLastSync     = "lastSync"
)

// completed orders kept per outlet; oldest dropped on write
const historyCap = 50

const schemaSQL = `
CREATE TABLE IF NOT EXISTS outlet_state (
    outlet_id TEXT NOT NULL,
    key       TEXT NOT NULL,
    value     TEXT NOT NULL,
    PRIMARY KEY (outlet_id, key)
);`

// OpenStore creates or opens the sqlite file at path. WAL mode and a single
// writer connection, since sqlite allows one writer at a time.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open client store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect client store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// State is the persisted slice of engine state for one outlet.
type State struct {
	ActiveOrder  *orders.Order
	OrderHistory []orders.Order
	LastSyncTime time.Time
}

// Load tolerates missing keys and corrupt entries: a state that cannot be
// decoded bootstraps as empty rather than failing the engine.
func (s *Store) Load(outletID string) (State, error) {
	var st State

	if raw, ok, err := s.get(outletID, keyActiveOrder); err != nil {
		return st, err
	} else if ok {
		var o orders.Order
		if json.Unmarshal([]byte(raw), &o) == nil {
			st.ActiveOrder = &o
		}
	}

	if raw, ok, err := s.get(outletID, keyOrderHistory); err != nil {
		return st, err
	} else if ok {
		_ = json.Unmarshal([]byte(raw), &st.OrderHistory)
	}

	if raw, ok, err := s.get(outletID, keyLastSync); err != nil {
		return st, err
	} else if ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
			st.LastSyncTime = time.UnixMilli(ms)
		}
	}
	return st, nil
}

// Save writes all three entries in one transaction so a reload never sees
// an active order that is also at the head of history.
func (s *Store) Save(outletID string, st State) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if st.ActiveOrder == nil {
		if _, err := tx.Exec(
			`DELETE FROM outlet_state WHERE outlet_id = ? AND key = ?`,
			outletID, keyActiveOrder); err != nil {
			return fmt.Errorf("clear active order: %w", err)
		}
	} else {
		b, err := json.Marshal(st.ActiveOrder)
		if err != nil {
			return fmt.Errorf("encode active order: %w", err)
		}
		if err := upsert(tx, outletID, keyActiveOrder, string(b)); err != nil {
			return err
		}
	}

	history := st.OrderHistory
	if len(history) > historyCap {
		history = history[:historyCap]
	}
	b, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := upsert(tx, outletID, keyOrderHistory, string(b)); err != nil {
		return err
	}

	ms := strconv.FormatInt(st.LastSyncTime.UnixMilli(), 10)
	if err := upsert(tx, outletID, keyLastSync, ms); err != nil {
		return err
	}
	return tx.Commit()
}

// Clear drops every entry for the outlet.
func (s *Store) Clear(outletID string) error {
	_, err := s.db.Exec(`DELETE FROM outlet_state WHERE outlet_id = ?`, outletID)
	return err
}

func (s *Store) get(outletID, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(
		`SELECT value FROM outlet_state WHERE outlet_id = ? AND key = ?`,
		outletID, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return v, true, nil
}

func upsert(tx *sql.Tx, outletID, key, value string) error {
	_, err := tx.Exec(`
INSERT INTO outlet_state (outlet_id, key, value) VALUES (?, ?, ?)
ON CONFLICT (outlet_id, key) DO UPDATE SET value = excluded.value`,
		outletID, key, value)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
