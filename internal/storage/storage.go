// Package storage provides SQLite-backed persistence for tier snapshots,
// snapshot history, tracked positions, recipients, and the trade log.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Riyadh644/stockscout/internal/models"
	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database for all persistence operations.
type Store struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/stockscout/data.db.
func New(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "stockscout", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			tier        TEXT PRIMARY KEY,
			taken_at    INTEGER NOT NULL,
			instruments TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS snapshot_history (
			tier        TEXT NOT NULL,
			day         TEXT NOT NULL,
			taken_at    INTEGER NOT NULL,
			instruments TEXT NOT NULL,
			PRIMARY KEY (tier, day)
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			symbol     TEXT PRIMARY KEY,
			entry      REAL NOT NULL,
			target1    REAL NOT NULL,
			target2    REAL NOT NULL,
			stop_loss  REAL NOT NULL,
			last_alert TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS recipients (
			chat_id  TEXT PRIMARY KEY,
			added_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			symbol     TEXT NOT NULL,
			day        TEXT NOT NULL,
			tier       TEXT NOT NULL,
			entry      REAL NOT NULL,
			score      REAL NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, day)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_day ON trades(day)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ─── Snapshots ───────────────────────────────────────────────────────────────

// LoadCurrent returns the current snapshot for a tier. A tier that has never
// been persisted yields an empty snapshot, not an error.
func (s *Store) LoadCurrent(tier models.Tier) (models.Snapshot, error) {
	row := s.db.QueryRow(`SELECT taken_at, instruments FROM snapshots WHERE tier = ?`, string(tier))

	var takenAtNano int64
	var payload string
	err := row.Scan(&takenAtNano, &payload)
	if err == sql.ErrNoRows {
		return models.Snapshot{Tier: tier}, nil
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to load snapshot for %s: %w", tier, err)
	}

	snap := models.Snapshot{Tier: tier, TakenAt: time.Unix(0, takenAtNano)}
	if err := json.Unmarshal([]byte(payload), &snap.Instruments); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to decode snapshot for %s: %w", tier, err)
	}
	return snap, nil
}

// SaveCurrent atomically replaces the tier's current snapshot. On failure
// the previously stored snapshot remains authoritative: the replace happens
// inside a transaction, so a concurrent reader never observes a partial
// write.
func (s *Store) SaveCurrent(snap models.Snapshot) error {
	if !snap.Tier.Valid() {
		return fmt.Errorf("invalid tier %q", snap.Tier)
	}
	payload, err := json.Marshal(snap.Instruments)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO snapshots (tier, taken_at, instruments)
		VALUES (?,?,?)`,
		string(snap.Tier), snap.TakenAt.UnixNano(), string(payload),
	); err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", snap.Tier, err)
	}
	return tx.Commit()
}

// AppendHistory records the snapshot under (tier, day). Multiple cycles on
// the same day overwrite that day's entry, last write wins.
func (s *Store) AppendHistory(snap models.Snapshot, day string) error {
	payload, err := json.Marshal(snap.Instruments)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if _, err := s.db.Exec(`
		INSERT OR REPLACE INTO snapshot_history (tier, day, taken_at, instruments)
		VALUES (?,?,?,?)`,
		string(snap.Tier), day, snap.TakenAt.UnixNano(), string(payload),
	); err != nil {
		return fmt.Errorf("failed to append history for %s/%s: %w", snap.Tier, day, err)
	}
	return nil
}

// LoadHistory returns the history entry for (tier, day), or an empty
// snapshot if none was recorded.
func (s *Store) LoadHistory(tier models.Tier, day string) (models.Snapshot, error) {
	row := s.db.QueryRow(`SELECT taken_at, instruments FROM snapshot_history WHERE tier = ? AND day = ?`,
		string(tier), day)

	var takenAtNano int64
	var payload string
	err := row.Scan(&takenAtNano, &payload)
	if err == sql.ErrNoRows {
		return models.Snapshot{Tier: tier}, nil
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to load history for %s/%s: %w", tier, day, err)
	}

	snap := models.Snapshot{Tier: tier, TakenAt: time.Unix(0, takenAtNano)}
	if err := json.Unmarshal([]byte(payload), &snap.Instruments); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to decode history for %s/%s: %w", tier, day, err)
	}
	return snap, nil
}

// ─── Positions ───────────────────────────────────────────────────────────────

// CreatePosition validates and inserts a tracked position. A position that
// already exists for the symbol is left untouched.
func (s *Store) CreatePosition(p models.Position) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid position: %w", err)
	}
	if _, err := s.db.Exec(`
		INSERT OR IGNORE INTO positions (symbol, entry, target1, target2, stop_loss, last_alert, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		p.Symbol, p.Entry, p.Target1, p.Target2, p.StopLoss, string(p.LastAlert), p.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to insert position %s: %w", p.Symbol, err)
	}
	return nil
}

// ListPositions returns all tracked positions ordered by symbol.
func (s *Store) ListPositions() ([]models.Position, error) {
	rows, err := s.db.Query(`
		SELECT symbol, entry, target1, target2, stop_loss, last_alert, created_at
		FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		var lastAlert string
		var createdAtNano int64
		if err := rows.Scan(&p.Symbol, &p.Entry, &p.Target1, &p.Target2, &p.StopLoss, &lastAlert, &createdAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		p.LastAlert = models.ThresholdAlert(lastAlert)
		p.CreatedAt = time.Unix(0, createdAtNano)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// UpdateLastAlert advances the fire-once marker for a position.
func (s *Store) UpdateLastAlert(symbol string, alert models.ThresholdAlert) error {
	res, err := s.db.Exec(`UPDATE positions SET last_alert = ? WHERE symbol = ?`, string(alert), symbol)
	if err != nil {
		return fmt.Errorf("failed to update last alert for %s: %w", symbol, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("position not found: %s", symbol)
	}
	return nil
}

// RemovePosition drops a tracked position.
func (s *Store) RemovePosition(symbol string) error {
	if _, err := s.db.Exec(`DELETE FROM positions WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("failed to remove position %s: %w", symbol, err)
	}
	return nil
}

// ─── Recipients ──────────────────────────────────────────────────────────────

// AddRecipient registers a chat for alert delivery. Idempotent.
func (s *Store) AddRecipient(chatID string) error {
	if chatID == "" {
		return fmt.Errorf("chat ID must not be empty")
	}
	if _, err := s.db.Exec(`
		INSERT OR IGNORE INTO recipients (chat_id, added_at) VALUES (?,?)`,
		chatID, time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to add recipient %s: %w", chatID, err)
	}
	return nil
}

// ListRecipients returns all registered chat IDs. Callers must re-read this
// on every dispatch so a fresh subscriber receives the very next alert.
func (s *Store) ListRecipients() ([]string, error) {
	rows, err := s.db.Query(`SELECT chat_id FROM recipients ORDER BY added_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipients: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ─── Trade log ───────────────────────────────────────────────────────────────

// TradeRecord is one surfaced recommendation, used by the daily performance
// report.
type TradeRecord struct {
	Symbol    string
	Day       string
	Tier      models.Tier
	Entry     float64
	Score     float64
	CreatedAt time.Time
}

// RecordTrade logs a surfaced recommendation, once per (symbol, day).
func (s *Store) RecordTrade(rec TradeRecord) error {
	if _, err := s.db.Exec(`
		INSERT OR IGNORE INTO trades (symbol, day, tier, entry, score, created_at)
		VALUES (?,?,?,?,?,?)`,
		rec.Symbol, rec.Day, string(rec.Tier), rec.Entry, rec.Score, rec.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to record trade %s: %w", rec.Symbol, err)
	}
	return nil
}

// TradesForDay returns the day's recommendations in insertion order.
func (s *Store) TradesForDay(day string) ([]TradeRecord, error) {
	rows, err := s.db.Query(`
		SELECT symbol, day, tier, entry, score, created_at
		FROM trades WHERE day = ? ORDER BY created_at`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		var tier string
		var createdAtNano int64
		if err := rows.Scan(&rec.Symbol, &rec.Day, &tier, &rec.Entry, &rec.Score, &createdAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		rec.Tier = models.Tier(tier)
		rec.CreatedAt = time.Unix(0, createdAtNano)
		out = append(out, rec)
	}
	return out, rows.Err()
}
