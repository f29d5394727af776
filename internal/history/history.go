package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Sync is one recorded fetch against the remote source.
type Sync struct {
	Source   string
	Records  int
	Complete bool
	Error    string
	SyncedAt time.Time
}

// Entry is one asked question and the reply shown for it.
type Entry struct {
	ID       string
	Question string
	Answer   string
	Sentinel bool
	Entries  int
	AskedAt  time.Time
}

type DB struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath+"?mode=ro")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}

	db := &DB{readDB: readDB, writeDB: writeDB}
	if err := db.init(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) init() error {
	_, err := db.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS syncs (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			source    TEXT NOT NULL,
			records   INTEGER NOT NULL,
			complete  INTEGER NOT NULL,
			error     TEXT NOT NULL DEFAULT '',
			synced_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_syncs_synced_at ON syncs(synced_at DESC);

		CREATE TABLE IF NOT EXISTS questions (
			id       TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			answer   TEXT NOT NULL,
			sentinel INTEGER NOT NULL DEFAULT 0,
			entries  INTEGER NOT NULL DEFAULT 0,
			asked_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_questions_asked_at ON questions(asked_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	var errs []error
	if db.readDB != nil {
		errs = append(errs, db.readDB.Close())
	}
	if db.writeDB != nil {
		errs = append(errs, db.writeDB.Close())
	}
	return errors.Join(errs...)
}

func (db *DB) RecordSync(s Sync) error {
	if s.SyncedAt.IsZero() {
		s.SyncedAt = time.Now()
	}
	_, err := db.writeDB.Exec(`
		INSERT INTO syncs (source, records, complete, error, synced_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.Source, s.Records, s.Complete, s.Error, s.SyncedAt)
	if err != nil {
		return fmt.Errorf("recording sync: %w", err)
	}
	return nil
}

// LastSync returns the most recent sync, or sql.ErrNoRows when there is none.
func (db *DB) LastSync() (Sync, error) {
	var s Sync
	err := db.readDB.QueryRow(`
		SELECT source, records, complete, error, synced_at
		FROM syncs ORDER BY synced_at DESC, id DESC LIMIT 1
	`).Scan(&s.Source, &s.Records, &s.Complete, &s.Error, &s.SyncedAt)
	if err != nil {
		return Sync{}, err
	}
	return s, nil
}

// RecordAnswer stores e and returns it with its ID and time filled in.
func (db *DB) RecordAnswer(e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.AskedAt.IsZero() {
		e.AskedAt = time.Now()
	}
	_, err := db.writeDB.Exec(`
		INSERT INTO questions (id, question, answer, sentinel, entries, asked_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Question, e.Answer, e.Sentinel, e.Entries, e.AskedAt)
	if err != nil {
		return e, fmt.Errorf("recording answer %s: %w", e.ID, err)
	}
	return e, nil
}

// Recent returns the latest questions, newest first.
func (db *DB) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.readDB.Query(`
		SELECT id, question, answer, sentinel, entries, asked_at
		FROM questions ORDER BY asked_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.Sentinel, &e.Entries, &e.AskedAt); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes questions and syncs older than retention.
func (db *DB) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)

	tx, err := db.writeDB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM questions WHERE asked_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning questions: %w", err)
	}
	deleted, _ := res.RowsAffected()

	if _, err := tx.Exec(`DELETE FROM syncs WHERE synced_at < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("pruning syncs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}

// Stats returns the number of stored questions and the database file size.
func (db *DB) Stats(dbPath string) (int, int64, error) {
	var count int
	if err := db.readDB.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count); err != nil {
		return 0, 0, fmt.Errorf("counting questions: %w", err)
	}
	fi, err := os.Stat(dbPath)
	if err != nil {
		return count, 0, err
	}
	return count, fi.Size(), nil
}
