package history

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLastSyncEmpty(t *testing.T) {
	db := testDB(t)
	_, err := db.LastSync()
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestRecordSyncAndLastSync(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	require.NoError(t, db.RecordSync(Sync{Source: "https://a", Records: 123, Complete: true, SyncedAt: now.Add(-time.Hour)}))
	require.NoError(t, db.RecordSync(Sync{Source: "https://a", Records: 100, Complete: false, Error: "http 500", SyncedAt: now}))

	last, err := db.LastSync()
	require.NoError(t, err)
	assert.Equal(t, 100, last.Records)
	assert.False(t, last.Complete)
	assert.Equal(t, "http 500", last.Error)
}

func TestRecordAnswerAssignsID(t *testing.T) {
	db := testDB(t)

	e, err := db.RecordAnswer(Entry{Question: "Taux ?", Answer: "20 %", Entries: 3})
	require.NoError(t, err)
	assert.Len(t, e.ID, 36)
	assert.False(t, e.AskedAt.IsZero())
}

func TestRecentNewestFirst(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	_, err := db.RecordAnswer(Entry{Question: "old", Answer: "a", AskedAt: now.Add(-2 * time.Hour)})
	require.NoError(t, err)
	_, err = db.RecordAnswer(Entry{Question: "new", Answer: "b", Sentinel: true, AskedAt: now})
	require.NoError(t, err)

	got, err := db.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].Question)
	assert.True(t, got[0].Sentinel)
	assert.Equal(t, "old", got[1].Question)

	limited, err := db.Recent(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPrune(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	_, err := db.RecordAnswer(Entry{Question: "ancient", Answer: "a", AskedAt: now.Add(-48 * time.Hour)})
	require.NoError(t, err)
	_, err = db.RecordAnswer(Entry{Question: "fresh", Answer: "b", AskedAt: now.Add(-time.Hour)})
	require.NoError(t, err)

	deleted, err := db.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	got, err := db.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].Question)
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")
	db, err := Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.RecordAnswer(Entry{Question: "q", Answer: "a"})
	require.NoError(t, err)

	count, size, err := db.Stats(dbPath)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NotZero(t, size)
}

func TestOpenCreatesDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "deep", "history.db")

	db, err := Open(dbPath)
	require.NoError(t, err)
	db.Close()

	_, err = os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err)
}
