package storage

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestSQLiteEnsureUserInsertOnce(t *testing.T) {
	s := newTestSQLite(t)

	require.NoError(t, s.EnsureUser(&User{UserId: 1, Username: "alice", FirstName: "Alice", LastName: "Doe"}))
	require.NoError(t, s.EnsureUser(&User{UserId: 1, Username: "renamed", FirstName: "Al", LastName: "D"}))

	var username string
	err := s.db.QueryRow(`SELECT username FROM users WHERE user_id = 1`).Scan(&username)
	require.NoError(t, err)
	assert.Equal(t, "alice", username, "attributes must not refresh on repeat contact")
}

func TestSQLiteUsageCounts(t *testing.T) {
	s := newTestSQLite(t)

	require.NoError(t, s.EnsureUser(&User{UserId: 1}))

	counts, err := s.UsageCounts(1)
	require.NoError(t, err)
	assert.Empty(t, counts)

	require.NoError(t, s.IncrementUsage(1, "gpt"))
	require.NoError(t, s.IncrementUsage(1, "gpt"))
	require.NoError(t, s.IncrementUsage(1, "audio-to-text"))

	counts, err = s.UsageCounts(1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"gpt": 2, "audio-to-text": 1}, counts)
}

func TestSQLiteConnectionPragmas(t *testing.T) {
	s := newTestSQLite(t)

	var mode string
	require.NoError(t, s.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, s.db.QueryRow(`PRAGMA busy_timeout`).Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestSQLiteIncrementConcurrent(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.EnsureUser(&User{UserId: 7}))

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				assert.NoError(t, s.IncrementUsage(7, "gpt"))
			}
		}()
	}
	wg.Wait()

	counts, err := s.UsageCounts(7)
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, counts["gpt"])
}

func TestSQLiteSelection(t *testing.T) {
	s := newTestSQLite(t)

	tag, err := s.Selection(1)
	require.NoError(t, err)
	assert.Equal(t, "", tag)

	require.NoError(t, s.SetSelection(1, "itt"))
	tag, err = s.Selection(1)
	require.NoError(t, err)
	assert.Equal(t, "itt", tag)

	require.NoError(t, s.SetSelection(1, "att"))
	tag, err = s.Selection(1)
	require.NoError(t, err)
	assert.Equal(t, "att", tag, "last write wins")
}
