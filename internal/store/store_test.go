package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/janpfeifer/must"
	"github.com/roach88/collcheck/internal/harness"
	"github.com/roach88/collcheck/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func createTestStore(t *testing.T) (*Store, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(epoch)
	s := must.M1(Open(filepath.Join(t.TempDir(), "test.db"), WithClock(clock.Now)))
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func TestOpenCreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for range 3 {
		s, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}
	s := must.M1(Open(path))
	defer s.Close()

	rows, err := s.db.QueryContext(context.Background(), "SELECT name FROM sqlite_master WHERE type='table' AND name='runs'")
	require.NoError(t, err)
	defer rows.Close()
	assert.True(t, rows.Next())
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s := must.M1(Open(path))
	_, err := s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestCloseTwice(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func runOutcome(t *testing.T, name string, ids harness.RunIDGenerator) (*harness.Scenario, *harness.Outcome) {
	t.Helper()
	s := must.M1(harness.LoadScenario(filepath.Join("..", "harness", "testdata", "scenarios", name)))
	return s, harness.Run(context.Background(), s, harness.WithBackend(harness.Local(8)), harness.WithRunIDs(ids))
}
