package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/weft/internal/testutil"
)

var testEpoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// createTestStore creates a store in a temp dir with a stepping clock and
// sequential revision IDs.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path,
		WithClock(testutil.NewStepClock(testEpoch, time.Second).Now),
		WithIDs(testutil.NewSequenceIDs("rev")),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
