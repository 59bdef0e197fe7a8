package filestore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnitnetwork/otp-relay/internal/mapping"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")
	s := Open(path, testLogger())
	assert.Equal(t, 0, s.Snapshot().Len())
}

func TestOpenCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	s := Open(path, testLogger())
	assert.Equal(t, 0, s.Snapshot().Len())
}

func TestPutPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")

	s := Open(path, testLogger())
	s.Put(context.Background(), "8801799999", 42)

	id, ok := s.Snapshot().Get("8801799999")
	require.True(t, ok)
	assert.Equal(t, mapping.SubscriberID(42), id)

	reopened := Open(path, testLogger())
	id, ok = reopened.Snapshot().Get("8801799999")
	require.True(t, ok)
	assert.Equal(t, mapping.SubscriberID(42), id)
}

func TestPutOverwritesOwnerOnReallocation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")
	s := Open(path, testLogger())

	s.Put(context.Background(), "8801799999", 1)
	s.Put(context.Background(), "8801799999", 2)

	id, ok := Open(path, testLogger()).Snapshot().Get("8801799999")
	require.True(t, ok)
	assert.Equal(t, mapping.SubscriberID(2), id)
}

func TestConcurrentPutsLoseNoUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")
	s := Open(path, testLogger())

	numbers := []string{
		"8801711111", "8801722222", "8801733333", "8801744444",
		"8801755555", "8801766666", "8801777777", "8801788888",
	}

	var wg sync.WaitGroup
	for i, n := range numbers {
		wg.Add(1)
		go func(n string, id mapping.SubscriberID) {
			defer wg.Done()
			s.Put(context.Background(), n, id)
		}(n, mapping.SubscriberID(i+1))
	}
	wg.Wait()

	snap := Open(path, testLogger()).Snapshot()
	require.Equal(t, len(numbers), snap.Len())
	for i, n := range numbers {
		id, ok := snap.Get(n)
		require.True(t, ok, "number %s missing after concurrent puts", n)
		assert.Equal(t, mapping.SubscriberID(i+1), id)
	}
}

func TestPutKeepsSnapshotWhenWriteFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mappings.json")
	s := Open(path, testLogger())

	// Make the data file path unwritable by turning it into a directory.
	require.NoError(t, os.Mkdir(path, 0o700))

	s.Put(context.Background(), "8801799999", 42)

	id, ok := s.Snapshot().Get("8801799999")
	require.True(t, ok, "in-memory snapshot must survive a failed durable write")
	assert.Equal(t, mapping.SubscriberID(42), id)

	// A later put must not push the earlier memory-only mapping out of the
	// snapshot.
	s.Put(context.Background(), "8801788888", 7)

	snap := s.Snapshot()
	id, ok = snap.Get("8801799999")
	require.True(t, ok, "earlier mapping lost by a subsequent put")
	assert.Equal(t, mapping.SubscriberID(42), id)
	id, ok = snap.Get("8801788888")
	require.True(t, ok)
	assert.Equal(t, mapping.SubscriberID(7), id)
}

func TestPutMergesSnapshotWithDiskState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")
	s := Open(path, testLogger())
	s.Put(context.Background(), "8801711111", 1)

	// Replace the backing file behind the store's back, dropping the number
	// it already holds. This is what the table looks like when a durable
	// write was lost or another process rewrote the file.
	stale := []byte(`{"8801722222": 2}`)
	require.NoError(t, os.WriteFile(path, stale, 0o600))

	s.Put(context.Background(), "8801733333", 3)

	snap := s.Snapshot()
	for n, want := range map[string]mapping.SubscriberID{
		"8801711111": 1,
		"8801722222": 2,
		"8801733333": 3,
	} {
		id, ok := snap.Get(n)
		require.True(t, ok, "number %s missing after merge", n)
		assert.Equal(t, want, id)
	}
}

func TestPutPrefersDiskOwnerOnConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")
	s := Open(path, testLogger())
	s.Put(context.Background(), "8801711111", 1)

	// Another process reallocated the number on disk.
	require.NoError(t, os.WriteFile(path, []byte(`{"8801711111": 9}`), 0o600))

	s.Put(context.Background(), "8801733333", 3)

	id, ok := s.Snapshot().Get("8801711111")
	require.True(t, ok)
	assert.Equal(t, mapping.SubscriberID(9), id)
}

func TestPutReturnsWithinLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")
	s := Open(path, testLogger())
	s.lockTimeout = 100 * time.Millisecond

	held := flock.New(path + lockSuffix)
	require.NoError(t, held.Lock())
	defer held.Unlock()

	start := time.Now()
	s.Put(context.Background(), "8801799999", 42)
	assert.Less(t, time.Since(start), 3*time.Second, "put must give up on the file lock")

	id, ok := s.Snapshot().Get("8801799999")
	require.True(t, ok, "snapshot must be updated even without the file lock")
	assert.Equal(t, mapping.SubscriberID(42), id)

	// The durable write was skipped while the lock was held elsewhere.
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
