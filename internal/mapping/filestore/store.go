package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/mnitnetwork/otp-relay/internal/mapping"
)

const (
	lockSuffix         = ".lock"
	defaultLockTimeout = 5 * time.Second
	lockRetryStep      = 50 * time.Millisecond
)

// ErrLockTimeout is reported when the advisory file lock is not acquired
// within the bounded wait. Callers treat it as a degraded write, never a
// blocking fault.
var ErrLockTimeout = errors.New("filestore: lock acquisition timed out")

// Store owns the persisted number -> subscriber table: a single JSON object
// file plus a sidecar ".lock" file. It holds a guarded in-memory snapshot
// and rewrites the whole file on every Put. Puts are serialized by an
// in-process mutex and, across processes, by the advisory file lock.
//
// Reads and writes degrade rather than fail: a missing or unreadable file
// loads as an empty table, and a failed write leaves the snapshot as the
// current process's source of truth. Losing an OTP's routing is worse than
// running on a slightly stale backing file.
type Store struct {
	path        string
	lock        *flock.Flock
	logger      *slog.Logger
	lockTimeout time.Duration

	mu   sync.Mutex
	snap *mapping.Mappings
}

// Open loads the mapping table from path, creating an empty table when no
// persisted state exists yet.
func Open(path string, logger *slog.Logger) *Store {
	s := &Store{
		path:        path,
		lock:        flock.New(path + lockSuffix),
		logger:      logger.With("component", "filestore", "path", path),
		lockTimeout: defaultLockTimeout,
	}
	s.snap = s.load(context.Background())
	return s
}

// Snapshot returns a copy of the current table. Safe for concurrent use.
func (s *Store) Snapshot() *mapping.Mappings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Put records number -> id and persists the updated table. The whole
// load-modify-save sequence runs under both guards so concurrent Puts cannot
// lose each other's writes. Lock and storage failures are logged and
// absorbed; the in-memory snapshot is updated in every case.
func (s *Store) Put(ctx context.Context, number string, id mapping.SubscriberID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquireLock(ctx); err != nil {
		s.logger.WarnContext(ctx, "Skipping durable write, file lock not acquired",
			"error", err, "number", number)
		s.snap.Put(number, id)
		return
	}
	defer s.unlock()

	merged := s.read(ctx)
	// Union with the snapshot: an earlier put whose durable write failed
	// only lives in memory and must stay routable. Disk wins for keys
	// present in both, it may carry writes from another process.
	for _, n := range s.snap.Numbers() {
		if _, ok := merged.Get(n); !ok {
			snapID, _ := s.snap.Get(n)
			merged.Put(n, snapID)
		}
	}
	merged.Put(number, id)
	s.snap = merged
	s.write(ctx, merged)
}

func (s *Store) load(ctx context.Context) *mapping.Mappings {
	if err := s.acquireLock(ctx); err != nil {
		s.logger.WarnContext(ctx, "Loading mappings without file lock", "error", err)
		return s.read(ctx)
	}
	defer s.unlock()
	return s.read(ctx)
}

func (s *Store) read(ctx context.Context) *mapping.Mappings {
	m := mapping.NewMappings()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.ErrorContext(ctx, "Failed to read mappings file, treating as empty", "error", err)
		}
		return m
	}
	if err := json.Unmarshal(data, m); err != nil {
		s.logger.ErrorContext(ctx, "Failed to decode mappings file, treating as empty", "error", err)
		return mapping.NewMappings()
	}
	return m
}

func (s *Store) write(ctx context.Context, m *mapping.Mappings) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to encode mappings", "error", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		s.logger.ErrorContext(ctx, "Failed to write mappings file", "error", err)
	}
}

func (s *Store) acquireLock(ctx context.Context) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, lockRetryStep)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLockTimeout
		}
		return err
	}
	if !locked {
		return ErrLockTimeout
	}
	return nil
}

func (s *Store) unlock() {
	if err := s.lock.Unlock(); err != nil {
		s.logger.Error("Failed to release file lock", "error", err)
	}
}
