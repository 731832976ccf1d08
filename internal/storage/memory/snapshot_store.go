package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/tablepilot/internal/pilot"
)

// SnapshotStore keeps a bounded history of lobby snapshots in memory.
type SnapshotStore struct {
	mu    sync.RWMutex
	snaps []pilot.Snapshot
	limit int
}

const defaultSnapshotLimit = 256

// NewSnapshotStore creates a snapshot store holding at most limit entries;
// limit <= 0 uses the default.
func NewSnapshotStore(limit int) *SnapshotStore {
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}
	return &SnapshotStore{limit: limit}
}

// SaveSnapshot appends a snapshot, evicting the oldest past the limit.
func (s *SnapshotStore) SaveSnapshot(_ context.Context, snap pilot.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Entries = append([]pilot.TableEntry(nil), snap.Entries...)
	s.snaps = append(s.snaps, snap)
	if len(s.snaps) > s.limit {
		s.snaps = s.snaps[len(s.snaps)-s.limit:]
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot, or ErrNoSnapshot when none
// was saved yet.
func (s *SnapshotStore) LatestSnapshot(_ context.Context) (pilot.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.snaps) == 0 {
		return pilot.Snapshot{}, pilot.ErrNoSnapshot
	}
	snap := s.snaps[len(s.snaps)-1]
	snap.Entries = append([]pilot.TableEntry(nil), snap.Entries...)
	return snap, nil
}
