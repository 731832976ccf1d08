package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/tablepilot/internal/pilot"
)

func TestSnapshotStoreLatestAndEviction(t *testing.T) {
	t.Parallel()

	store := NewSnapshotStore(2)
	ctx := context.Background()

	if _, err := store.LatestSnapshot(ctx); !errors.Is(err, pilot.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}

	base := time.Unix(1700000000, 0).UTC()
	for i, id := range []string{"s1", "s2", "s3"} {
		snap := pilot.Snapshot{
			ID:      id,
			TakenAt: base.Add(time.Duration(i) * time.Minute),
			Hash:    id + "-hash",
			Entries: []pilot.TableEntry{{ID: "t1", Name: "Lucky Dragon"}},
		}
		if err := store.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("SaveSnapshot(%s) error = %v", id, err)
		}
	}

	latest, err := store.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LatestSnapshot() error = %v", err)
	}
	if latest.ID != "s3" {
		t.Fatalf("expected latest s3, got %s", latest.ID)
	}
	if len(store.snaps) != 2 {
		t.Fatalf("expected eviction to cap history at 2, got %d", len(store.snaps))
	}

	latest.Entries[0].Name = "mutated"
	again, _ := store.LatestSnapshot(ctx)
	if again.Entries[0].Name != "Lucky Dragon" {
		t.Fatal("expected LatestSnapshot to return a copy")
	}
}
