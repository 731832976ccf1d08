// Package poller maintains the background lobby snapshot loop.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tablepilot/internal/metrics"
	"github.com/JakeFAU/tablepilot/internal/pilot"
)

const defaultInterval = 15 * time.Second

// Config controls the polling cadence and change notifications.
type Config struct {
	// Interval is how often the lobby is re-read.
	Interval time.Duration
	// Topic is the Pub/Sub topic for lobby-changed events; empty disables
	// publishing.
	Topic string
}

// LobbyFetcher yields the current lobby entries. *pilot.Scheduler satisfies
// this.
type LobbyFetcher interface {
	Fetch(ctx context.Context, params map[string]string) pilot.FetchResult
}

// Poller periodically fetches the lobby, persists each fresh observation as
// a Snapshot, and publishes an event whenever the entry list changes.
type Poller struct {
	fetcher   LobbyFetcher
	store     pilot.SnapshotStore
	publisher pilot.Publisher
	hasher    pilot.Hasher
	ids       pilot.IDGenerator
	clock     pilot.Clock
	cfg       Config
	logger    *zap.Logger

	lastHash string
}

// New constructs a Poller.
func New(
	fetcher LobbyFetcher,
	store pilot.SnapshotStore,
	publisher pilot.Publisher,
	hasher pilot.Hasher,
	ids pilot.IDGenerator,
	clock pilot.Clock,
	cfg Config,
	logger *zap.Logger,
) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		fetcher:   fetcher,
		store:     store,
		publisher: publisher,
		hasher:    hasher,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run polls immediately, then on every interval tick until the context
// finishes. Only the Poller goroutine touches lastHash.
func (p *Poller) Run(ctx context.Context) {
	p.seedLastHash(ctx)
	p.pollOnce(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// seedLastHash primes change detection from the persisted snapshot so a
// restart does not re-announce an unchanged lobby.
func (p *Poller) seedLastHash(ctx context.Context) {
	snap, err := p.store.LatestSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, pilot.ErrNoSnapshot) {
			p.logger.Warn("latest snapshot unavailable", zap.Error(err))
		}
		return
	}
	p.lastHash = snap.Hash
}

func (p *Poller) pollOnce(ctx context.Context) {
	result := p.fetcher.Fetch(ctx, nil)
	if len(result.Entries) == 0 {
		p.logger.Warn("lobby poll produced no entries", zap.Strings("errors", result.Errors))
		return
	}
	if result.FromCache {
		return
	}

	hash, err := p.hashEntries(result.Entries)
	if err != nil {
		p.logger.Error("hash lobby entries failed", zap.Error(err))
		return
	}
	changed := hash != p.lastHash
	metrics.ObserveSnapshot(changed)

	id, err := p.ids.NewID()
	if err != nil {
		p.logger.Error("generate snapshot id failed", zap.Error(err))
		return
	}
	snap := pilot.Snapshot{
		ID:       id,
		TakenAt:  p.now(),
		Strategy: result.Strategy,
		Hash:     hash,
		Elapsed:  result.Elapsed,
		Entries:  result.Entries,
	}
	if err := p.store.SaveSnapshot(ctx, snap); err != nil {
		p.logger.Error("save snapshot failed", zap.String("snapshot_id", id), zap.Error(err))
		return
	}
	p.lastHash = hash

	if !changed {
		return
	}
	p.logger.Info("lobby changed",
		zap.String("snapshot_id", id),
		zap.String("strategy", string(result.Strategy)),
		zap.Int("entries", len(result.Entries)),
	)
	if err := p.publishChange(ctx, snap); err != nil {
		p.logger.Warn("lobby event publish failed", zap.String("snapshot_id", id), zap.Error(err))
	}
}

func (p *Poller) hashEntries(entries []pilot.TableEntry) (string, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return p.hasher.Hash(data)
}

func (p *Poller) publishChange(ctx context.Context, snap pilot.Snapshot) error {
	if p.cfg.Topic == "" || p.publisher == nil {
		return nil
	}
	payload := map[string]any{
		"snapshot_id": snap.ID,
		"hash":        snap.Hash,
		"strategy":    string(snap.Strategy),
		"entry_count": len(snap.Entries),
		"taken_at":    snap.TakenAt.Format(time.RFC3339),
	}
	_, err := p.publisher.Publish(ctx, p.cfg.Topic, payload)
	return err
}

func (p *Poller) now() time.Time {
	if p.clock != nil {
		return p.clock.Now()
	}
	return time.Now().UTC()
}
