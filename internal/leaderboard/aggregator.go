package leaderboard

import (
	"fmt"
	"sync"
	"time"

	"github.com/nantokaworks/gacha-vault/internal/remotedb"
	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"github.com/nantokaworks/gacha-vault/internal/types"
	"go.uber.org/zap"
)

// ViewType identifies one ranked view.
type ViewType string

const (
	ViewTotalPulls ViewType = "total_pulls"
	ViewFiveStars  ViewType = "five_star_count"
)

// Views lists every published view in refresh order.
var Views = []ViewType{ViewTotalPulls, ViewFiveStars}

// minRarity maps a view to the rarity floor of its metric.
func minRarity(view ViewType) int {
	if view == ViewFiveStars {
		return 5
	}
	return 0
}

// Aggregator owns the ranked views: it recomputes them on a timer and
// republishes each one atomically. lastPublishedAt is instance state so
// tests and processes stay isolated; it survives refreshes that
// legitimately produce zero rows, which keeps "no data" distinguishable
// from "data as of time T".
type Aggregator struct {
	interval time.Duration

	refreshMu sync.Mutex // serializes refresh cycles per instance

	pubMu           sync.RWMutex
	lastPublishedAt map[ViewType]time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

func NewAggregator(interval time.Duration) *Aggregator {
	return &Aggregator{
		interval:        interval,
		lastPublishedAt: map[ViewType]time.Time{},
		stop:            make(chan struct{}),
	}
}

// Start runs the refresh loop until Stop. The first refresh happens
// immediately so a freshly booted service publishes without waiting a
// full interval.
func (a *Aggregator) Start() {
	go func() {
		if err := a.RefreshAll(); err != nil {
			logger.Error("Initial leaderboard refresh failed", zap.Error(err))
		}

		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := a.RefreshAll(); err != nil {
					logger.Error("Leaderboard refresh failed", zap.Error(err))
				}
			case <-a.stop:
				return
			}
		}
	}()
}

// Stop terminates the refresh loop.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// RefreshAll recomputes every view. A manual trigger goes through this
// exact path, so forced and timer-driven refreshes are interchangeable.
func (a *Aggregator) RefreshAll() error {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	for _, view := range Views {
		if err := a.refresh(view); err != nil {
			return fmt.Errorf("refresh %s: %w", view, err)
		}
	}
	return nil
}

func (a *Aggregator) refresh(view ViewType) error {
	participants, err := remotedb.ParticipantCounts(minRarity(view))
	if err != nil {
		return err
	}

	now := time.Now()
	rows := make([]remotedb.SnapshotRow, 0, len(participants))
	for i, p := range participants {
		rows = append(rows, remotedb.SnapshotRow{
			OwnerID:   p.OwnerID,
			Rank:      i + 1,
			MaskedKey: MaskKey(p.AccountKey, p.HideIdentifier),
			Value:     p.Value,
			CachedAt:  now,
		})
	}

	// 旧行の削除と新行の挿入は同一トランザクション
	if err := remotedb.ReplaceSnapshot(string(view), rows); err != nil {
		return err
	}

	// 空の結果でも発行時刻は進める（「実行したが0件」と「未実行」の区別）
	a.pubMu.Lock()
	a.lastPublishedAt[view] = now
	a.pubMu.Unlock()

	logger.Debug("Published ranked view",
		zap.String("view", string(view)),
		zap.Int("rows", len(rows)))
	return nil
}

// LastPublishedAt returns when the view was last published, or nil if it
// never ran.
func (a *Aggregator) LastPublishedAt(view ViewType) *time.Time {
	a.pubMu.RLock()
	defer a.pubMu.RUnlock()
	if t, ok := a.lastPublishedAt[view]; ok {
		return &t
	}
	return nil
}

// Query serves the public ranked-view read path from the persisted
// snapshot. ownerID may be empty for anonymous reads; when the caller
// has a published row their own rank and value are included.
func (a *Aggregator) Query(view ViewType, limit int, ownerID string) (*types.RankedViewResponse, error) {
	entries, err := remotedb.GetSnapshot(string(view), limit)
	if err != nil {
		return nil, err
	}
	total, err := remotedb.SnapshotCount(string(view))
	if err != nil {
		return nil, err
	}

	resp := &types.RankedViewResponse{
		Type:              string(view),
		Entries:           entries,
		UpdatedAt:         a.LastPublishedAt(view),
		TotalParticipants: total,
	}

	if ownerID != "" {
		rank, value, ok, err := remotedb.CallerRank(string(view), ownerID)
		if err != nil {
			return nil, err
		}
		if ok {
			resp.CallerRank = &rank
			resp.CallerValue = &value
		}
	}
	return resp, nil
}

// ParseViewType validates a wire view-type string.
func ParseViewType(s string) (ViewType, error) {
	for _, view := range Views {
		if string(view) == s {
			return view, nil
		}
	}
	return "", fmt.Errorf("unknown view type: %q", s)
}
