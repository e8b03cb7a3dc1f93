package syncmanager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nantokaworks/gacha-vault/internal/localdb"
	"github.com/nantokaworks/gacha-vault/internal/scheduler"
	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"go.uber.org/zap"
)

// Triggers wires the three automatic sync sources into one Manager:
// a delayed one-shot at startup, a fixed periodic timer, and a
// debounced reaction to local data changes.
type Triggers struct {
	manager      *Manager
	sched        scheduler.Scheduler
	debouncer    *scheduler.Debouncer
	startupDelay time.Duration
	interval     time.Duration

	mu            sync.Mutex
	stopped       bool
	startupToken  scheduler.Token
	periodicToken scheduler.Token
	unsubscribe   func()
}

func NewTriggers(m *Manager, sched scheduler.Scheduler, startupDelay, interval, debounceWindow time.Duration) *Triggers {
	return &Triggers{
		manager:      m,
		sched:        sched,
		debouncer:    scheduler.NewDebouncer(sched, debounceWindow),
		startupDelay: startupDelay,
		interval:     interval,
	}
}

// Start arms all three triggers. Safe to call once.
func (t *Triggers) Start() {
	t.mu.Lock()
	t.startupToken = t.sched.Schedule(t.startupDelay, t.fire)
	t.mu.Unlock()
	t.scheduleNextPeriodic()

	t.mu.Lock()
	t.unsubscribe = localdb.OnChange(func(ev localdb.ChangeEvent) {
		// 同期自身が書いた変更には反応しない（フィードバックループ防止）
		if ev.Origin == localdb.OriginSync {
			return
		}
		t.debouncer.Trigger(t.fire)
	})
	t.mu.Unlock()
}

// Stop disarms the periodic timer and the change subscription. A cycle
// already in flight is not interrupted.
func (t *Triggers) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.sched.Cancel(t.startupToken)
	t.sched.Cancel(t.periodicToken)
	unsub := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (t *Triggers) scheduleNextPeriodic() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.periodicToken = t.sched.Schedule(t.interval, func() {
		t.fire()
		t.scheduleNextPeriodic()
	})
}

func (t *Triggers) fire() {
	_, err := t.manager.SyncNow(context.Background())
	if err != nil && !errors.Is(err, ErrBusy) && !errors.Is(err, ErrDisabled) {
		logger.Debug("Triggered sync failed", zap.Error(err))
	}
}
