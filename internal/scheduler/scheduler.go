package scheduler

import (
	"sync"
	"time"
)

// Token identifies a scheduled callback so it can be cancelled.
type Token uint64

// Scheduler abstracts delayed execution so the sync triggers can be
// tested without wall-clock waits.
type Scheduler interface {
	Now() time.Time
	Schedule(delay time.Duration, fn func()) Token
	Cancel(token Token)
}

// Real runs callbacks on the wall clock.
type Real struct {
	mu     sync.Mutex
	next   Token
	timers map[Token]*time.Timer
}

func NewReal() *Real {
	return &Real{timers: map[Token]*time.Timer{}}
}

func (r *Real) Now() time.Time {
	return time.Now()
}

func (r *Real) Schedule(delay time.Duration, fn func()) Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	token := r.next
	r.timers[token] = time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.timers, token)
		r.mu.Unlock()
		fn()
	})
	return token
}

func (r *Real) Cancel(token Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if timer, ok := r.timers[token]; ok {
		timer.Stop()
		delete(r.timers, token)
	}
}

// Debouncer coalesces a burst of triggers into a single callback once
// the quiet window elapses. Trigger resets the window.
type Debouncer struct {
	scheduler Scheduler
	window    time.Duration

	mu      sync.Mutex
	pending Token
	armed   bool
}

func NewDebouncer(s Scheduler, window time.Duration) *Debouncer {
	return &Debouncer{scheduler: s, window: window}
}

func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.armed {
		d.scheduler.Cancel(d.pending)
	}
	d.armed = true
	d.pending = d.scheduler.Schedule(d.window, func() {
		d.mu.Lock()
		d.armed = false
		d.mu.Unlock()
		fn()
	})
}
