package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manual-advance Scheduler for tests.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	next    Token
	entries []fakeEntry
}

type fakeEntry struct {
	token Token
	at    time.Time
	fn    func()
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Schedule(delay time.Duration, fn func()) Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.next++
	f.entries = append(f.entries, fakeEntry{token: f.next, at: f.now.Add(delay), fn: fn})
	return f.next
}

func (f *Fake) Cancel(token Token) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, e := range f.entries {
		if e.token == token {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return
		}
	}
}

// Advance moves the clock forward, firing due callbacks in time order.
// Callbacks may schedule further work; anything that becomes due within
// the same advance fires too.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		sort.SliceStable(f.entries, func(i, j int) bool { return f.entries[i].at.Before(f.entries[j].at) })

		var due *fakeEntry
		for i := range f.entries {
			if !f.entries[i].at.After(target) {
				e := f.entries[i]
				f.entries = append(f.entries[:i], f.entries[i+1:]...)
				due = &e
				break
			}
		}
		if due == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		if due.at.After(f.now) {
			f.now = due.at
		}
		f.mu.Unlock()

		// コールバックはロック外で実行する
		due.fn()
	}
}
