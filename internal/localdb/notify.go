package localdb

import "sync"

// ChangeOrigin tags where a local-store mutation came from so listeners
// can filter without parsing anything. The sync orchestrator tags its own
// writes with OriginSync and the auto-sync trigger ignores those events,
// which is what breaks the sync → notify → sync feedback loop.
type ChangeOrigin string

const (
	OriginLocal ChangeOrigin = "local"
	OriginSync  ChangeOrigin = "sync"
)

// ChangeEvent describes one batch of applied writes.
type ChangeEvent struct {
	Origin     ChangeOrigin
	AccountKey string
	Inserted   int
	Deleted    bool
}

type changeListener func(ChangeEvent)

var (
	listenerMu   sync.Mutex
	listeners    = map[int]changeListener{}
	nextListener int
)

// OnChange registers a listener for local-store changes and returns an
// unsubscribe function.
func OnChange(fn func(ChangeEvent)) func() {
	listenerMu.Lock()
	defer listenerMu.Unlock()

	id := nextListener
	nextListener++
	listeners[id] = fn

	return func() {
		listenerMu.Lock()
		defer listenerMu.Unlock()
		delete(listeners, id)
	}
}

func notifyChange(ev ChangeEvent) {
	listenerMu.Lock()
	snapshot := make([]changeListener, 0, len(listeners))
	for _, fn := range listeners {
		snapshot = append(snapshot, fn)
	}
	listenerMu.Unlock()

	// リスナーはロック外で呼び出す
	for _, fn := range snapshot {
		fn(ev)
	}
}
