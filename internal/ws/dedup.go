package ws

import (
	"sync"
	"time"
)

// dedupSet remembers reply correlation keys for a fixed window so that
// duplicate device acknowledgements can be dropped. Each key is
// removed by its own timer rather than a sweep, keeping the window
// exact.
type dedupSet struct {
	mu     sync.Mutex
	window time.Duration
	keys   map[string]struct{}
}

func newDedupSet(window time.Duration) *dedupSet {
	return &dedupSet{
		window: window,
		keys:   make(map[string]struct{}),
	}
}

// seen inserts key and reports whether it was already present. A key
// expires window after its first insertion; an identical key arriving
// after that is treated as new.
func (d *dedupSet) seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.keys[key]; ok {
		return true
	}
	d.keys[key] = struct{}{}
	time.AfterFunc(d.window, func() {
		d.mu.Lock()
		delete(d.keys, key)
		d.mu.Unlock()
	})
	return false
}
