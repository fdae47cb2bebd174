package store

import (
	"sync"
)

// observerBuffer is the per-subscriber channel depth. A slow subscriber
// never blocks a writer: when the buffer is full the oldest value is
// dropped, so the subscriber always converges on the latest document.
const observerBuffer = 8

type observer struct {
	userID string
	ch     chan *PreferenceDocument
}

// watcher implements the hot replay-latest change stream backing
// Store.ObserveChanges. The last emitted value per user is retained and
// replayed to new subscribers.
type watcher struct {
	mu        sync.Mutex
	last      map[string]*PreferenceDocument
	observers map[string]map[int64]*observer
	nextID    int64
}

func newWatcher() *watcher {
	return &watcher{
		last:      make(map[string]*PreferenceDocument),
		observers: make(map[string]map[int64]*observer),
	}
}

// subscribe registers an observer for userID. The latest known document, if
// any, is replayed immediately. The returned cancel func only affects this
// subscriber.
func (w *watcher) subscribe(userID string) (<-chan *PreferenceDocument, func()) {
	ob := &observer{
		userID: userID,
		ch:     make(chan *PreferenceDocument, observerBuffer),
	}

	w.mu.Lock()
	w.nextID++
	id := w.nextID
	if w.observers[userID] == nil {
		w.observers[userID] = make(map[int64]*observer)
	}
	w.observers[userID][id] = ob
	if last, ok := w.last[userID]; ok {
		ob.ch <- last
	}
	w.mu.Unlock()

	cancel := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if obs, ok := w.observers[userID]; ok {
			if _, ok := obs[id]; ok {
				delete(obs, id)
				close(ob.ch)
			}
			if len(obs) == 0 {
				delete(w.observers, userID)
			}
		}
	}
	return ob.ch, cancel
}

// publish retains doc as the latest value and fans it out to subscribers.
func (w *watcher) publish(doc *PreferenceDocument) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Cache reloads re-store unchanged documents; those are not changes
	// and must not wake subscribers.
	if last, ok := w.last[doc.UserID]; ok && *last == *doc {
		return
	}

	w.last[doc.UserID] = doc
	for _, ob := range w.observers[doc.UserID] {
		select {
		case ob.ch <- doc:
		default:
			// Full buffer: drop the oldest value and retry once.
			select {
			case <-ob.ch:
			default:
			}
			select {
			case ob.ch <- doc:
			default:
			}
		}
	}
}

// seed retains doc as the latest value without notifying subscribers.
// Used when a read populates the stream for future replay.
func (w *watcher) seed(doc *PreferenceDocument) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.last[doc.UserID]; !ok {
		w.last[doc.UserID] = doc
	}
}
