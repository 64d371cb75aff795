package event

import (
	"sort"
	"sync"
	"time"

	"github.com/yanun0323/logs"
)

// Listener receives events synchronously on the publisher's goroutine.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }

// Hub fans events out to every subscribed listener. Delivery is synchronous
// and in subscription order, without buffering or backpressure.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64
	seq       *Sequence
	now       func() time.Time
}

// NewHub creates a hub. A nil clock falls back to time.Now.
func NewHub(now func() time.Time) *Hub {
	if now == nil {
		now = time.Now
	}
	return &Hub{
		listeners: make(map[uint64]Listener),
		seq:       NewSequence(0),
		now:       now,
	}
}

// Subscribe registers l and returns a function that removes it.
func (h *Hub) Subscribe(l Listener) (unsubscribe func()) {
	if h == nil || l == nil {
		return func() {}
	}
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.listeners[id] = l
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// Len returns the number of listeners.
func (h *Hub) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Publish stamps e and delivers it. A panicking listener is logged and
// does not stop delivery to the others.
func (h *Hub) Publish(e Event) {
	if h == nil {
		return
	}
	e.Seq = h.seq.Next()
	if e.At.IsZero() {
		e.At = h.now()
	}

	h.mu.RLock()
	ids := make([]uint64, 0, len(h.listeners))
	for id := range h.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	targets := make([]Listener, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, h.listeners[id])
	}
	h.mu.RUnlock()

	for _, l := range targets {
		deliver(l, e)
	}
}

func deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("event listener panic, kind: %s, err: %+v", e.Kind, r)
		}
	}()
	l.OnEvent(e)
}
