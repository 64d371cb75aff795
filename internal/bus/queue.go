package bus

import (
	"sort"
	"sync"
	"time"

	"paperdesk/internal/event"
	"paperdesk/internal/schema"
	"paperdesk/pkg/exception"
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity.
var ErrQueueFull = exception.ErrSignalQueueFull

// Item is a queued signal with its dispatch metadata.
type Item struct {
	Signal     schema.Signal
	Priority   schema.Priority
	EnqueuedAt time.Time
	Attempts   int
	seq        uint64
}

// Stats is a point-in-time summary of the queue.
type Stats struct {
	Size         int
	Capacity     int
	AverageAge   time.Duration
	Oldest       *Item
	Newest       *Item
	Distribution map[schema.Priority]int
}

// Queue is a bounded priority queue of signals. Higher priority is served
// first and equal priorities are served in arrival order. Enqueue never
// blocks.
type Queue struct {
	mu       sync.Mutex
	items    []*Item
	capacity int
	nextSeq  uint64
	hub      *event.Hub
	now      func() time.Time
}

// NewQueue allocates a queue with the given capacity. Events are published
// to hub when it is non-nil.
func NewQueue(capacity int, hub *event.Hub) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{capacity: capacity, hub: hub, now: time.Now}
}

// Enqueue inserts sig behind every queued signal of equal or higher
// priority. A zero priority is treated as normal.
func (q *Queue) Enqueue(sig schema.Signal) error {
	if !sig.Priority.IsAvailable() {
		sig.Priority = schema.PriorityNormal
	}

	q.mu.Lock()
	if len(q.items) >= q.capacity {
		size := len(q.items)
		q.mu.Unlock()
		q.publish(event.Event{Kind: event.KindQueueFull, SignalID: sig.ID, Signal: &sig, Priority: sig.Priority, Count: size})
		return ErrQueueFull
	}
	q.nextSeq++
	item := &Item{
		Signal:     sig,
		Priority:   sig.Priority,
		EnqueuedAt: q.now(),
		seq:        q.nextSeq,
	}
	q.insert(item)
	size := len(q.items)
	q.mu.Unlock()

	q.publish(event.Event{Kind: event.KindQueued, SignalID: sig.ID, Signal: &sig, Priority: sig.Priority, Count: size})
	return nil
}

func (q *Queue) insert(item *Item) {
	idx := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].Priority < item.Priority
	})
	q.items = append(q.items, nil)
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = item
}

// Dequeue removes and returns the head of the queue.
func (q *Queue) Dequeue() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Item{}, false
	}
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	head.Attempts++
	return *head, true
}

// Peek returns the head of the queue without removing it.
func (q *Queue) Peek() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Item{}, false
	}
	return *q.items[0], true
}

// Remove drops the signal with id. It returns false when id is not queued.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	idx := q.indexOf(id)
	if idx < 0 {
		q.mu.Unlock()
		return false
	}
	item := q.removeAt(idx)
	q.mu.Unlock()

	q.publish(event.Event{Kind: event.KindRemoved, SignalID: id, Signal: &item.Signal, Priority: item.Priority})
	return true
}

// Reprioritize moves the signal with id to priority p. The item is placed
// behind the signals already holding p. It returns false when id is not
// queued or p is invalid.
func (q *Queue) Reprioritize(id string, p schema.Priority) bool {
	if !p.IsAvailable() {
		return false
	}
	q.mu.Lock()
	idx := q.indexOf(id)
	if idx < 0 {
		q.mu.Unlock()
		return false
	}
	item := q.removeAt(idx)
	item.Priority = p
	item.Signal.Priority = p
	q.insert(item)
	q.mu.Unlock()

	q.publish(event.Event{Kind: event.KindReprioritized, SignalID: id, Signal: &item.Signal, Priority: p})
	return true
}

// Clear empties the queue and returns how many signals were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	n := len(q.items)
	q.items = nil
	q.mu.Unlock()

	q.publish(event.Event{Kind: event.KindQueueCleared, Count: n})
	return n
}

// Len returns the number of queued signals.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the capacity.
func (q *Queue) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// SetCap changes the capacity. Values below one are clamped to one.
// Queued signals are never evicted, so Len may exceed Cap until drained.
func (q *Queue) SetCap(n int) {
	if n < 1 {
		n = 1
	}
	q.mu.Lock()
	q.capacity = n
	q.mu.Unlock()
}

// Distribution counts queued signals per priority. Every valid priority is
// present in the result.
func (q *Queue) Distribution() map[schema.Priority]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.distribution()
}

func (q *Queue) distribution() map[schema.Priority]int {
	out := make(map[schema.Priority]int, len(schema.Priorities()))
	for _, p := range schema.Priorities() {
		out[p] = 0
	}
	for _, item := range q.items {
		out[item.Priority]++
	}
	return out
}

// Items returns the queued items in dispatch order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, *item)
	}
	return out
}

// BySymbol returns queued signals for symbol in dispatch order.
func (q *Queue) BySymbol(symbol string) []schema.Signal {
	return q.filter(func(item *Item) bool { return item.Signal.Symbol == symbol })
}

// ByPriority returns queued signals holding p in dispatch order.
func (q *Queue) ByPriority(p schema.Priority) []schema.Signal {
	return q.filter(func(item *Item) bool { return item.Priority == p })
}

func (q *Queue) filter(keep func(*Item) bool) []schema.Signal {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []schema.Signal
	for _, item := range q.items {
		if keep(item) {
			out = append(out, item.Signal)
		}
	}
	return out
}

// Stats summarizes the queue.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{
		Size:         len(q.items),
		Capacity:     q.capacity,
		Distribution: q.distribution(),
	}
	if len(q.items) == 0 {
		return stats
	}

	now := q.now()
	var total time.Duration
	var oldest, newest *Item
	for _, item := range q.items {
		total += now.Sub(item.EnqueuedAt)
		if oldest == nil || item.seq < oldest.seq {
			oldest = item
		}
		if newest == nil || item.seq > newest.seq {
			newest = item
		}
	}
	o, n := *oldest, *newest
	stats.Oldest = &o
	stats.Newest = &n
	stats.AverageAge = total / time.Duration(len(q.items))
	return stats
}

func (q *Queue) indexOf(id string) int {
	for i, item := range q.items {
		if item.Signal.ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) removeAt(idx int) *Item {
	item := q.items[idx]
	copy(q.items[idx:], q.items[idx+1:])
	q.items[len(q.items)-1] = nil
	q.items = q.items[:len(q.items)-1]
	return item
}

func (q *Queue) publish(e event.Event) {
	if q.hub != nil {
		q.hub.Publish(e)
	}
}
