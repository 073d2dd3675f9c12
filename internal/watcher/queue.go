package watcher

import (
	"sync"

	"github.com/amaumene/announcarr/internal/metrics"
)

// ItemKind identifies what a queue item asks the consumer to do
type ItemKind int

const (
	ItemLine ItemKind = iota
	ItemReload
	ItemStop
)

// Item is one unit of work for the consumer
type Item struct {
	Kind   ItemKind
	Path   string // source log file
	Module string
	Line   string
	Offset int64 // file offset just past Line
}

// Queue is an unbounded FIFO safe for many producers and one consumer
type Queue struct {
	mu     sync.Mutex
	items  []Item
	notify chan struct{}
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends an item and wakes the consumer
func (q *Queue) Push(item Item) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	metrics.QueueDepth.Inc()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes the oldest item. It never blocks.
func (q *Queue) Pop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Item{}, false
	}
	item := q.items[0]
	q.items[0] = Item{}
	q.items = q.items[1:]

	metrics.QueueDepth.Dec()
	return item, true
}

// Len returns the number of waiting items
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Notify fires after a push. Drain with Pop until it reports false.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}
