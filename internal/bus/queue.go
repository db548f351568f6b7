package bus

import (
	"container/heap"

	"github.com/hirescreen/hirescreen/internal/domain"
)

// queueItem wraps an event with a push sequence number so ordering within a
// priority tier stays FIFO even when timestamps collide.
type queueItem struct {
	event *domain.Event
	seq   uint64
}

// eventQueue is a max-heap on priority; ties break by timestamp (oldest
// first), then push order. Not safe for concurrent use — callers hold the
// bus lock.
type eventQueue struct {
	items []*queueItem
	seq   uint64
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	heap.Init(q)
	return q
}

func (q *eventQueue) Len() int { return len(q.items) }

func (q *eventQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.event.Priority != b.event.Priority {
		return a.event.Priority > b.event.Priority
	}
	if !a.event.Timestamp.Equal(b.event.Timestamp) {
		return a.event.Timestamp.Before(b.event.Timestamp)
	}
	return a.seq < b.seq
}

func (q *eventQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *eventQueue) Push(x any) {
	q.items = append(q.items, x.(*queueItem))
}

func (q *eventQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return item
}

func (q *eventQueue) push(e *domain.Event) {
	q.seq++
	heap.Push(q, &queueItem{event: e, seq: q.seq})
}

// pop removes and returns the highest-priority event, or nil when empty.
func (q *eventQueue) pop() *domain.Event {
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(q).(*queueItem).event
}
