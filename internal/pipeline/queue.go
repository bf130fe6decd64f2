package pipeline

import (
	"sync/atomic"
)

// FrameQueue is a bounded handoff between a producer and a single consumer.
// When the queue is full the incoming frame is dropped, never the buffered
// ones: under load the consumer keeps working on the freshest frames it
// already accepted instead of thrashing.
type FrameQueue struct {
	ch      chan *FrameData
	dropped atomic.Uint64
}

// NewFrameQueue creates a queue holding at most capacity frames.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameQueue{ch: make(chan *FrameData, capacity)}
}

// Push offers a frame without blocking. Returns false when the queue was full
// and the frame was dropped.
func (q *FrameQueue) Push(f *FrameData) bool {
	select {
	case q.ch <- f:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// C is the consumer side of the queue.
func (q *FrameQueue) C() <-chan *FrameData {
	return q.ch
}

// Len returns the number of buffered frames.
func (q *FrameQueue) Len() int {
	return len(q.ch)
}

// Dropped returns how many frames were rejected at Push.
func (q *FrameQueue) Dropped() uint64 {
	return q.dropped.Load()
}
