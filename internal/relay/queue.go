package relay

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// OverflowPolicy decides what happens when a frame does not fit in a
// connection's send queue.
type OverflowPolicy string

const (
	// PolicyDisconnect rejects the frame. The owner is expected to close the
	// slow consumer's connection.
	PolicyDisconnect OverflowPolicy = "disconnect"
	// PolicyDropOldest evicts queued frames, oldest first, until the new frame
	// fits.
	PolicyDropOldest OverflowPolicy = "drop_oldest"
)

func ParseOverflowPolicy(raw string) (OverflowPolicy, error) {
	switch OverflowPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyDisconnect:
		return PolicyDisconnect, nil
	case PolicyDropOldest:
		return PolicyDropOldest, nil
	default:
		return "", fmt.Errorf("invalid slow consumer policy %q (expected %q or %q)", raw, PolicyDisconnect, PolicyDropOldest)
	}
}

type EnqueueResult int

const (
	Enqueued EnqueueResult = iota
	// EnqueuedDroppedOldest means the frame was queued after evicting at least
	// one older frame.
	EnqueuedDroppedOldest
	// Rejected means the frame was not queued because the queue is backlogged
	// (PolicyDisconnect).
	Rejected
	// Oversize means the frame alone exceeds the byte budget. It is dropped
	// under either policy and says nothing about the consumer's speed.
	Oversize
	Closed
)

func (r EnqueueResult) Queued() bool {
	return r == Enqueued || r == EnqueuedDroppedOldest
}

// Err maps r to the sentinel describing why a frame was not queued.
func (r EnqueueResult) Err() error {
	switch r {
	case Rejected:
		return ErrQueueFull
	case Oversize:
		return ErrFrameTooLarge
	case Closed:
		return ErrQueueClosed
	default:
		return nil
	}
}

// Queue is a FIFO of outbound frames bounded by both frame count and total
// bytes.
//
// Enqueue never blocks, so a stalled recipient cannot hold up the goroutine
// producing frames for it. Dequeue blocks until a frame is available.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool

	policy      OverflowPolicy
	maxMessages int
	maxBytes    int
	curBytes    int
	frames      [][]byte

	drops atomic.Uint64
}

func NewQueue(maxMessages, maxBytes int, policy OverflowPolicy) *Queue {
	if policy == "" {
		policy = PolicyDisconnect
	}
	q := &Queue{
		policy:      policy,
		maxMessages: maxMessages,
		maxBytes:    maxBytes,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// DropCount is the number of frames discarded by this queue, whether rejected
// on arrival or evicted later.
func (q *Queue) DropCount() uint64 {
	return q.drops.Load()
}

// Len returns the number of queued frames and their total size.
func (q *Queue) Len() (frames, bytes int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames), q.curBytes
}

func (q *Queue) Enqueue(frame []byte) EnqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.drops.Add(1)
		return Closed
	}
	if len(frame) > q.maxBytes {
		q.drops.Add(1)
		return Oversize
	}

	res := Enqueued
	for q.overBudgetLocked(len(frame)) {
		if q.policy != PolicyDropOldest || len(q.frames) == 0 {
			q.drops.Add(1)
			return Rejected
		}
		q.popLocked()
		q.drops.Add(1)
		res = EnqueuedDroppedOldest
	}

	q.frames = append(q.frames, frame)
	q.curBytes += len(frame)
	q.notEmpty.Signal()
	return res
}

// Dequeue blocks until a frame is available or the queue is closed and empty.
func (q *Queue) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.frames) == 0 {
		return nil, false
	}
	return q.popLocked(), true
}

// Close wakes any blocked Dequeue and discards queued frames.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	for i := range q.frames {
		q.frames[i] = nil
	}
	q.frames = nil
	q.curBytes = 0
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

func (q *Queue) overBudgetLocked(n int) bool {
	if q.maxMessages > 0 && len(q.frames)+1 > q.maxMessages {
		return true
	}
	return q.curBytes+n > q.maxBytes
}

func (q *Queue) popLocked() []byte {
	frame := q.frames[0]
	copy(q.frames, q.frames[1:])
	q.frames[len(q.frames)-1] = nil
	q.frames = q.frames[:len(q.frames)-1]
	q.curBytes -= len(frame)
	return frame
}
