// Package pqueue is the bounded blocking FIFO used by the POSIX backend.
//
// Items are fixed-size byte records copied into a single ring. Producers
// wait for a free slot and consumers for an item; both waits are bounded by
// an absolute deadline taken from the monotonic clock, so wall-clock steps
// never stretch or shrink a timeout.
package pqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"obc-hal-go/errcode"
	"obc-hal-go/x/timex"
)

var (
	ErrClosed = errors.New("queue_closed")
)

// MaxBytes caps the ring storage of one queue.
const MaxBytes = 64 << 20

type Queue struct {
	mu       sync.Mutex
	buf      []byte
	size     int // capacity in items
	itemSize int
	items    int
	in, out  int // ring slot indices, mod size

	// Broadcast signals: closed and replaced on every broadcast.
	notFull  chan struct{}
	notEmpty chan struct{}

	closed bool
}

// New allocates a queue holding up to length items of itemSize bytes.
func New(length, itemSize int) (*Queue, error) {
	if length <= 0 || itemSize <= 0 {
		return nil, &errcode.E{C: errcode.InvalidArg, Op: "queue_create", Msg: "length and item size must be positive"}
	}
	if itemSize > MaxBytes || length > MaxBytes/itemSize {
		return nil, &errcode.E{C: errcode.InvalidArg, Op: "queue_create", Msg: "queue storage above MaxBytes"}
	}
	return &Queue{
		buf:      make([]byte, length*itemSize),
		size:     length,
		itemSize: itemSize,
		notFull:  make(chan struct{}),
		notEmpty: make(chan struct{}),
	}, nil
}

func (q *Queue) Cap() int      { return q.size }
func (q *Queue) ItemSize() int { return q.itemSize }

// Enqueue copies item into the next free slot. It waits up to timeout for
// space (timex.Forever waits indefinitely, 0 polls) and reports
// errcode.Full when the deadline passes first.
func (q *Queue) Enqueue(ctx context.Context, item []byte, timeout time.Duration) error {
	const op = "enqueue"
	if len(item) != q.itemSize {
		return &errcode.E{C: errcode.InvalidArg, Op: op, Msg: "item size mismatch"}
	}
	at, bounded := timex.Deadline(timeout)

	q.mu.Lock()
	for q.items == q.size && !q.closed {
		if bounded && !time.Now().Before(at) {
			q.mu.Unlock()
			return &errcode.E{C: errcode.Full, Op: op}
		}
		sig := q.notFull
		q.mu.Unlock()
		if err := wait(ctx, sig, at, bounded); err != nil {
			return &errcode.E{C: errcode.Error, Op: op, Msg: "cancelled", Err: err}
		}
		q.mu.Lock()
	}
	if q.closed {
		q.mu.Unlock()
		return &errcode.E{C: errcode.Error, Op: op, Err: ErrClosed}
	}

	off := q.in * q.itemSize
	copy(q.buf[off:off+q.itemSize], item)
	q.items++
	q.in = (q.in + 1) % q.size
	q.broadcast(&q.notEmpty)
	q.mu.Unlock()
	return nil
}

// Dequeue copies the oldest item into buf, which must hold at least
// ItemSize bytes. It reports errcode.Empty when the deadline passes first.
func (q *Queue) Dequeue(ctx context.Context, buf []byte, timeout time.Duration) error {
	const op = "dequeue"
	if len(buf) < q.itemSize {
		return &errcode.E{C: errcode.InvalidArg, Op: op, Msg: "buffer too small"}
	}
	at, bounded := timex.Deadline(timeout)

	q.mu.Lock()
	for q.items == 0 && !q.closed {
		if bounded && !time.Now().Before(at) {
			q.mu.Unlock()
			return &errcode.E{C: errcode.Empty, Op: op}
		}
		sig := q.notEmpty
		q.mu.Unlock()
		if err := wait(ctx, sig, at, bounded); err != nil {
			return &errcode.E{C: errcode.Error, Op: op, Msg: "cancelled", Err: err}
		}
		q.mu.Lock()
	}
	if q.closed {
		q.mu.Unlock()
		return &errcode.E{C: errcode.Error, Op: op, Err: ErrClosed}
	}

	off := q.out * q.itemSize
	copy(buf[:q.itemSize], q.buf[off:off+q.itemSize])
	q.items--
	q.out = (q.out + 1) % q.size
	q.broadcast(&q.notFull)
	q.mu.Unlock()
	return nil
}

// Items returns the number of queued items.
func (q *Queue) Items() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items
}

// Free returns the number of empty slots.
func (q *Queue) Free() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size - q.items
}

// Reset discards every queued item and wakes blocked producers.
func (q *Queue) Reset() {
	q.mu.Lock()
	q.items, q.in, q.out = 0, 0, 0
	q.broadcast(&q.notFull)
	q.mu.Unlock()
}

// Close releases every waiter with an error; later calls fail the same way.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.broadcast(&q.notFull)
		q.broadcast(&q.notEmpty)
	}
	q.mu.Unlock()
}

// broadcast wakes every goroutine parked on *sig. Caller holds q.mu.
func (q *Queue) broadcast(sig *chan struct{}) {
	close(*sig)
	*sig = make(chan struct{})
}

// wait parks until sig fires, the deadline passes, or ctx ends. Only the
// last case is an error; the caller re-checks its condition otherwise.
func wait(ctx context.Context, sig <-chan struct{}, at time.Time, bounded bool) error {
	var expire <-chan time.Time
	if bounded {
		t := time.NewTimer(time.Until(at))
		defer t.Stop()
		expire = t.C
	}
	select {
	case <-sig:
		return nil
	case <-expire:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
