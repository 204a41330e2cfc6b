package posix

import (
	"context"

	"obc-hal-go/internal/pqueue"
	"obc-hal-go/ral"
	"obc-hal-go/x/timex"
)

type queue struct {
	b *Backend
	q *pqueue.Queue
}

func (b *Backend) NewQueue(length, itemSize uint32) (ral.NativeQueue, error) {
	q, err := pqueue.New(int(length), int(itemSize))
	if err != nil {
		return nil, err
	}
	return &queue{b: b, q: q}, nil
}

// Send and Receive use the first item-size bytes of a longer slice.
func (q *queue) Send(ctx context.Context, item []byte, timeoutMs uint32) error {
	restore, err := q.b.enter(ctx)
	defer restore()
	if err != nil {
		return cancelled("queue_send", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if n := q.q.ItemSize(); len(item) > n {
		item = item[:n]
	}
	return q.q.Enqueue(ctx, item, timex.FromMs(timeoutMs))
}

func (q *queue) Receive(ctx context.Context, buf []byte, timeoutMs uint32) error {
	restore, err := q.b.enter(ctx)
	defer restore()
	if err != nil {
		return cancelled("queue_receive", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if n := q.q.ItemSize(); len(buf) > n {
		buf = buf[:n]
	}
	return q.q.Dequeue(ctx, buf, timex.FromMs(timeoutMs))
}

func (q *queue) Count() uint32 { return uint32(q.q.Items()) }
func (q *queue) Space() uint32 { return uint32(q.q.Free()) }

func (q *queue) Flush() error {
	q.q.Reset()
	return nil
}

// Delete wakes every blocked sender and receiver with an error.
func (q *queue) Delete() error {
	q.q.Close()
	return nil
}
