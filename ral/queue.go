package ral

import (
	"context"

	"obc-hal-go/errcode"
)

// Queue is a bounded FIFO of fixed-size items.
type Queue struct {
	Length   uint32
	ItemSize uint32

	native slot[NativeQueue]
}

func (r *RAL) QueueCreate(length, itemSize uint32) (*Queue, error) {
	const op = "queue_create"
	if length == 0 || itemSize == 0 {
		return nil, invalid(op, "length and item size must be positive")
	}
	n, err := r.b.NewQueue(length, itemSize)
	if err != nil {
		return nil, errcode.Normalise(op, err)
	}
	q := &Queue{Length: length, ItemSize: itemSize}
	q.native.set(n)
	return q, nil
}

func (r *RAL) queue(op string, q *Queue) (NativeQueue, error) {
	if q == nil {
		return nil, deleted(op)
	}
	n, ok := q.native.get()
	if !ok {
		return nil, deleted(op)
	}
	return n, nil
}

// QueueDelete releases q. Threads still blocked on it return an error.
func (r *RAL) QueueDelete(q *Queue) error {
	const op = "queue_delete"
	if q == nil {
		return deleted(op)
	}
	n, ok := q.native.detach()
	if !ok {
		return deleted(op)
	}
	return errcode.Normalise(op, n.Delete())
}

// QueueFlush discards every queued item.
func (r *RAL) QueueFlush(q *Queue) error {
	n, err := r.queue("queue_flush", q)
	if err != nil {
		return err
	}
	return errcode.Normalise("queue_flush", n.Flush())
}

// QueueSend copies the first ItemSize bytes of item to the tail of q,
// waiting up to timeoutMs for space.
func (r *RAL) QueueSend(ctx context.Context, q *Queue, item []byte, timeoutMs uint32) error {
	const op = "queue_send"
	n, err := r.queue(op, q)
	if err != nil {
		return err
	}
	if len(item) < int(q.ItemSize) {
		return invalid(op, "item shorter than item size")
	}
	return errcode.Normalise(op, n.Send(ctx, item[:q.ItemSize], timeoutMs))
}

// QueueReceive moves the head of q into buf, waiting up to timeoutMs for
// an item.
func (r *RAL) QueueReceive(ctx context.Context, q *Queue, buf []byte, timeoutMs uint32) error {
	const op = "queue_receive"
	n, err := r.queue(op, q)
	if err != nil {
		return err
	}
	if len(buf) < int(q.ItemSize) {
		return invalid(op, "buffer shorter than item size")
	}
	return errcode.Normalise(op, n.Receive(ctx, buf[:q.ItemSize], timeoutMs))
}

func (r *RAL) QueueGetCount(q *Queue) (uint32, error) {
	n, err := r.queue("queue_get_count", q)
	if err != nil {
		return 0, err
	}
	return n.Count(), nil
}

func (r *RAL) QueueGetRemainCount(q *Queue) (uint32, error) {
	n, err := r.queue("queue_get_remain_count", q)
	if err != nil {
		return 0, err
	}
	return n.Space(), nil
}
