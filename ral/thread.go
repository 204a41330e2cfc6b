package ral

import (
	"context"
	"sync/atomic"

	"obc-hal-go/errcode"
)

// ThreadFunc is a thread body. ctx ends when the thread is deleted; arg
// is ThreadConfig.Param.
type ThreadFunc func(ctx context.Context, arg any)

type ThreadConfig struct {
	Name      string
	StackSize uint32
	Priority  int
	Entry     ThreadFunc
	Param     any
}

// Thread is a RAL thread handle. The exported fields are the creation
// parameters; Name is already truncated to ThreadNameMax.
type Thread struct {
	Name      string
	StackSize uint32
	Entry     ThreadFunc
	Param     any

	prio   atomic.Int64 // last priority reported by the backend
	native slot[NativeThread]
	ready  chan struct{} // closed once create settles
	failed bool          // written before ready is closed
}

type threadKey struct{}

// ThreadFromContext returns the RAL thread whose body received ctx.
func ThreadFromContext(ctx context.Context) (*Thread, bool) {
	if ctx == nil {
		return nil, false
	}
	t, ok := ctx.Value(threadKey{}).(*Thread)
	return t, ok
}

func (r *RAL) ThreadCreate(cfg ThreadConfig) (*Thread, error) {
	const op = "thread_create"
	if cfg.Entry == nil {
		return nil, invalid(op, "nil entry")
	}
	t := &Thread{
		Name:      truncName(cfg.Name),
		StackSize: cfg.StackSize,
		Entry:     cfg.Entry,
		Param:     cfg.Param,
		ready:     make(chan struct{}),
	}
	n, err := r.b.NewThread(ThreadSpec{
		Name:      t.Name,
		StackSize: t.StackSize,
		Priority:  cfg.Priority,
		Entry:     t.run,
	})
	if err != nil {
		t.failed = true
		close(t.ready)
		return nil, errcode.Normalise(op, err)
	}
	t.native.set(n)
	t.prio.Store(int64(cfg.Priority))
	t.syncPriority(n)
	r.mu.Lock()
	r.threads[n.ID()] = t
	r.mu.Unlock()
	close(t.ready)
	r.log.Debug("thread created", "name", t.Name, "id", n.ID(), "priority", t.Priority())
	return t, nil
}

// run is the body handed to the backend. It holds the thread back until
// the handle is complete so the entry can operate on itself.
func (t *Thread) run(ctx context.Context) {
	<-t.ready
	if t.failed {
		return
	}
	t.Entry(context.WithValue(ctx, threadKey{}, t), t.Param)
}

func (r *RAL) thread(op string, t *Thread) (NativeThread, error) {
	if t == nil {
		return nil, deleted(op)
	}
	n, ok := t.native.get()
	if !ok {
		return nil, deleted(op)
	}
	return n, nil
}

// ThreadDelete terminates t. Resources the thread holds are not released.
func (r *RAL) ThreadDelete(t *Thread) error {
	const op = "thread_delete"
	if t == nil {
		return deleted(op)
	}
	n, ok := t.native.detach()
	if !ok {
		return deleted(op)
	}
	r.mu.Lock()
	delete(r.threads, n.ID())
	r.mu.Unlock()
	return errcode.Normalise(op, n.Terminate())
}

func (r *RAL) ThreadSuspend(t *Thread) error {
	n, err := r.thread("thread_suspend", t)
	if err != nil {
		return err
	}
	return errcode.Normalise("thread_suspend", n.Suspend())
}

func (r *RAL) ThreadResume(t *Thread) error {
	n, err := r.thread("thread_resume", t)
	if err != nil {
		return err
	}
	return errcode.Normalise("thread_resume", n.Resume())
}

func (r *RAL) ThreadGetState(t *Thread) (ThreadState, error) {
	n, err := r.thread("thread_get_state", t)
	if err != nil {
		return StateError, err
	}
	return n.State(), nil
}

func (r *RAL) ThreadGetName(t *Thread) (string, error) {
	if _, err := r.thread("thread_get_name", t); err != nil {
		return "", err
	}
	return t.Name, nil
}

// Priority is the thread's priority as last set or read through the RAL,
// after any clamping by the backend.
func (t *Thread) Priority() int { return int(t.prio.Load()) }

func (t *Thread) syncPriority(n NativeThread) {
	if p, err := n.Priority(); err == nil {
		t.prio.Store(int64(p))
	}
}

func (r *RAL) ThreadSetPriority(t *Thread, p int) error {
	n, err := r.thread("thread_set_priority", t)
	if err != nil {
		return err
	}
	if err := n.SetPriority(p); err != nil {
		return errcode.Normalise("thread_set_priority", err)
	}
	t.syncPriority(n)
	return nil
}

func (r *RAL) ThreadGetPriority(t *Thread) (int, error) {
	n, err := r.thread("thread_get_priority", t)
	if err != nil {
		return 0, err
	}
	p, err := n.Priority()
	if err != nil {
		return 0, errcode.Normalise("thread_get_priority", err)
	}
	t.prio.Store(int64(p))
	return p, nil
}

func (r *RAL) ThreadGetStackSize(t *Thread) (uint32, error) {
	n, err := r.thread("thread_get_stack_size", t)
	if err != nil {
		return 0, err
	}
	s, err := n.StackSize()
	return s, errcode.Normalise("thread_get_stack_size", err)
}

func (r *RAL) ThreadGetStackRemainingSize(t *Thread) (uint32, error) {
	n, err := r.thread("thread_get_stack_remaining_size", t)
	if err != nil {
		return 0, err
	}
	s, err := n.StackSpace()
	return s, errcode.Normalise("thread_get_stack_remaining_size", err)
}

// ThreadByID maps a backend thread id back to its handle.
func (r *RAL) ThreadByID(id int64) (*Thread, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.threads[id]
	return t, ok
}

// Delay blocks the calling thread for ms milliseconds.
func (r *RAL) Delay(ctx context.Context, ms uint32) error {
	return errcode.Normalise("delay", r.b.Delay(ctx, ms))
}

// DelayUntil blocks until TickCount reaches tick.
func (r *RAL) DelayUntil(ctx context.Context, tick uint32) error {
	return errcode.Normalise("delay_until", r.b.DelayUntil(ctx, tick))
}

func (r *RAL) TickCount() uint32 { return r.b.TickCount() }
func (r *RAL) TickFreq() uint32  { return r.b.TickFreq() }
