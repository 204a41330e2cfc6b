package posix

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"obc-hal-go/errcode"
	"obc-hal-go/ral"
	"obc-hal-go/x/mathx"
)

type thread struct {
	b     *Backend
	id    int64
	name  string
	stack uint32

	prio  atomic.Int64
	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	suspended bool
	resumed   chan struct{}

	done chan struct{}
}

func (b *Backend) NewThread(spec ral.ThreadSpec) (ral.NativeThread, error) {
	if spec.Entry == nil {
		return nil, &errcode.E{C: errcode.InvalidArg, Op: "thread_new", Msg: "nil entry"}
	}
	if b.closed.Load() {
		return nil, &errcode.E{C: errcode.Error, Op: "thread_new", Msg: "backend closed"}
	}
	th := &thread{
		b:     b,
		id:    b.nextID.Add(1),
		name:  spec.Name,
		stack: spec.StackSize,
		done:  make(chan struct{}),
	}
	th.prio.Store(int64(b.clampPriority(spec.Priority)))
	th.setState(ral.StateReady)
	ctx, cancel := context.WithCancel(b.ctx)
	th.ctx, th.cancel = context.WithValue(ctx, threadKey{}, th), cancel

	b.mu.Lock()
	b.threads[th.id] = th
	b.mu.Unlock()

	go th.run(spec.Entry)
	return th, nil
}

func (th *thread) run(entry func(context.Context)) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer th.exit()
	defer func() {
		if r := recover(); r != nil {
			th.b.log.Error("thread panicked", "thread", th.name, "panic", r)
		}
	}()

	if err := th.checkpoint(); err != nil {
		return
	}
	th.setState(ral.StateRunning)
	entry(th.ctx)
}

func (th *thread) exit() {
	th.setState(ral.StateTerminated)
	th.cancel()
	th.b.mu.Lock()
	delete(th.b.threads, th.id)
	th.b.mu.Unlock()
	if th.b.locks != nil {
		th.b.locks.Forget(th.id)
	}
	close(th.done)
}

func (th *thread) ID() int64 { return th.id }

// Terminate cancels the thread's context. Go cannot stop a goroutine from
// outside, so the body ends at its next RAL call or ctx check.
func (th *thread) Terminate() error {
	th.cancel()
	th.b.log.Debug("thread terminated", "thread", th.name)
	return nil
}

// Suspend parks the thread at its next suspension point.
func (th *thread) Suspend() error {
	if th.State() == ral.StateTerminated {
		return &errcode.E{C: errcode.Error, Op: "thread_suspend", Msg: "thread terminated"}
	}
	th.mu.Lock()
	defer th.mu.Unlock()
	if !th.suspended {
		th.suspended = true
		th.resumed = make(chan struct{})
	}
	return nil
}

func (th *thread) Resume() error {
	th.mu.Lock()
	defer th.mu.Unlock()
	if !th.suspended {
		return &errcode.E{C: errcode.Error, Op: "thread_resume", Msg: "thread not suspended"}
	}
	th.suspended = false
	close(th.resumed)
	return nil
}

// checkpoint blocks while the thread is suspended. It fails once the
// thread has been terminated.
func (th *thread) checkpoint() error {
	th.mu.Lock()
	if !th.suspended {
		th.mu.Unlock()
		return th.ctx.Err()
	}
	ch := th.resumed
	th.mu.Unlock()

	prev := th.swapState(ral.StateBlocked)
	defer th.setState(prev)
	select {
	case <-ch:
		return nil
	case <-th.ctx.Done():
		return th.ctx.Err()
	}
}

func (th *thread) State() ral.ThreadState {
	s := ral.ThreadState(th.state.Load())
	if s == ral.StateTerminated {
		return s
	}
	th.mu.Lock()
	defer th.mu.Unlock()
	if th.suspended {
		return ral.StateBlocked
	}
	return s
}

func (th *thread) setState(s ral.ThreadState) {
	if ral.ThreadState(th.state.Load()) == ral.StateTerminated {
		return
	}
	th.state.Store(int32(s))
}

func (th *thread) swapState(s ral.ThreadState) ral.ThreadState {
	prev := ral.ThreadState(th.state.Load())
	th.setState(s)
	return prev
}

func (th *thread) SetPriority(p int) error {
	th.prio.Store(int64(th.b.clampPriority(p)))
	return nil
}

func (th *thread) Priority() (int, error) { return int(th.prio.Load()), nil }

func (th *thread) StackSize() (uint32, error) { return th.stack, nil }

// StackSpace is not observable for goroutine stacks.
func (th *thread) StackSpace() (uint32, error) {
	return 0, &errcode.E{C: errcode.Unsupported, Op: "thread_stack_space"}
}

func (b *Backend) clampPriority(p int) int {
	return mathx.Clamp(p, b.cfg.PriorityMin, b.cfg.PriorityMax)
}
