// Package posix is the host simulation backend of the RAL.
//
// Threads are goroutines pinned to their own OS thread. Semaphores and
// mutexes are token channels, queues are pqueue rings and timers are
// timermux nodes. The tick is one millisecond counted from the moment the
// backend was created.
package posix

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"

	"obc-hal-go/errcode"
	"obc-hal-go/internal/lockgraph"
	"obc-hal-go/internal/timermux"
	"obc-hal-go/ral"
	"obc-hal-go/x/timex"
)

const Name = "posix"

const (
	defaultPriorityMin = 0
	defaultPriorityMax = 99
	tickHz             = 1000
)

type Config struct {
	TimerEngine  timermux.Engine
	PollInterval time.Duration
	MaxTimers    int

	// Priorities outside [PriorityMin, PriorityMax] are clamped. Both zero
	// selects 0..99.
	PriorityMin int
	PriorityMax int

	// LockGraph tracks mutex waits and logs deadlock cycles.
	LockGraph bool

	Logger *slog.Logger
}

type Backend struct {
	cfg   Config
	log   *slog.Logger
	epoch time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mux   *timermux.Mux
	locks *lockgraph.Graph // nil unless Config.LockGraph

	mu      sync.RWMutex
	threads map[int64]*thread
	nextID  atomic.Int64
	closed  atomic.Bool
}

var _ ral.Backend = (*Backend)(nil)

func New(cfg Config) (*Backend, error) {
	if cfg.PriorityMin == 0 && cfg.PriorityMax == 0 {
		cfg.PriorityMin, cfg.PriorityMax = defaultPriorityMin, defaultPriorityMax
	}
	if cfg.PriorityMin > cfg.PriorityMax {
		return nil, &errcode.E{C: errcode.InvalidArg, Op: "posix_new", Msg: "priority_min above priority_max"}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log := cfg.Logger.With("component", "ral/posix")

	mux, err := timermux.New(timermux.Config{
		Engine:       cfg.TimerEngine,
		PollInterval: cfg.PollInterval,
		MaxTimers:    cfg.MaxTimers,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := mux.Initialize(); err != nil {
		return nil, err
	}

	b := &Backend{
		cfg:     cfg,
		log:     log,
		epoch:   time.Now(),
		mux:     mux,
		threads: make(map[int64]*thread),
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	if cfg.LockGraph {
		b.locks = lockgraph.New()
	}
	log.Debug("backend ready", "timer_engine", string(mux.Engine()))
	return b, nil
}

func (b *Backend) Name() string { return Name }

// Close terminates every thread and stops the timer service.
func (b *Backend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.cancel()
	b.mux.Finalize()
	b.log.Debug("backend closed")
	return nil
}

func (b *Backend) TickCount() uint32 {
	return uint32(time.Since(b.epoch) / time.Millisecond)
}

func (b *Backend) TickFreq() uint32 { return tickHz }

func (b *Backend) Delay(ctx context.Context, ms uint32) error {
	const op = "delay"
	if ctx == nil {
		ctx = context.Background()
	}
	restore, err := b.enter(ctx)
	defer restore()
	if err != nil {
		return cancelled(op, err)
	}
	switch ms {
	case 0:
		runtime.Gosched()
		return nil
	case timex.MaxTimeout:
		<-ctx.Done()
		return cancelled(op, ctx.Err())
	}
	t := time.NewTimer(timex.FromMs(ms))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return cancelled(op, ctx.Err())
	}
}

// DelayUntil waits for the tick counter to reach tick. Ticks wrap; a target
// more than half the counter range ahead, or equal to now, is rejected.
func (b *Backend) DelayUntil(ctx context.Context, tick uint32) error {
	ahead := tick - b.TickCount()
	if ahead == 0 || ahead > 0x7FFFFFFF {
		return &errcode.E{C: errcode.InvalidArg, Op: "delay_until", Msg: "tick not in the future"}
	}
	return b.Delay(ctx, ahead)
}

type threadKey struct{}

// self returns the calling RAL thread, or nil for foreign goroutines.
func (b *Backend) self(ctx context.Context) *thread {
	if ctx == nil {
		return nil
	}
	th, _ := ctx.Value(threadKey{}).(*thread)
	if th == nil || th.b != b {
		return nil
	}
	return th
}

// callerID identifies the caller for mutex ownership. Goroutines outside
// any RAL thread get the negated goroutine id.
func (b *Backend) callerID(ctx context.Context) int64 {
	if th := b.self(ctx); th != nil {
		return th.id
	}
	return -goid.Get()
}

func (b *Backend) callerName(id int64) string {
	if id < 0 {
		return "goroutine"
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if th, ok := b.threads[id]; ok {
		return th.name
	}
	return "?"
}

// enter runs at the start of every blocking operation. It parks a
// suspended caller until resumed and marks it blocked; restore marks it
// running again.
func (b *Backend) enter(ctx context.Context) (restore func(), err error) {
	th := b.self(ctx)
	if th == nil {
		if ctx == nil {
			return func() {}, nil
		}
		return func() {}, ctx.Err()
	}
	if err := th.checkpoint(); err != nil {
		return func() {}, err
	}
	th.setState(ral.StateBlocked)
	return func() { th.setState(ral.StateRunning) }, nil
}

func cancelled(op string, err error) error {
	return &errcode.E{C: errcode.Error, Op: op, Msg: "cancelled", Err: err}
}

func expired(op string) error {
	return &errcode.E{C: errcode.Timeout, Op: op}
}

// wait blocks on ready until ms elapses or ctx ends. It reports whether
// ready fired.
func wait[T any](ctx context.Context, ready <-chan T, gone <-chan struct{}, ms uint32) (bool, error) {
	var expire <-chan time.Time
	if ms != timex.MaxTimeout {
		t := time.NewTimer(timex.FromMs(ms))
		defer t.Stop()
		expire = t.C
	}
	var done <-chan struct{}
	if ctx != nil {
		done = ctx.Done()
	}
	select {
	case <-ready:
		return true, nil
	case <-expire:
		return false, nil
	case <-done:
		return false, ctx.Err()
	case <-gone:
		return false, errDeleted
	}
}
