// Package timermux multiplexes any number of software timers onto a single
// poller goroutine.
//
// Two engines exist. The timerfd engine (linux) backs every timer with a
// timerfd and polls them together with an eventfd used to wake the poller
// when the timer set changes. The heap engine keeps a min-heap of deadlines
// and sleeps until the earliest one. Both deliver expiries by calling the
// timer's handler synchronously on the poller goroutine, so handlers must
// not block.
package timermux

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"obc-hal-go/errcode"
)

type Mode uint8

const (
	OneShot Mode = iota
	Periodic
)

func (m Mode) String() string {
	switch m {
	case OneShot:
		return "one-shot"
	case Periodic:
		return "periodic"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

type Engine string

const (
	EngineAuto    Engine = ""
	EngineTimerfd Engine = "timerfd"
	EngineHeap    Engine = "heap"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultMaxTimers    = 1000
)

var (
	ErrNotRunning    = errors.New("timermux_not_running")
	ErrTooManyTimers = errors.New("too_many_timers")
	ErrNoTimerfd     = errors.New("timerfd_unavailable")
)

type Config struct {
	Engine       Engine
	PollInterval time.Duration // upper bound on poll sleeps (timerfd engine)
	MaxTimers    int
	Logger       *slog.Logger
}

// Node is one registered timer. It stays registered until StopTimer, also
// after a one-shot expiry.
type Node struct {
	interval time.Duration
	mode     Mode
	handler  func(any)
	userData any

	stopped bool // guarded by Mux.mu

	// engine state
	fd    int   // timerfd engine
	due   int64 // heap engine, unix nanos
	index int   // heap engine

	fired   atomic.Uint64
	expired atomic.Bool
}

func (n *Node) Interval() time.Duration { return n.interval }
func (n *Node) Mode() Mode              { return n.mode }

// Fired returns how many times the handler has been invoked.
func (n *Node) Fired() uint64 { return n.fired.Load() }

// Expired reports whether a one-shot node has delivered its expiry.
func (n *Node) Expired() bool { return n.expired.Load() }

type engine interface {
	arm(n *Node) error // caller holds Mux.mu
	release(n *Node)   // caller holds Mux.mu; n is already unlinked
	loop(m *Mux)       // poller body; returns once m.quit is closed
	wake()
	shutdown() // after loop returned
}

type Mux struct {
	cfg Config
	log *slog.Logger
	eng engine

	mu      sync.Mutex
	nodes   []*Node // newest first
	running bool
	done    bool

	// Held around every handler call so StopTimer can exclude dispatch.
	dispatchMu sync.Mutex
	poller     atomic.Int64 // id of the poller thread/goroutine, 0 before start

	quit    chan struct{}
	stopped chan struct{}
}

// New builds a multiplexer. Zero config fields take defaults.
func New(cfg Config) (*Mux, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxTimers <= 0 {
		cfg.MaxTimers = defaultMaxTimers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Engine == EngineAuto {
		cfg.Engine = defaultEngine
	}
	m := &Mux{
		cfg:     cfg,
		log:     cfg.Logger.With("component", "timermux", "engine", string(cfg.Engine)),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	switch cfg.Engine {
	case EngineTimerfd:
		e, err := newTimerfdEngine(m)
		if err != nil {
			return nil, &errcode.E{C: errcode.Error, Op: "timermux_new", Err: err}
		}
		m.eng = e
	case EngineHeap:
		m.eng = newHeapEngine(m)
	default:
		return nil, &errcode.E{C: errcode.InvalidArg, Op: "timermux_new", Msg: "unknown engine " + string(cfg.Engine)}
	}
	return m, nil
}

func (m *Mux) Engine() Engine { return m.cfg.Engine }

// Initialize starts the poller goroutine. Calling it again is a no-op.
func (m *Mux) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return &errcode.E{C: errcode.Error, Op: "timermux_initialize", Err: ErrNotRunning}
	}
	if m.running {
		return nil
	}
	m.running = true
	go func() {
		defer close(m.stopped)
		m.eng.loop(m)
	}()
	return nil
}

// StartTimer registers and arms a timer firing after interval, and every
// interval after that in Periodic mode.
func (m *Mux) StartTimer(interval time.Duration, handler func(any), mode Mode, userData any) (*Node, error) {
	const op = "start_timer"
	if interval <= 0 || handler == nil || mode > Periodic {
		return nil, &errcode.E{C: errcode.InvalidArg, Op: op}
	}
	n := &Node{interval: interval, mode: mode, handler: handler, userData: userData, fd: -1, index: -1}

	m.mu.Lock()
	if !m.running || m.done {
		m.mu.Unlock()
		return nil, &errcode.E{C: errcode.Error, Op: op, Err: ErrNotRunning}
	}
	if len(m.nodes) >= m.cfg.MaxTimers {
		m.mu.Unlock()
		return nil, &errcode.E{C: errcode.Error, Op: op, Err: ErrTooManyTimers}
	}
	if err := m.eng.arm(n); err != nil {
		m.mu.Unlock()
		return nil, &errcode.E{C: errcode.Error, Op: op, Err: err}
	}
	m.nodes = append([]*Node{n}, m.nodes...)
	m.mu.Unlock()

	m.eng.wake()
	return n, nil
}

// StopTimer unlinks and releases n. Once it returns the handler of n is
// never invoked again. It is safe to call from inside a handler. A nil or
// already stopped node is a no-op, as is any call after Finalize.
func (m *Mux) StopTimer(n *Node) {
	if n == nil {
		return
	}
	if !m.onPoller() {
		m.dispatchMu.Lock()
		defer m.dispatchMu.Unlock()
	}
	m.mu.Lock()
	if m.done {
		// Finalize already released every node and closed the engine.
		m.mu.Unlock()
		return
	}
	m.unlinkLocked(n)
	m.mu.Unlock()
	m.eng.wake()
}

// Len returns the number of registered timers.
func (m *Mux) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// Finalize stops every timer, then stops and joins the poller. It must not
// be called from a handler.
func (m *Mux) Finalize() {
	if m.onPoller() {
		m.log.Error("finalize called from a timer handler; ignored")
		return
	}
	m.dispatchMu.Lock()
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		m.dispatchMu.Unlock()
		return
	}
	m.done = true
	wasRunning := m.running
	for len(m.nodes) > 0 {
		m.unlinkLocked(m.nodes[0])
	}
	m.mu.Unlock()
	m.dispatchMu.Unlock()

	close(m.quit)
	m.eng.wake()
	if wasRunning {
		<-m.stopped
	}
	m.eng.shutdown()
	m.log.Debug("finalized")
}

func (m *Mux) unlinkLocked(n *Node) {
	if n.stopped {
		return
	}
	n.stopped = true
	for i, x := range m.nodes {
		if x == n {
			m.nodes = append(m.nodes[:i], m.nodes[i+1:]...)
			break
		}
	}
	m.eng.release(n)
}

// snapshot copies the current node list for one poll cycle.
func (m *Mux) snapshot(dst []*Node) []*Node {
	m.mu.Lock()
	dst = append(dst[:0], m.nodes...)
	m.mu.Unlock()
	return dst
}

func (m *Mux) quitting() bool {
	select {
	case <-m.quit:
		return true
	default:
		return false
	}
}

// dispatch runs on the poller goroutine for every expiry.
func (m *Mux) dispatch(n *Node) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	stopped := n.stopped
	m.mu.Unlock()
	if stopped {
		return
	}
	n.fired.Add(1)
	if n.mode == OneShot {
		n.expired.Store(true)
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("timer handler panicked", "interval", n.interval, "panic", r)
		}
	}()
	n.handler(n.userData)
}

// bindPoller pins the poller to its OS thread and records its identity.
func (m *Mux) bindPoller() {
	lockThread()
	m.poller.Store(currentID())
}

func (m *Mux) onPoller() bool {
	id := m.poller.Load()
	return id != 0 && id == currentID()
}
