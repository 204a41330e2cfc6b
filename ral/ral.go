// Package ral is the RTOS abstraction layer: one set of thread, semaphore,
// mutex, timer and queue operations over whichever Backend is installed.
//
// Every operation returns nil or an error whose errcode.Of is one of
// errcode.Error, errcode.InvalidArg or errcode.Timeout. Create operations
// are atomic: when the backend fails no handle is returned. Delete detaches
// the native resource first, so a second delete, or any operation on a
// deleted handle, reports errcode.InvalidArg.
package ral

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"unicode/utf8"

	"obc-hal-go/errcode"
	"obc-hal-go/x/timex"
)

// MaxTimeout blocks indefinitely when passed as a timeout.
const MaxTimeout = timex.MaxTimeout

// ThreadNameMax bounds thread and timer names, in bytes.
const ThreadNameMax = 32

type ThreadState int

const (
	StateInactive ThreadState = iota
	StateReady
	StateRunning
	StateBlocked
	StateTerminated
	StateError ThreadState = -1
)

func (s ThreadState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateTerminated:
		return "terminated"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type SemKind uint8

const (
	SemBinary SemKind = iota
	SemCounting
)

func (k SemKind) String() string {
	if k == SemBinary {
		return "binary"
	}
	return "counting"
}

type TimerMode uint8

const (
	TimerOneShot TimerMode = iota
	TimerPeriodic
)

func (m TimerMode) String() string {
	if m == TimerOneShot {
		return "one-shot"
	}
	return "periodic"
}

type Option func(*RAL)

func WithLogger(l *slog.Logger) Option {
	return func(r *RAL) {
		if l != nil {
			r.log = l
		}
	}
}

// RAL binds the entry points to one backend.
type RAL struct {
	b   Backend
	log *slog.Logger

	mu      sync.RWMutex
	threads map[int64]*Thread // by native id
}

func New(b Backend, opts ...Option) *RAL {
	r := &RAL{
		b:       b,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		threads: make(map[int64]*Thread),
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With("component", "ral", "backend", b.Name())
	return r
}

func (r *RAL) Backend() Backend     { return r.b }
func (r *RAL) Logger() *slog.Logger { return r.log }

// Close releases the backend. Handles still alive are not deleted.
func (r *RAL) Close() error {
	return errcode.Normalise("close", r.b.Close())
}

// slot holds a handle's native resource until the handle is deleted.
type slot[T any] struct {
	mu   sync.RWMutex
	n    T
	live bool
}

func (s *slot[T]) set(n T) {
	s.mu.Lock()
	s.n, s.live = n, true
	s.mu.Unlock()
}

func (s *slot[T]) get() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.n, s.live
}

// detach empties the slot and returns what it held.
func (s *slot[T]) detach() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.n, s.live
	var zero T
	s.n, s.live = zero, false
	return n, ok
}

func deleted(op string) error {
	return &errcode.E{C: errcode.InvalidArg, Op: op, Msg: "nil or deleted handle"}
}

func invalid(op, msg string) error {
	return &errcode.E{C: errcode.InvalidArg, Op: op, Msg: msg}
}

// truncName cuts s to ThreadNameMax bytes without splitting a rune.
func truncName(s string) string {
	if len(s) <= ThreadNameMax {
		return s
	}
	n := ThreadNameMax
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
