package posix

import (
	"context"
	"errors"
	"sync"

	"obc-hal-go/errcode"
	"obc-hal-go/ral"
)

var errDeleted = errors.New("object_deleted")

// semaphore holds one token per available unit.
type semaphore struct {
	b      *Backend
	tokens chan struct{}
	gone   chan struct{}
	once   sync.Once
}

func (b *Backend) NewSemaphore(max, initial uint32) (ral.NativeSemaphore, error) {
	if max == 0 || initial > max {
		return nil, &errcode.E{C: errcode.InvalidArg, Op: "semaphore_new"}
	}
	s := &semaphore{b: b, tokens: make(chan struct{}, max), gone: make(chan struct{})}
	for i := uint32(0); i < initial; i++ {
		s.tokens <- struct{}{}
	}
	return s, nil
}

func (s *semaphore) Take(ctx context.Context, timeoutMs uint32) error {
	const op = "sem_take"
	select {
	case <-s.tokens:
		return nil
	default:
	}
	if timeoutMs == 0 {
		return expired(op)
	}
	restore, err := s.b.enter(ctx)
	defer restore()
	if err != nil {
		return cancelled(op, err)
	}
	got, err := wait(ctx, s.tokens, s.gone, timeoutMs)
	switch {
	case err != nil:
		return cancelled(op, err)
	case !got:
		return expired(op)
	}
	return nil
}

func (s *semaphore) Give() error {
	select {
	case s.tokens <- struct{}{}:
		return nil
	default:
		return &errcode.E{C: errcode.Error, Op: "sem_give", Msg: "count at maximum"}
	}
}

func (s *semaphore) Count() uint32 { return uint32(len(s.tokens)) }

// Delete releases every waiter with an error.
func (s *semaphore) Delete() error {
	s.once.Do(func() { close(s.gone) })
	return nil
}

// mutex is a single token plus the id of the thread holding it. It is not
// recursive.
type mutex struct {
	b     *Backend
	token chan struct{}
	gone  chan struct{}
	once  sync.Once

	mu    sync.Mutex
	owner int64
	held  bool
}

func (b *Backend) NewMutex() (ral.NativeMutex, error) {
	m := &mutex{b: b, token: make(chan struct{}, 1), gone: make(chan struct{})}
	m.token <- struct{}{}
	return m, nil
}

func (m *mutex) Take(ctx context.Context, timeoutMs uint32) error {
	const op = "mutex_take"
	me := m.b.callerID(ctx)
	if owner, held := m.Owner(); held && owner == me {
		return &errcode.E{C: errcode.Error, Op: op, Msg: "already held by caller"}
	}

	select {
	case <-m.token:
		m.acquired(me)
		return nil
	default:
	}
	if timeoutMs == 0 {
		return expired(op)
	}

	restore, err := m.b.enter(ctx)
	defer restore()
	if err != nil {
		return cancelled(op, err)
	}
	if g := m.b.locks; g != nil {
		if owner, held := m.Owner(); held {
			if cyc := g.Wait(me, owner); cyc != nil {
				names := make([]string, len(cyc))
				for i, id := range cyc {
					names[i] = m.b.callerName(id)
				}
				m.b.log.Warn("mutex wait closes a deadlock cycle", "cycle", cyc, "threads", names)
			}
		}
		defer g.Done(me)
	}

	got, err := wait(ctx, m.token, m.gone, timeoutMs)
	switch {
	case err != nil:
		return cancelled(op, err)
	case !got:
		return expired(op)
	}
	m.acquired(me)
	return nil
}

func (m *mutex) acquired(me int64) {
	m.mu.Lock()
	m.owner, m.held = me, true
	m.mu.Unlock()
}

// Give releases the mutex. Only the holder may release it.
func (m *mutex) Give(ctx context.Context) error {
	me := m.b.callerID(ctx)
	m.mu.Lock()
	if !m.held || m.owner != me {
		m.mu.Unlock()
		return &errcode.E{C: errcode.Error, Op: "mutex_give", Msg: "caller does not hold the mutex"}
	}
	m.owner, m.held = 0, false
	m.mu.Unlock()
	m.token <- struct{}{}
	return nil
}

func (m *mutex) Owner() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner, m.held
}

func (m *mutex) Delete() error {
	m.once.Do(func() { close(m.gone) })
	return nil
}
