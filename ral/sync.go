package ral

import (
	"context"
	"sync/atomic"

	"obc-hal-go/errcode"
)

// Semaphore is a binary or counting semaphore handle. The backend holds
// the authoritative count; Count returns the value last observed.
type Semaphore struct {
	Kind    SemKind
	Max     uint32
	Initial uint32

	count  atomic.Uint32
	native slot[NativeSemaphore]
}

func (s *Semaphore) Count() uint32 { return s.count.Load() }

// SemCreateBinary creates a binary semaphore that starts available.
func (r *RAL) SemCreateBinary() (*Semaphore, error) {
	return r.semCreate("sem_create_bin", SemBinary, 1, 1)
}

func (r *RAL) SemCreateCounting(max, initial uint32) (*Semaphore, error) {
	const op = "sem_create_count"
	if max == 0 || initial > max {
		return nil, invalid(op, "need 1 <= max and initial <= max")
	}
	return r.semCreate(op, SemCounting, max, initial)
}

func (r *RAL) semCreate(op string, kind SemKind, max, initial uint32) (*Semaphore, error) {
	n, err := r.b.NewSemaphore(max, initial)
	if err != nil {
		return nil, errcode.Normalise(op, err)
	}
	s := &Semaphore{Kind: kind, Max: max, Initial: initial}
	s.count.Store(initial)
	s.native.set(n)
	return s, nil
}

func (r *RAL) sem(op string, s *Semaphore) (NativeSemaphore, error) {
	if s == nil {
		return nil, deleted(op)
	}
	n, ok := s.native.get()
	if !ok {
		return nil, deleted(op)
	}
	return n, nil
}

func (r *RAL) SemDelete(s *Semaphore) error {
	const op = "sem_delete"
	if s == nil {
		return deleted(op)
	}
	n, ok := s.native.detach()
	if !ok {
		return deleted(op)
	}
	return errcode.Normalise(op, n.Delete())
}

// SemTake acquires one unit, waiting up to timeoutMs. 0 polls.
func (r *RAL) SemTake(ctx context.Context, s *Semaphore, timeoutMs uint32) error {
	n, err := r.sem("sem_take", s)
	if err != nil {
		return err
	}
	err = n.Take(ctx, timeoutMs)
	s.count.Store(n.Count())
	return errcode.Normalise("sem_take", err)
}

func (r *RAL) SemGive(s *Semaphore) error {
	n, err := r.sem("sem_give", s)
	if err != nil {
		return err
	}
	err = n.Give()
	s.count.Store(n.Count())
	return errcode.Normalise("sem_give", err)
}

func (r *RAL) SemGetCount(s *Semaphore) (uint32, error) {
	n, err := r.sem("sem_get_count", s)
	if err != nil {
		return 0, err
	}
	c := n.Count()
	s.count.Store(c)
	return c, nil
}

// Mutex is a mutual exclusion handle with an owning thread.
type Mutex struct {
	value  atomic.Uint32 // 1 free, 0 held; last observed
	native slot[NativeMutex]
}

func (m *Mutex) Value() uint32 { return m.value.Load() }

func (r *RAL) MutexCreate() (*Mutex, error) {
	n, err := r.b.NewMutex()
	if err != nil {
		return nil, errcode.Normalise("mutex_create", err)
	}
	m := &Mutex{}
	m.value.Store(1)
	m.native.set(n)
	return m, nil
}

func (r *RAL) mutex(op string, m *Mutex) (NativeMutex, error) {
	if m == nil {
		return nil, deleted(op)
	}
	n, ok := m.native.get()
	if !ok {
		return nil, deleted(op)
	}
	return n, nil
}

func (r *RAL) MutexDelete(m *Mutex) error {
	const op = "mutex_delete"
	if m == nil {
		return deleted(op)
	}
	n, ok := m.native.detach()
	if !ok {
		return deleted(op)
	}
	return errcode.Normalise(op, n.Delete())
}

// MutexTake locks m for the thread running ctx, waiting up to timeoutMs.
func (r *RAL) MutexTake(ctx context.Context, m *Mutex, timeoutMs uint32) error {
	n, err := r.mutex("mutex_take", m)
	if err != nil {
		return err
	}
	if err := n.Take(ctx, timeoutMs); err != nil {
		return errcode.Normalise("mutex_take", err)
	}
	m.value.Store(0)
	return nil
}

// MutexGive unlocks m. Only the owning thread may do so.
func (r *RAL) MutexGive(ctx context.Context, m *Mutex) error {
	n, err := r.mutex("mutex_give", m)
	if err != nil {
		return err
	}
	if err := n.Give(ctx); err != nil {
		return errcode.Normalise("mutex_give", err)
	}
	if _, held := n.Owner(); !held {
		m.value.Store(1)
	}
	return nil
}

// MutexGetOwner returns the RAL thread holding m. It returns nil when m is
// free or held by code outside any RAL thread.
func (r *RAL) MutexGetOwner(m *Mutex) (*Thread, error) {
	n, err := r.mutex("mutex_get_owner", m)
	if err != nil {
		return nil, err
	}
	id, held := n.Owner()
	if !held {
		m.value.Store(1)
		return nil, nil
	}
	m.value.Store(0)
	t, _ := r.ThreadByID(id)
	return t, nil
}
