package ral

import "context"

// Backend is the capability set a concrete RTOS provides. Exactly one is
// compiled into a firmware image; tests may supply their own.
//
// Every method may return any error. The RAL collapses it into the status
// taxonomy before handing it to callers.
type Backend interface {
	Name() string

	NewThread(spec ThreadSpec) (NativeThread, error)
	NewSemaphore(max, initial uint32) (NativeSemaphore, error)
	NewMutex() (NativeMutex, error)
	NewTimer(spec TimerSpec) (NativeTimer, error)
	NewQueue(length, itemSize uint32) (NativeQueue, error)

	// Delay blocks the caller for ms milliseconds; MaxTimeout blocks until
	// ctx ends.
	Delay(ctx context.Context, ms uint32) error
	// DelayUntil blocks until the tick counter reaches tick.
	DelayUntil(ctx context.Context, tick uint32) error
	TickCount() uint32
	TickFreq() uint32

	Close() error
}

// ThreadSpec is what a backend needs to start a thread. Entry runs on the
// new thread with a context the backend derives for it.
type ThreadSpec struct {
	Name      string
	StackSize uint32
	Priority  int
	Entry     func(ctx context.Context)
}

type NativeThread interface {
	// ID identifies the thread within its backend; it is never 0.
	ID() int64
	Terminate() error
	Suspend() error
	Resume() error
	State() ThreadState
	SetPriority(p int) error
	Priority() (int, error)
	StackSize() (uint32, error)
	StackSpace() (uint32, error)
}

type NativeSemaphore interface {
	Take(ctx context.Context, timeoutMs uint32) error
	Give() error
	Count() uint32
	Delete() error
}

type NativeMutex interface {
	Take(ctx context.Context, timeoutMs uint32) error
	Give(ctx context.Context) error
	// Owner returns the holder's thread ID. ok is false when the mutex is
	// free.
	Owner() (id int64, ok bool)
	Delete() error
}

type TimerSpec struct {
	Name string
	Mode TimerMode
	Fire func()
}

type NativeTimer interface {
	Start(periodMs uint32) error
	Stop() error
	IsActive() bool
	Delete() error
}

type NativeQueue interface {
	Send(ctx context.Context, item []byte, timeoutMs uint32) error
	Receive(ctx context.Context, buf []byte, timeoutMs uint32) error
	Count() uint32
	Space() uint32
	Flush() error
	Delete() error
}
