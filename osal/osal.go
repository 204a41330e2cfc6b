// Package osal is the os_* naming layer over one process-wide RAL.
//
// Init opens the backend compiled into the binary (the cmsis build tag
// selects CMSIS-RTOS2, otherwise the host simulation) and every other
// function forwards to it.
package osal

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"obc-hal-go/config"
	"obc-hal-go/errcode"
	"obc-hal-go/ral"
)

// Handle types are the RAL's.
type (
	Thread       = ral.Thread
	ThreadConfig = ral.ThreadConfig
	ThreadState  = ral.ThreadState
	Semaphore    = ral.Semaphore
	Mutex        = ral.Mutex
	Timer        = ral.Timer
	TimerConfig  = ral.TimerConfig
	Queue        = ral.Queue
)

const MaxTimeout = ral.MaxTimeout

const (
	TimerOneShot  = ral.TimerOneShot
	TimerPeriodic = ral.TimerPeriodic
)

type Option func(*options)

type options struct {
	log *slog.Logger
}

// WithLogger replaces the stderr logger built from config.LogLevel.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

var (
	mu  sync.RWMutex
	cur *ral.RAL
)

// Init installs the RAL. A second Init without Shutdown is an error.
func Init(cfg config.Config, opts ...Option) error {
	const op = "osal_init"
	cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return &errcode.E{C: errcode.InvalidArg, Op: op, Err: err}
	}
	if cfg.Backend != "" && cfg.Backend != BackendName {
		return &errcode.E{C: errcode.InvalidArg, Op: op,
			Msg: "binary built for " + BackendName + ", config asks for " + cfg.Backend}
	}

	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = newLogger(os.Stderr, cfg)
	}

	mu.Lock()
	defer mu.Unlock()
	if cur != nil {
		return &errcode.E{C: errcode.Error, Op: op, Msg: "already initialised"}
	}
	b, err := openBackend(cfg, o.log)
	if err != nil {
		return errcode.Normalise(op, err)
	}
	cur = ral.New(b, ral.WithLogger(o.log))
	cur.Logger().Info("osal ready", "tick_hz", cur.TickFreq())
	return nil
}

// Default returns the installed RAL, or nil before Init.
func Default() *ral.RAL {
	mu.RLock()
	defer mu.RUnlock()
	return cur
}

// Shutdown closes the backend. It is a no-op when nothing is installed.
func Shutdown() error {
	mu.Lock()
	r := cur
	cur = nil
	mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Close()
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	lvl, err := cfg.Level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func get(op string) (*ral.RAL, error) {
	if r := Default(); r != nil {
		return r, nil
	}
	return nil, &errcode.E{C: errcode.Error, Op: op, Msg: "not initialised"}
}

func ThreadCreate(cfg ThreadConfig) (*Thread, error) {
	r, err := get("thread_create")
	if err != nil {
		return nil, err
	}
	return r.ThreadCreate(cfg)
}

func ThreadDelete(t *Thread) error {
	r, err := get("thread_delete")
	if err != nil {
		return err
	}
	return r.ThreadDelete(t)
}

func ThreadSuspend(t *Thread) error {
	r, err := get("thread_suspend")
	if err != nil {
		return err
	}
	return r.ThreadSuspend(t)
}

func ThreadResume(t *Thread) error {
	r, err := get("thread_resume")
	if err != nil {
		return err
	}
	return r.ThreadResume(t)
}

func ThreadGetState(t *Thread) (ThreadState, error) {
	r, err := get("thread_get_state")
	if err != nil {
		return ral.StateError, err
	}
	return r.ThreadGetState(t)
}

func ThreadGetName(t *Thread) (string, error) {
	r, err := get("thread_get_name")
	if err != nil {
		return "", err
	}
	return r.ThreadGetName(t)
}

func ThreadSetPriority(t *Thread, p int) error {
	r, err := get("thread_set_priority")
	if err != nil {
		return err
	}
	return r.ThreadSetPriority(t, p)
}

func ThreadGetPriority(t *Thread) (int, error) {
	r, err := get("thread_get_priority")
	if err != nil {
		return 0, err
	}
	return r.ThreadGetPriority(t)
}

func ThreadGetStackSize(t *Thread) (uint32, error) {
	r, err := get("thread_get_stack_size")
	if err != nil {
		return 0, err
	}
	return r.ThreadGetStackSize(t)
}

func ThreadGetStackRemainingSize(t *Thread) (uint32, error) {
	r, err := get("thread_get_stack_remaining_size")
	if err != nil {
		return 0, err
	}
	return r.ThreadGetStackRemainingSize(t)
}

func Delay(ctx context.Context, ms uint32) error {
	r, err := get("delay")
	if err != nil {
		return err
	}
	return r.Delay(ctx, ms)
}

func DelayUntil(ctx context.Context, tick uint32) error {
	r, err := get("delay_until")
	if err != nil {
		return err
	}
	return r.DelayUntil(ctx, tick)
}

// TickCount is 0 before Init.
func TickCount() uint32 {
	if r := Default(); r != nil {
		return r.TickCount()
	}
	return 0
}

func SemCreateBinary() (*Semaphore, error) {
	r, err := get("sem_create_binary")
	if err != nil {
		return nil, err
	}
	return r.SemCreateBinary()
}

func SemCreateCounting(max, initial uint32) (*Semaphore, error) {
	r, err := get("sem_create_counting")
	if err != nil {
		return nil, err
	}
	return r.SemCreateCounting(max, initial)
}

func SemDelete(s *Semaphore) error {
	r, err := get("sem_delete")
	if err != nil {
		return err
	}
	return r.SemDelete(s)
}

func SemTake(ctx context.Context, s *Semaphore, timeoutMs uint32) error {
	r, err := get("sem_take")
	if err != nil {
		return err
	}
	return r.SemTake(ctx, s, timeoutMs)
}

func SemGive(s *Semaphore) error {
	r, err := get("sem_give")
	if err != nil {
		return err
	}
	return r.SemGive(s)
}

func SemGetCount(s *Semaphore) (uint32, error) {
	r, err := get("sem_get_count")
	if err != nil {
		return 0, err
	}
	return r.SemGetCount(s)
}

func MutexCreate() (*Mutex, error) {
	r, err := get("mutex_create")
	if err != nil {
		return nil, err
	}
	return r.MutexCreate()
}

func MutexDelete(m *Mutex) error {
	r, err := get("mutex_delete")
	if err != nil {
		return err
	}
	return r.MutexDelete(m)
}

func MutexTake(ctx context.Context, m *Mutex, timeoutMs uint32) error {
	r, err := get("mutex_take")
	if err != nil {
		return err
	}
	return r.MutexTake(ctx, m, timeoutMs)
}

func MutexGive(ctx context.Context, m *Mutex) error {
	r, err := get("mutex_give")
	if err != nil {
		return err
	}
	return r.MutexGive(ctx, m)
}

func MutexGetOwner(m *Mutex) (*Thread, error) {
	r, err := get("mutex_get_owner")
	if err != nil {
		return nil, err
	}
	return r.MutexGetOwner(m)
}

func TimerCreate(cfg TimerConfig) (*Timer, error) {
	r, err := get("timer_create")
	if err != nil {
		return nil, err
	}
	return r.TimerCreate(cfg)
}

func TimerStart(t *Timer, periodMs uint32) error {
	r, err := get("timer_start")
	if err != nil {
		return err
	}
	return r.TimerStart(t, periodMs)
}

func TimerStop(t *Timer) error {
	r, err := get("timer_stop")
	if err != nil {
		return err
	}
	return r.TimerStop(t)
}

func TimerIsActive(t *Timer) (bool, error) {
	r, err := get("timer_is_active")
	if err != nil {
		return false, err
	}
	return r.TimerIsActive(t)
}

func TimerDelete(t *Timer) error {
	r, err := get("timer_delete")
	if err != nil {
		return err
	}
	return r.TimerDelete(t)
}

func QueueCreate(length, itemSize uint32) (*Queue, error) {
	r, err := get("queue_create")
	if err != nil {
		return nil, err
	}
	return r.QueueCreate(length, itemSize)
}

func QueueDelete(q *Queue) error {
	r, err := get("queue_delete")
	if err != nil {
		return err
	}
	return r.QueueDelete(q)
}

func QueueFlush(q *Queue) error {
	r, err := get("queue_flush")
	if err != nil {
		return err
	}
	return r.QueueFlush(q)
}

func QueueSend(ctx context.Context, q *Queue, item []byte, timeoutMs uint32) error {
	r, err := get("queue_send")
	if err != nil {
		return err
	}
	return r.QueueSend(ctx, q, item, timeoutMs)
}

func QueueReceive(ctx context.Context, q *Queue, buf []byte, timeoutMs uint32) error {
	r, err := get("queue_receive")
	if err != nil {
		return err
	}
	return r.QueueReceive(ctx, q, buf, timeoutMs)
}

func QueueGetCount(q *Queue) (uint32, error) {
	r, err := get("queue_get_count")
	if err != nil {
		return 0, err
	}
	return r.QueueGetCount(q)
}

func QueueGetRemainCount(q *Queue) (uint32, error) {
	r, err := get("queue_get_remain_count")
	if err != nil {
		return 0, err
	}
	return r.QueueGetRemainCount(q)
}
