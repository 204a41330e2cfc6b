//go:build (linux || darwin) && (amd64 || arm64)

package cmsis

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"time"
	"unsafe"

	"obc-hal-go/errcode"
	"obc-hal-go/internal/handles"
	"obc-hal-go/ral"
	"obc-hal-go/x/mathx"
	"obc-hal-go/x/timex"
)

const defaultTerminateGrace = 100 * time.Millisecond

// objects carries Go state through the kernel's void* arguments. It is
// shared by every Backend because the trampolines are process-wide.
var objects = handles.New()

type Backend struct {
	cfg    Config
	log    *slog.Logger
	freq   uint32
	thread uintptr // trampolines
	timer  uintptr
}

var _ ral.Backend = (*Backend)(nil)

// Open loads the kernel library and returns a ready backend.
func Open(cfg Config) (ral.Backend, error) { return New(cfg) }

func New(cfg Config) (*Backend, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.TickHz == 0 {
		cfg.TickHz = 1000
	}
	if cfg.TerminateGrace <= 0 {
		cfg.TerminateGrace = defaultTerminateGrace
	}
	if err := Load(cfg.Library, cfg.SearchDirs...); err != nil {
		return nil, &errcode.E{C: errcode.Error, Op: "cmsis_open", Err: err}
	}
	b := &Backend{cfg: cfg, log: cfg.Logger.With("component", "ral/cmsis")}

	if osKernelGetState() == osKernelInactive {
		if err := status("kernel_initialize", osKernelInitialize()); err != nil {
			return nil, err
		}
	}
	if cfg.StartKernel && osKernelGetState() == osKernelReady {
		go func() {
			runtime.LockOSThread()
			// does not return while the kernel runs
			rc := osKernelStart()
			b.log.Error("osKernelStart returned", "status", statusName(rc))
		}()
	}

	b.freq = osKernelGetTickFreq()
	if b.freq == 0 {
		b.freq = cfg.TickHz
	}
	b.thread, b.timer = trampolines()
	b.log.Debug("backend ready", "library", Status(), "tick_hz", b.freq)
	return b, nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Close() error { return nil }

func (b *Backend) ticks(ms uint32) uint32 { return timex.MsToTicks(ms, b.freq) }

func (b *Backend) TickCount() uint32 { return osKernelGetTickCount() }
func (b *Backend) TickFreq() uint32  { return b.freq }

func (b *Backend) Delay(ctx context.Context, ms uint32) error {
	if ctx != nil && ctx.Err() != nil {
		return &errcode.E{C: errcode.Error, Op: "delay", Msg: "cancelled", Err: ctx.Err()}
	}
	if ms == 0 {
		runtime.Gosched()
		return nil
	}
	return status("delay", osDelay(b.ticks(ms)))
}

func (b *Backend) DelayUntil(ctx context.Context, tick uint32) error {
	if ctx != nil && ctx.Err() != nil {
		return &errcode.E{C: errcode.Error, Op: "delay_until", Msg: "cancelled", Err: ctx.Err()}
	}
	return status("delay_until", osDelayUntil(tick))
}

// ---- threads ----

type cthread struct {
	b      *Backend
	id     uintptr
	hid    handles.ID
	name   []byte
	entry  func(context.Context)
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	start  chan struct{} // closed once id is set
}

func (b *Backend) NewThread(spec ral.ThreadSpec) (ral.NativeThread, error) {
	const op = "thread_new"
	if spec.Entry == nil {
		return nil, &errcode.E{C: errcode.InvalidArg, Op: op, Msg: "nil entry"}
	}
	th := &cthread{
		b:     b,
		name:  cstring(spec.Name),
		entry: spec.Entry,
		done:  make(chan struct{}),
		start: make(chan struct{}),
	}
	th.ctx, th.cancel = context.WithCancel(context.Background())
	th.hid = objects.Register(th)

	attr := threadAttr{
		name:      &th.name[0],
		stackSize: spec.StackSize,
		priority:  b.priority(spec.Priority),
	}
	id := osThreadNew(b.thread, uintptr(th.hid), &attr)
	runtime.KeepAlive(&attr)
	if id == 0 {
		objects.Unregister(th.hid)
		th.cancel()
		return nil, &errcode.E{C: errcode.Error, Op: op, Msg: "osThreadNew failed"}
	}
	th.id = id
	close(th.start)
	return th, nil
}

// priority maps a RAL priority onto osPriority_t. 0 selects normal.
func (b *Backend) priority(p int) int32 {
	if p == 0 {
		return osPriorityNormal
	}
	return int32(mathx.Clamp(p, int(osPriorityIdle), int(osPriorityISR-1)))
}

func enterThread(arg uintptr) {
	th, ok := handles.Typed[*cthread](objects, handles.ID(arg))
	if !ok {
		return
	}
	<-th.start
	defer func() {
		if r := recover(); r != nil {
			th.b.log.Error("thread panicked", "thread", string(th.name[:len(th.name)-1]), "panic", r)
		}
		objects.Unregister(th.hid)
		close(th.done)
	}()
	th.entry(th.ctx)
}

func (th *cthread) ID() int64 { return int64(th.id) }

// Terminate asks the body to return by cancelling its context and waits
// TerminateGrace for it before terminating the kernel thread.
func (th *cthread) Terminate() error {
	th.cancel()
	select {
	case <-th.done:
		return nil
	case <-time.After(th.b.cfg.TerminateGrace):
	}
	th.b.log.Warn("thread did not return; terminating", "thread", string(th.name[:len(th.name)-1]))
	objects.Unregister(th.hid)
	return status("thread_terminate", osThreadTerminate(th.id))
}

func (th *cthread) Suspend() error { return status("thread_suspend", osThreadSuspend(th.id)) }
func (th *cthread) Resume() error  { return status("thread_resume", osThreadResume(th.id)) }

func (th *cthread) State() ral.ThreadState { return threadState(osThreadGetState(th.id)) }

func (th *cthread) SetPriority(p int) error {
	return status("thread_set_priority", osThreadSetPriority(th.id, th.b.priority(p)))
}

func (th *cthread) Priority() (int, error) {
	p := osThreadGetPriority(th.id)
	if p == osPriorityError {
		return 0, &errcode.E{C: errcode.Error, Op: "thread_get_priority"}
	}
	return int(p), nil
}

func (th *cthread) StackSize() (uint32, error) { return osThreadGetStackSize(th.id), nil }

func (th *cthread) StackSpace() (uint32, error) { return osThreadGetStackSpace(th.id), nil }

// ---- semaphores and mutexes ----

type csem struct {
	b  *Backend
	id uintptr
}

func (b *Backend) NewSemaphore(max, initial uint32) (ral.NativeSemaphore, error) {
	id := osSemaphoreNew(max, initial, nil)
	if id == 0 {
		return nil, &errcode.E{C: errcode.Error, Op: "semaphore_new", Msg: "osSemaphoreNew failed"}
	}
	return &csem{b: b, id: id}, nil
}

func (s *csem) Take(_ context.Context, timeoutMs uint32) error {
	t := s.b.ticks(timeoutMs)
	return tryStatus("sem_take", osSemaphoreAcquire(s.id, t), t)
}

func (s *csem) Give() error   { return status("sem_give", osSemaphoreRelease(s.id)) }
func (s *csem) Count() uint32 { return osSemaphoreGetCount(s.id) }
func (s *csem) Delete() error { return status("sem_delete", osSemaphoreDelete(s.id)) }

type cmutex struct {
	b  *Backend
	id uintptr
}

func (b *Backend) NewMutex() (ral.NativeMutex, error) {
	attr := objAttr{attrBits: osMutexPrioInherit}
	id := osMutexNew(&attr)
	runtime.KeepAlive(&attr)
	if id == 0 {
		return nil, &errcode.E{C: errcode.Error, Op: "mutex_new", Msg: "osMutexNew failed"}
	}
	return &cmutex{b: b, id: id}, nil
}

func (m *cmutex) Take(_ context.Context, timeoutMs uint32) error {
	t := m.b.ticks(timeoutMs)
	return tryStatus("mutex_take", osMutexAcquire(m.id, t), t)
}

func (m *cmutex) Give(context.Context) error { return status("mutex_give", osMutexRelease(m.id)) }

func (m *cmutex) Owner() (int64, bool) {
	id := osMutexGetOwner(m.id)
	return int64(id), id != 0
}

func (m *cmutex) Delete() error { return status("mutex_delete", osMutexDelete(m.id)) }

// ---- timers ----

type ctimer struct {
	b    *Backend
	id   uintptr
	hid  handles.ID
	name []byte
	fire func()
}

func (b *Backend) NewTimer(spec ral.TimerSpec) (ral.NativeTimer, error) {
	if spec.Fire == nil {
		return nil, &errcode.E{C: errcode.InvalidArg, Op: "timer_new", Msg: "nil callback"}
	}
	t := &ctimer{b: b, name: cstring(spec.Name), fire: spec.Fire}
	t.hid = objects.Register(t)
	typ := osTimerOnce
	if spec.Mode == ral.TimerPeriodic {
		typ = osTimerPeriodic
	}
	attr := objAttr{name: &t.name[0]}
	id := osTimerNew(b.timer, typ, uintptr(t.hid), &attr)
	runtime.KeepAlive(&attr)
	if id == 0 {
		objects.Unregister(t.hid)
		return nil, &errcode.E{C: errcode.Error, Op: "timer_new", Msg: "osTimerNew failed"}
	}
	t.id = id
	return t, nil
}

func fireTimer(arg uintptr) {
	t, ok := handles.Typed[*ctimer](objects, handles.ID(arg))
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.b.log.Error("timer callback panicked", "panic", r)
		}
	}()
	t.fire()
}

func (t *ctimer) Start(periodMs uint32) error {
	return status("timer_start", osTimerStart(t.id, t.b.ticks(periodMs)))
}

func (t *ctimer) Stop() error { return status("timer_stop", osTimerStop(t.id)) }
func (t *ctimer) IsActive() bool { return osTimerIsRunning(t.id) != 0 }

func (t *ctimer) Delete() error {
	err := status("timer_delete", osTimerDelete(t.id))
	objects.Unregister(t.hid)
	return err
}

// ---- message queues ----

type cqueue struct {
	b        *Backend
	id       uintptr
	itemSize uint32
}

func (b *Backend) NewQueue(length, itemSize uint32) (ral.NativeQueue, error) {
	id := osMessageQueueNew(length, itemSize, nil)
	if id == 0 {
		return nil, &errcode.E{C: errcode.Error, Op: "queue_new", Msg: "osMessageQueueNew failed"}
	}
	return &cqueue{b: b, id: id, itemSize: itemSize}, nil
}

func (q *cqueue) Send(_ context.Context, item []byte, timeoutMs uint32) error {
	if uint32(len(item)) < q.itemSize {
		return &errcode.E{C: errcode.InvalidArg, Op: "queue_send"}
	}
	t := q.b.ticks(timeoutMs)
	rc := osMessageQueuePut(q.id, unsafe.Pointer(&item[0]), 0, t)
	runtime.KeepAlive(item)
	return tryStatus("queue_send", rc, t)
}

func (q *cqueue) Receive(_ context.Context, buf []byte, timeoutMs uint32) error {
	if uint32(len(buf)) < q.itemSize {
		return &errcode.E{C: errcode.InvalidArg, Op: "queue_receive"}
	}
	t := q.b.ticks(timeoutMs)
	rc := osMessageQueueGet(q.id, unsafe.Pointer(&buf[0]), nil, t)
	runtime.KeepAlive(buf)
	return tryStatus("queue_receive", rc, t)
}

func (q *cqueue) Count() uint32 { return osMessageQueueGetCount(q.id) }
func (q *cqueue) Space() uint32 { return osMessageQueueGetSpace(q.id) }
func (q *cqueue) Flush() error  { return status("queue_flush", osMessageQueueReset(q.id)) }
func (q *cqueue) Delete() error { return status("queue_delete", osMessageQueueDelete(q.id)) }
