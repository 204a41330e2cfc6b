package posix

import (
	"sync"

	"obc-hal-go/errcode"
	"obc-hal-go/internal/timermux"
	"obc-hal-go/ral"
	"obc-hal-go/x/timex"
)

// timer arms a fresh multiplexer node on every Start.
type timer struct {
	b    *Backend
	name string
	mode timermux.Mode
	fire func()

	mu   sync.Mutex
	node *timermux.Node
}

func (b *Backend) NewTimer(spec ral.TimerSpec) (ral.NativeTimer, error) {
	if spec.Fire == nil {
		return nil, &errcode.E{C: errcode.InvalidArg, Op: "timer_new", Msg: "nil callback"}
	}
	mode := timermux.OneShot
	if spec.Mode == ral.TimerPeriodic {
		mode = timermux.Periodic
	}
	return &timer{b: b, name: spec.Name, mode: mode, fire: spec.Fire}, nil
}

func (t *timer) Start(periodMs uint32) error {
	n, err := t.b.mux.StartTimer(timex.FromMs(periodMs), t.expire, t.mode, nil)
	if err != nil {
		return err
	}
	t.mu.Lock()
	prev := t.node
	t.node = n
	t.mu.Unlock()
	t.b.mux.StopTimer(prev)
	return nil
}

func (t *timer) expire(any) { t.fire() }

// Stop disarms the timer. Stopping a timer that is not running is an
// error, as is stopping a one-shot that already fired.
func (t *timer) Stop() error {
	t.mu.Lock()
	n := t.node
	t.node = nil
	t.mu.Unlock()
	if n == nil {
		return &errcode.E{C: errcode.Error, Op: "timer_stop", Msg: "timer not running"}
	}
	t.b.mux.StopTimer(n)
	if n.Mode() == timermux.OneShot && n.Expired() {
		return &errcode.E{C: errcode.Error, Op: "timer_stop", Msg: "timer not running"}
	}
	return nil
}

func (t *timer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.node != nil && !(t.node.Mode() == timermux.OneShot && t.node.Expired())
}

func (t *timer) Delete() error {
	t.mu.Lock()
	n := t.node
	t.node = nil
	t.mu.Unlock()
	t.b.mux.StopTimer(n)
	return nil
}
