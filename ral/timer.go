package ral

import (
	"obc-hal-go/errcode"
)

type TimerConfig struct {
	Name     string
	Mode     TimerMode
	Callback func(arg any)
	Arg      any
}

// Timer is a software timer handle. Callbacks run on the backend's timer
// context and must not block.
type Timer struct {
	Name     string
	Mode     TimerMode
	Callback func(arg any)
	Arg      any

	native slot[NativeTimer]
}

func (r *RAL) TimerCreate(cfg TimerConfig) (*Timer, error) {
	const op = "timer_create"
	if cfg.Callback == nil {
		return nil, invalid(op, "nil callback")
	}
	if cfg.Mode > TimerPeriodic {
		return nil, invalid(op, "unknown mode")
	}
	t := &Timer{Name: truncName(cfg.Name), Mode: cfg.Mode, Callback: cfg.Callback, Arg: cfg.Arg}
	n, err := r.b.NewTimer(TimerSpec{Name: t.Name, Mode: t.Mode, Fire: t.fire})
	if err != nil {
		return nil, errcode.Normalise(op, err)
	}
	t.native.set(n)
	return t, nil
}

func (t *Timer) fire() { t.Callback(t.Arg) }

func (r *RAL) timer(op string, t *Timer) (NativeTimer, error) {
	if t == nil {
		return nil, deleted(op)
	}
	n, ok := t.native.get()
	if !ok {
		return nil, deleted(op)
	}
	return n, nil
}

// TimerStart arms t to expire after periodMs, and every periodMs after
// that for periodic timers. Starting a running timer restarts it.
func (r *RAL) TimerStart(t *Timer, periodMs uint32) error {
	const op = "timer_start"
	n, err := r.timer(op, t)
	if err != nil {
		return err
	}
	if periodMs == 0 || periodMs == MaxTimeout {
		return invalid(op, "period out of range")
	}
	return errcode.Normalise(op, n.Start(periodMs))
}

func (r *RAL) TimerStop(t *Timer) error {
	n, err := r.timer("timer_stop", t)
	if err != nil {
		return err
	}
	return errcode.Normalise("timer_stop", n.Stop())
}

// TimerIsActive reports whether t is armed. A one-shot timer goes
// inactive once it has fired.
func (r *RAL) TimerIsActive(t *Timer) (bool, error) {
	n, err := r.timer("timer_is_active", t)
	if err != nil {
		return false, err
	}
	return n.IsActive(), nil
}

func (r *RAL) TimerDelete(t *Timer) error {
	const op = "timer_delete"
	if t == nil {
		return deleted(op)
	}
	n, ok := t.native.detach()
	if !ok {
		return deleted(op)
	}
	return errcode.Normalise(op, n.Delete())
}
