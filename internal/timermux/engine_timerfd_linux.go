//go:build linux

package timermux

import (
	"encoding/binary"
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

// timerfdEngine arms one timerfd per node and polls them all, plus an
// eventfd the other goroutines write to when the timer set changes.
type timerfdEngine struct {
	m *Mux

	mu     sync.Mutex
	wakeFd int   // -1 once shut down
	reap   []int // descriptors of released nodes, closed by the poller
}

func newTimerfdEngine(m *Mux) (engine, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &timerfdEngine{m: m, wakeFd: fd}, nil
}

func (e *timerfdEngine) arm(n *Node) error {
	fd, err := unix.TimerfdCreate(unix.CLOCK_REALTIME, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return err
	}
	spec := unix.ItimerSpec{Value: unix.NsecToTimespec(int64(n.interval))}
	if n.mode == Periodic {
		spec.Interval = spec.Value
	}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		unix.Close(fd)
		return err
	}
	n.fd = fd
	return nil
}

// release disarms the node's timerfd. The descriptor itself is closed by
// the poller between cycles so a poll in progress never sees it reused.
func (e *timerfdEngine) release(n *Node) {
	if n.fd < 0 {
		return
	}
	_ = unix.TimerfdSettime(n.fd, 0, &unix.ItimerSpec{}, nil)
	e.mu.Lock()
	e.reap = append(e.reap, n.fd)
	e.mu.Unlock()
	n.fd = -1
}

func (e *timerfdEngine) wake() {
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.wakeFd < 0 {
		return
	}
	_, _ = unix.Write(e.wakeFd, one[:])
}

func (e *timerfdEngine) closeReaped() {
	e.mu.Lock()
	fds := e.reap
	e.reap = nil
	e.mu.Unlock()
	for _, fd := range fds {
		unix.Close(fd)
	}
}

func (e *timerfdEngine) shutdown() {
	e.closeReaped()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.wakeFd >= 0 {
		unix.Close(e.wakeFd)
		e.wakeFd = -1
	}
}

func (e *timerfdEngine) loop(m *Mux) {
	m.bindPoller()
	pollMs := int(m.cfg.PollInterval.Milliseconds())
	if pollMs <= 0 {
		pollMs = 1
	}

	var (
		nodes []*Node
		fds   []unix.PollFd
		owner []*Node // owner[i] is the node behind fds[i]; nil for the wake fd
		buf   [8]byte
	)
	for !m.quitting() {
		e.closeReaped()

		nodes = m.snapshot(nodes)
		fds = append(fds[:0], unix.PollFd{Fd: int32(e.wakeFd), Events: unix.POLLIN})
		owner = append(owner[:0], nil)
		m.mu.Lock()
		for _, n := range nodes {
			if n.fd < 0 || n.stopped {
				continue
			}
			fds = append(fds, unix.PollFd{Fd: int32(n.fd), Events: unix.POLLIN})
			owner = append(owner, n)
		}
		m.mu.Unlock()

		ready, err := unix.Poll(fds, pollMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			m.log.Error("poll failed", "err", err)
			continue
		}
		if ready == 0 {
			continue
		}

		for i, pfd := range fds {
			if pfd.Revents&unix.POLLIN == 0 {
				continue
			}
			// Descriptors in this cycle stay open until the next
			// closeReaped, so reading a released node's fd is harmless.
			if _, err := unix.Read(int(pfd.Fd), buf[:]); err != nil {
				continue
			}
			if n := owner[i]; n != nil && binary.LittleEndian.Uint64(buf[:]) > 0 {
				m.dispatch(n)
			}
		}
	}
}
