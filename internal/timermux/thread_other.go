//go:build !linux

package timermux

import (
	"runtime"

	"github.com/petermattis/goid"
)

const defaultEngine = EngineHeap

func lockThread() { runtime.LockOSThread() }

func currentID() int64 { return goid.Get() }

func newTimerfdEngine(*Mux) (engine, error) { return nil, ErrNoTimerfd }
