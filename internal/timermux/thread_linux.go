//go:build linux

package timermux

import (
	"runtime"

	"golang.org/x/sys/unix"
)

const defaultEngine = EngineTimerfd

func lockThread() { runtime.LockOSThread() }

// currentID is the kernel thread id; the poller is pinned to its thread so
// the id identifies it uniquely.
func currentID() int64 { return int64(unix.Gettid()) }
