// Package cmsis is the RAL backend for CMSIS-RTOS2 kernels.
//
// The kernel is a shared library (an RTX5 or FreeRTOS build with the
// CMSIS-RTOS2 wrapper) loaded at run time through purego, so no cgo
// toolchain is required. Thread bodies and timer callbacks are entered
// through one trampoline each; the opaque argument the kernel passes back
// is a handle id, never a Go pointer.
package cmsis

import (
	"errors"
	"log/slog"
	"time"
)

const Name = "cmsis"

var (
	ErrNotFound    = errors.New("cmsis_library_not_found")
	ErrNotLoaded   = errors.New("cmsis_library_not_loaded")
	ErrUnsupported = errors.New("cmsis_platform_unsupported")
)

type Config struct {
	// Library is an explicit path to the kernel library. When empty the
	// library is searched for; see Load.
	Library    string
	SearchDirs []string

	// StartKernel runs osKernelStart on a dedicated thread after
	// osKernelInitialize. Leave it off when the host already started the
	// kernel.
	StartKernel bool

	// TickHz is used when osKernelGetTickFreq reports 0. Default 1000.
	TickHz uint32

	// TerminateGrace is how long ThreadDelete waits for a body to return
	// on its own before osThreadTerminate. Default 100ms.
	TerminateGrace time.Duration

	Logger *slog.Logger
}
