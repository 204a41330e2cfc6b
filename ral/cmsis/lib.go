//go:build (linux || darwin) && (amd64 || arm64)

package cmsis

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	libOS2  uintptr
	loaded  bool
	loadErr error
	loadMu  sync.Mutex
	libPath string

	osKernelInitialize   func() int32
	osKernelStart        func() int32
	osKernelGetState     func() int32
	osKernelGetTickCount func() uint32
	osKernelGetTickFreq  func() uint32

	osThreadNew           func(fn uintptr, arg uintptr, attr *threadAttr) uintptr
	osThreadGetId         func() uintptr
	osThreadGetName       func(id uintptr) string
	osThreadGetState      func(id uintptr) int32
	osThreadGetStackSize  func(id uintptr) uint32
	osThreadGetStackSpace func(id uintptr) uint32
	osThreadSetPriority   func(id uintptr, prio int32) int32
	osThreadGetPriority   func(id uintptr) int32
	osThreadSuspend       func(id uintptr) int32
	osThreadResume        func(id uintptr) int32
	osThreadTerminate     func(id uintptr) int32

	osDelay      func(ticks uint32) int32
	osDelayUntil func(ticks uint32) int32

	osSemaphoreNew      func(max, initial uint32, attr *objAttr) uintptr
	osSemaphoreAcquire  func(id uintptr, timeout uint32) int32
	osSemaphoreRelease  func(id uintptr) int32
	osSemaphoreGetCount func(id uintptr) uint32
	osSemaphoreDelete   func(id uintptr) int32

	osMutexNew      func(attr *objAttr) uintptr
	osMutexAcquire  func(id uintptr, timeout uint32) int32
	osMutexRelease  func(id uintptr) int32
	osMutexGetOwner func(id uintptr) uintptr
	osMutexDelete   func(id uintptr) int32

	osTimerNew       func(fn uintptr, typ int32, arg uintptr, attr *objAttr) uintptr
	osTimerStart     func(id uintptr, ticks uint32) int32
	osTimerStop      func(id uintptr) int32
	osTimerIsRunning func(id uintptr) uint32
	osTimerDelete    func(id uintptr) int32

	osMessageQueueNew      func(count, size uint32, attr *mqAttr) uintptr
	osMessageQueuePut      func(id uintptr, msg unsafe.Pointer, prio uint8, timeout uint32) int32
	osMessageQueueGet      func(id uintptr, msg unsafe.Pointer, prio *uint8, timeout uint32) int32
	osMessageQueueGetCount func(id uintptr) uint32
	osMessageQueueGetSpace func(id uintptr) uint32
	osMessageQueueReset    func(id uintptr) int32
	osMessageQueueDelete   func(id uintptr) int32
)

// Load opens the kernel library and binds every function the backend
// uses. It is idempotent, and a failure is sticky.
//
// The library is looked up in this order:
//  1. path, when not empty
//  2. RAL_CMSIS_LIB (a file)
//  3. RAL_CMSIS_DIR (a directory)
//  4. LD_LIBRARY_PATH / DYLD_LIBRARY_PATH
//  5. extra, then the standard library directories
func Load(path string, extra ...string) error {
	loadMu.Lock()
	defer loadMu.Unlock()

	if loaded {
		return nil
	}
	if loadErr != nil {
		return loadErr
	}

	found, err := findLibrary(path, extra)
	if err != nil {
		loadErr = err
		return err
	}
	lib, err := purego.Dlopen(found, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		loadErr = fmt.Errorf("%w: dlopen %s: %v", ErrNotFound, found, err)
		return loadErr
	}
	if err := registerBindings(lib); err != nil {
		loadErr = fmt.Errorf("%s: %w", found, err)
		return loadErr
	}
	libOS2 = lib
	libPath = found
	loaded = true
	return nil
}

func IsLoaded() bool {
	loadMu.Lock()
	defer loadMu.Unlock()
	return loaded
}

func LoadError() error {
	loadMu.Lock()
	defer loadMu.Unlock()
	return loadErr
}

// Status describes the library state for diagnostics.
func Status() string {
	loadMu.Lock()
	defer loadMu.Unlock()
	switch {
	case loaded:
		return "loaded from " + libPath
	case loadErr != nil:
		return "not loaded: " + loadErr.Error()
	default:
		return "not loaded"
	}
}

func registerBindings(lib uintptr) (err error) {
	defer func() {
		// RegisterLibFunc panics on a missing symbol
		if r := recover(); r != nil {
			err = fmt.Errorf("bind: %v", r)
		}
	}()
	purego.RegisterLibFunc(&osKernelInitialize, lib, "osKernelInitialize")
	purego.RegisterLibFunc(&osKernelStart, lib, "osKernelStart")
	purego.RegisterLibFunc(&osKernelGetState, lib, "osKernelGetState")
	purego.RegisterLibFunc(&osKernelGetTickCount, lib, "osKernelGetTickCount")
	purego.RegisterLibFunc(&osKernelGetTickFreq, lib, "osKernelGetTickFreq")

	purego.RegisterLibFunc(&osThreadNew, lib, "osThreadNew")
	purego.RegisterLibFunc(&osThreadGetId, lib, "osThreadGetId")
	purego.RegisterLibFunc(&osThreadGetName, lib, "osThreadGetName")
	purego.RegisterLibFunc(&osThreadGetState, lib, "osThreadGetState")
	purego.RegisterLibFunc(&osThreadGetStackSize, lib, "osThreadGetStackSize")
	purego.RegisterLibFunc(&osThreadGetStackSpace, lib, "osThreadGetStackSpace")
	purego.RegisterLibFunc(&osThreadSetPriority, lib, "osThreadSetPriority")
	purego.RegisterLibFunc(&osThreadGetPriority, lib, "osThreadGetPriority")
	purego.RegisterLibFunc(&osThreadSuspend, lib, "osThreadSuspend")
	purego.RegisterLibFunc(&osThreadResume, lib, "osThreadResume")
	purego.RegisterLibFunc(&osThreadTerminate, lib, "osThreadTerminate")

	purego.RegisterLibFunc(&osDelay, lib, "osDelay")
	purego.RegisterLibFunc(&osDelayUntil, lib, "osDelayUntil")

	purego.RegisterLibFunc(&osSemaphoreNew, lib, "osSemaphoreNew")
	purego.RegisterLibFunc(&osSemaphoreAcquire, lib, "osSemaphoreAcquire")
	purego.RegisterLibFunc(&osSemaphoreRelease, lib, "osSemaphoreRelease")
	purego.RegisterLibFunc(&osSemaphoreGetCount, lib, "osSemaphoreGetCount")
	purego.RegisterLibFunc(&osSemaphoreDelete, lib, "osSemaphoreDelete")

	purego.RegisterLibFunc(&osMutexNew, lib, "osMutexNew")
	purego.RegisterLibFunc(&osMutexAcquire, lib, "osMutexAcquire")
	purego.RegisterLibFunc(&osMutexRelease, lib, "osMutexRelease")
	purego.RegisterLibFunc(&osMutexGetOwner, lib, "osMutexGetOwner")
	purego.RegisterLibFunc(&osMutexDelete, lib, "osMutexDelete")

	purego.RegisterLibFunc(&osTimerNew, lib, "osTimerNew")
	purego.RegisterLibFunc(&osTimerStart, lib, "osTimerStart")
	purego.RegisterLibFunc(&osTimerStop, lib, "osTimerStop")
	purego.RegisterLibFunc(&osTimerIsRunning, lib, "osTimerIsRunning")
	purego.RegisterLibFunc(&osTimerDelete, lib, "osTimerDelete")

	purego.RegisterLibFunc(&osMessageQueueNew, lib, "osMessageQueueNew")
	purego.RegisterLibFunc(&osMessageQueuePut, lib, "osMessageQueuePut")
	purego.RegisterLibFunc(&osMessageQueueGet, lib, "osMessageQueueGet")
	purego.RegisterLibFunc(&osMessageQueueGetCount, lib, "osMessageQueueGetCount")
	purego.RegisterLibFunc(&osMessageQueueGetSpace, lib, "osMessageQueueGetSpace")
	purego.RegisterLibFunc(&osMessageQueueReset, lib, "osMessageQueueReset")
	purego.RegisterLibFunc(&osMessageQueueDelete, lib, "osMessageQueueDelete")
	return nil
}

func libraryNames() []string {
	if runtime.GOOS == "darwin" {
		return []string{"libcmsis_os2.dylib", "librtx5.dylib"}
	}
	return []string{"libcmsis_os2.so", "libcmsis_os2.so.2", "librtx5.so"}
}

func findLibrary(path string, extra []string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
		}
		return path, nil
	}
	if p := os.Getenv("RAL_CMSIS_LIB"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%w: RAL_CMSIS_LIB=%s: %v", ErrNotFound, p, err)
		}
		return p, nil
	}

	names := libraryNames()
	if dir := os.Getenv("RAL_CMSIS_DIR"); dir != "" {
		for _, name := range names {
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
		return "", fmt.Errorf("%w: RAL_CMSIS_DIR=%s does not contain %s", ErrNotFound, dir, names[0])
	}

	var dirs []string
	env := "LD_LIBRARY_PATH"
	if runtime.GOOS == "darwin" {
		env = "DYLD_LIBRARY_PATH"
	}
	if p := os.Getenv(env); p != "" {
		dirs = append(dirs, filepath.SplitList(p)...)
	}
	dirs = append(dirs, extra...)
	dirs = append(dirs, "/usr/local/lib", "/usr/lib", "/lib")
	switch runtime.GOARCH {
	case "amd64":
		dirs = append(dirs, "/usr/lib/x86_64-linux-gnu")
	case "arm64":
		dirs = append(dirs, "/usr/lib/aarch64-linux-gnu")
	}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}

	searched := 0
	for _, name := range names {
		for _, dir := range dirs {
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
			searched++
		}
	}
	return "", fmt.Errorf("%w: looked for %s in %d locations; set RAL_CMSIS_LIB or RAL_CMSIS_DIR",
		ErrNotFound, names[0], searched)
}

var (
	trampolinesOnce sync.Once
	threadEntryPtr  uintptr
	timerFirePtr    uintptr
)

// trampolines returns the C entry points for thread bodies and timer
// callbacks. They are created once; purego caps the number of callbacks.
func trampolines() (thread, timer uintptr) {
	trampolinesOnce.Do(func() {
		threadEntryPtr = purego.NewCallback(func(arg uintptr) { enterThread(arg) })
		timerFirePtr = purego.NewCallback(func(arg uintptr) { fireTimer(arg) })
	})
	return threadEntryPtr, timerFirePtr
}
