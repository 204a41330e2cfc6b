package cmsis

import (
	"fmt"

	"obc-hal-go/errcode"
	"obc-hal-go/ral"
)

// osStatus_t
const (
	osOK             int32 = 0
	osError          int32 = -1
	osErrorTimeout   int32 = -2
	osErrorResource  int32 = -3
	osErrorParameter int32 = -4
	osErrorNoMemory  int32 = -5
	osErrorISR       int32 = -6
)

const osWaitForever uint32 = 0xFFFFFFFF

// osThreadState_t
const (
	osThreadInactive   int32 = 0
	osThreadReady      int32 = 1
	osThreadRunning    int32 = 2
	osThreadBlocked    int32 = 3
	osThreadTerminated int32 = 4
	osThreadError      int32 = -1
)

// osTimerType_t
const (
	osTimerOnce     int32 = 0
	osTimerPeriodic int32 = 1
)

// osKernelState_t
const (
	osKernelInactive int32 = 0
	osKernelReady    int32 = 1
	osKernelRunning  int32 = 2
)

// osMutexAttr_t attr_bits
const (
	osMutexRecursive   uint32 = 0x01
	osMutexPrioInherit uint32 = 0x02
	osMutexRobust      uint32 = 0x08
)

// osPriority_t
const (
	osPriorityError    int32 = -1
	osPriorityIdle     int32 = 1
	osPriorityNormal   int32 = 24
	osPriorityRealtime int32 = 48
	osPriorityISR      int32 = 56
)

// osThreadAttr_t
type threadAttr struct {
	name      *byte
	attrBits  uint32
	cbMem     uintptr
	cbSize    uint32
	stackMem  uintptr
	stackSize uint32
	priority  int32
	tzModule  uint32
	reserved  uint32
}

// osSemaphoreAttr_t, osMutexAttr_t and osTimerAttr_t share this layout.
type objAttr struct {
	name     *byte
	attrBits uint32
	cbMem    uintptr
	cbSize   uint32
}

// osMessageQueueAttr_t
type mqAttr struct {
	name     *byte
	attrBits uint32
	cbMem    uintptr
	cbSize   uint32
	mqMem    uintptr
	mqSize   uint32
}

func statusName(rc int32) string {
	switch rc {
	case osOK:
		return "osOK"
	case osError:
		return "osError"
	case osErrorTimeout:
		return "osErrorTimeout"
	case osErrorResource:
		return "osErrorResource"
	case osErrorParameter:
		return "osErrorParameter"
	case osErrorNoMemory:
		return "osErrorNoMemory"
	case osErrorISR:
		return "osErrorISR"
	default:
		return fmt.Sprintf("osStatus(%d)", rc)
	}
}

// status folds an osStatus_t into the RAL taxonomy. Detail beyond the
// four codes survives only in the message.
func status(op string, rc int32) error {
	switch rc {
	case osOK:
		return nil
	case osErrorParameter:
		return &errcode.E{C: errcode.InvalidArg, Op: op, Msg: statusName(rc)}
	case osErrorTimeout:
		return &errcode.E{C: errcode.Timeout, Op: op, Msg: statusName(rc)}
	default:
		return &errcode.E{C: errcode.Error, Op: op, Msg: statusName(rc)}
	}
}

// tryStatus is status for acquire-type calls. With a zero timeout the
// kernel reports an unavailable object as osErrorResource; that is the
// same outcome as a wait that timed out.
func tryStatus(op string, rc int32, ticks uint32) error {
	if rc == osErrorResource && ticks == 0 {
		return &errcode.E{C: errcode.Timeout, Op: op, Msg: statusName(rc)}
	}
	return status(op, rc)
}

func threadState(s int32) ral.ThreadState {
	switch s {
	case osThreadInactive:
		return ral.StateInactive
	case osThreadReady:
		return ral.StateReady
	case osThreadRunning:
		return ral.StateRunning
	case osThreadBlocked:
		return ral.StateBlocked
	case osThreadTerminated:
		return ral.StateTerminated
	default:
		return ral.StateError
	}
}

// cstring returns a NUL-terminated copy of s. The caller keeps the slice
// alive for as long as the kernel may read the name.
func cstring(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}
