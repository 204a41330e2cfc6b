package cmsis

import (
	"testing"
	"unsafe"

	"obc-hal-go/errcode"
	"obc-hal-go/ral"
)

func TestStatusTranslation(t *testing.T) {
	cases := map[int32]errcode.Code{
		osOK:             errcode.OK,
		osError:          errcode.Error,
		osErrorTimeout:   errcode.Timeout,
		osErrorResource:  errcode.Error,
		osErrorParameter: errcode.InvalidArg,
		osErrorNoMemory:  errcode.Error,
		osErrorISR:       errcode.Error,
		-99:              errcode.Error,
	}
	for rc, want := range cases {
		if got := errcode.Of(status("op", rc)); got != want {
			t.Errorf("status(%s) = %s, want %s", statusName(rc), got, want)
		}
	}
}

func TestTryStatusTreatsBusyPollAsTimeout(t *testing.T) {
	if got := errcode.Of(tryStatus("take", osErrorResource, 0)); got != errcode.Timeout {
		t.Fatalf("zero-timeout resource error = %s", got)
	}
	if got := errcode.Of(tryStatus("take", osErrorResource, 10)); got != errcode.Error {
		t.Fatalf("timed resource error = %s", got)
	}
	if err := tryStatus("take", osOK, 0); err != nil {
		t.Fatalf("osOK = %v", err)
	}
}

func TestThreadStateMapping(t *testing.T) {
	cases := map[int32]ral.ThreadState{
		osThreadInactive:   ral.StateInactive,
		osThreadReady:      ral.StateReady,
		osThreadRunning:    ral.StateRunning,
		osThreadBlocked:    ral.StateBlocked,
		osThreadTerminated: ral.StateTerminated,
		osThreadError:      ral.StateError,
		0x7FFFFFFF:         ral.StateError,
	}
	for in, want := range cases {
		if got := threadState(in); got != want {
			t.Errorf("threadState(%d) = %v, want %v", in, got, want)
		}
	}
}

// Offsets follow the CMSIS-RTOS2 headers on LP64 targets.
func TestAttrLayout(t *testing.T) {
	if unsafe.Sizeof(uintptr(0)) != 8 {
		t.Skip("layout checked on 64-bit targets only")
	}
	var ta threadAttr
	checks := []struct {
		name      string
		got, want uintptr
	}{
		{"osThreadAttr_t size", unsafe.Sizeof(ta), 56},
		{"attr_bits", unsafe.Offsetof(ta.attrBits), 8},
		{"cb_mem", unsafe.Offsetof(ta.cbMem), 16},
		{"cb_size", unsafe.Offsetof(ta.cbSize), 24},
		{"stack_mem", unsafe.Offsetof(ta.stackMem), 32},
		{"stack_size", unsafe.Offsetof(ta.stackSize), 40},
		{"priority", unsafe.Offsetof(ta.priority), 44},
		{"tz_module", unsafe.Offsetof(ta.tzModule), 48},
		{"osSemaphoreAttr_t size", unsafe.Sizeof(objAttr{}), 32},
		{"osMessageQueueAttr_t size", unsafe.Sizeof(mqAttr{}), 48},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestCString(t *testing.T) {
	b := cstring("rx")
	if len(b) != 3 || b[2] != 0 || string(b[:2]) != "rx" {
		t.Fatalf("cstring = %q", b)
	}
}
