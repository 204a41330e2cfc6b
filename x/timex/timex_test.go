package timex

import (
	"testing"
	"time"
)

func TestFromMs(t *testing.T) {
	if FromMs(MaxTimeout) != Forever {
		t.Fatal("MaxTimeout must map to Forever")
	}
	if FromMs(0) != 0 {
		t.Fatal("zero must stay a poll")
	}
	if FromMs(100) != 100*time.Millisecond {
		t.Fatal("100ms")
	}
}

func TestMsToTicks(t *testing.T) {
	cases := []struct {
		ms, hz, want uint32
	}{
		{10, 1000, 10},
		{10, 100, 1},
		{15, 100, 2},
		{1, 32768, 33},
		{MaxTimeout, 1000, MaxTimeout},
		{5, 0, 5},
	}
	for _, c := range cases {
		if got := MsToTicks(c.ms, c.hz); got != c.want {
			t.Fatalf("MsToTicks(%d,%d)=%d want %d", c.ms, c.hz, got, c.want)
		}
	}
}

func TestDeadline(t *testing.T) {
	if _, ok := Deadline(Forever); ok {
		t.Fatal("Forever has no deadline")
	}
	at, ok := Deadline(50 * time.Millisecond)
	if !ok || time.Until(at) <= 0 {
		t.Fatal("deadline should be in the future")
	}
}

func TestResetTimer(t *testing.T) {
	tm := time.NewTimer(time.Millisecond)
	time.Sleep(3 * time.Millisecond)
	ResetTimer(tm, time.Hour)
	select {
	case <-tm.C:
		t.Fatal("stale expiry leaked through reset")
	case <-time.After(5 * time.Millisecond):
	}
}
