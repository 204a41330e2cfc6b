package errcode

import (
	"errors"
	"testing"
)

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]Code{
		"ok":          OK,
		"error":       Error,
		"invalid_arg": InvalidArg,
		"timeout":     Timeout,
		"full":        Full,
		"empty":       Empty,
		"unsupported": Unsupported,
	}
	for want, c := range cases {
		if c.Error() != want {
			t.Fatalf("code %q mismatch: got %q", want, c.Error())
		}
	}
}

func TestOf(t *testing.T) {
	if Of(nil) != OK {
		t.Fatal("nil should map to OK")
	}
	if Of(Timeout) != Timeout {
		t.Fatal("bare code should map to itself")
	}
	if Of(&E{C: InvalidArg, Op: "sem_take"}) != InvalidArg {
		t.Fatal("wrapped code lost")
	}
	if Of(errors.New("boom")) != Error {
		t.Fatal("foreign error should map to Error")
	}
}

func TestStatusFoldsEngineCodes(t *testing.T) {
	cases := []struct {
		in   error
		want Code
	}{
		{nil, OK},
		{Full, Timeout},
		{Empty, Timeout},
		{Unsupported, Error},
		{InvalidArg, InvalidArg},
		{&E{C: Empty, Op: "dequeue"}, Timeout},
		{errors.New("native"), Error},
	}
	for _, tc := range cases {
		if got := Status(tc.in); got != tc.want {
			t.Fatalf("Status(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormaliseKeepsCause(t *testing.T) {
	cause := &E{C: Full, Op: "enqueue"}
	err := Normalise("queue_send", cause)
	if Of(err) != Timeout {
		t.Fatalf("got %q want timeout", Of(err))
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}
	if Normalise("x", Timeout) != Timeout {
		t.Fatal("taxonomy codes should pass through untouched")
	}
	if Normalise("x", nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestEErrorText(t *testing.T) {
	e := &E{C: Error, Op: "thread_create", Msg: "spawn failed"}
	if e.Error() != "thread_create: error: spawn failed" {
		t.Fatalf("unexpected text %q", e.Error())
	}
}
