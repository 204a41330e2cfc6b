package errcode

// Code is a stable status identifier returned by every RAL operation.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// RAL status taxonomy. Every backend collapses its native codes into these.
const (
	OK         Code = "ok"
	Error      Code = "error"
	InvalidArg Code = "invalid_arg"
	Timeout    Code = "timeout"
)

// Engine-level codes. They never cross the RAL boundary as-is; Status folds
// them into the taxonomy above.
const (
	Full        Code = "full"
	Empty       Code = "empty"
	Unsupported Code = "unsupported"
)

// E wraps a code with the failing operation and an optional cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// Status collapses err into one of OK, Error, InvalidArg or Timeout.
func Status(err error) Code {
	switch c := Of(err); c {
	case OK, Error, InvalidArg, Timeout:
		return c
	case Full, Empty:
		return Timeout
	default:
		return Error
	}
}

// Normalise rewrites err so that Of(err) == Status(err), keeping the
// original error reachable through Unwrap. A nil err stays nil.
func Normalise(op string, err error) error {
	if err == nil {
		return nil
	}
	c := Of(err)
	s := Status(err)
	if c == s {
		return err
	}
	return &E{C: s, Op: op, Msg: string(c), Err: err}
}
