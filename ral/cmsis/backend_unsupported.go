//go:build !((linux || darwin) && (amd64 || arm64))

package cmsis

import (
	"obc-hal-go/errcode"
	"obc-hal-go/ral"
)

// Open always fails: the kernel library cannot be loaded on this platform.
func Open(Config) (ral.Backend, error) {
	return nil, &errcode.E{C: errcode.Error, Op: "cmsis_open", Err: ErrUnsupported}
}

func Load(string, ...string) error { return ErrUnsupported }

func IsLoaded() bool { return false }

func LoadError() error { return ErrUnsupported }

func Status() string { return "not loaded: " + ErrUnsupported.Error() }
