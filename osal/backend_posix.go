//go:build !cmsis

package osal

import (
	"log/slog"
	"time"

	"obc-hal-go/config"
	"obc-hal-go/internal/timermux"
	"obc-hal-go/ral"
	"obc-hal-go/ral/posix"
)

const BackendName = posix.Name

func openBackend(cfg config.Config, log *slog.Logger) (ral.Backend, error) {
	b, err := posix.New(posix.Config{
		TimerEngine:  timermux.Engine(cfg.POSIX.TimerEngine),
		PollInterval: time.Duration(cfg.POSIX.PollIntervalMs) * time.Millisecond,
		MaxTimers:    cfg.POSIX.MaxTimers,
		PriorityMin:  cfg.POSIX.PriorityMin,
		PriorityMax:  cfg.POSIX.PriorityMax,
		LockGraph:    cfg.POSIX.LockGraph,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}
