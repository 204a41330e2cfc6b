//go:build cmsis

package osal

import (
	"log/slog"

	"obc-hal-go/config"
	"obc-hal-go/ral"
	"obc-hal-go/ral/cmsis"
)

const BackendName = cmsis.Name

func openBackend(cfg config.Config, log *slog.Logger) (ral.Backend, error) {
	return cmsis.Open(cmsis.Config{
		Library:     cfg.CMSIS.Library,
		SearchDirs:  cfg.CMSIS.SearchDirs,
		StartKernel: cfg.CMSIS.StartKernel,
		TickHz:      cfg.TickHz,
		Logger:      log,
	})
}
