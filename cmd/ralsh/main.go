package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"obc-hal-go/config"
	"obc-hal-go/internal/shell"
	"obc-hal-go/osal"
)

var (
	configPath string
	strict     bool

	rootCmd = &cobra.Command{
		Use:   "ralsh",
		Short: "Drive the RTOS abstraction layer from scripts",
		Long: "ralsh runs line-oriented scripts against the RAL primitives (queues, semaphores,\n" +
			"mutexes, timers and threads) on the backend compiled into the binary.",
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file, or @profile for a built-in one")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "stop at the first failing line and exit non-zero")
	rootCmd.AddCommand(runCmd, replCmd, demoCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// session brings the OSAL up, runs fn with a fresh shell and tears
// everything down again.
func session(ctx context.Context, out io.Writer, fn func(*shell.Shell) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lvl, _ := cfg.Level()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	if err := osal.Init(cfg, osal.WithLogger(log)); err != nil {
		return fmt.Errorf("init %s backend: %w", osal.BackendName, err)
	}
	defer osal.Shutdown()

	sh := shell.New(out, log)
	defer sh.Close()
	return fn(sh)
}
