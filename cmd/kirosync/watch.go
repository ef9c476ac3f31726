package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirosync/kirosync/internal/debug"
	"github.com/kirosync/kirosync/internal/engine"
	"github.com/kirosync/kirosync/internal/lockfile"
	"github.com/kirosync/kirosync/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch spec directories and sync on every change",
	Long: `Run an initial sync, then watch the spec directories and re-sync
whenever a markdown file changes. Rapid edit bursts are debounced into a
single run. Stop with Ctrl-C.

Examples:
  kirosync watch
  kirosync watch --verbose`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		requireValid(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		lock, err := lockfile.Acquire(lockPath(cfg))
		if err != nil {
			if errors.Is(err, lockfile.ErrLocked) {
				fmt.Fprintf(os.Stderr, "Error: another kirosync run is in progress (lock: %s)\n", lockPath(cfg))
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			os.Exit(1)
		}
		defer func() { _ = lock.Release() }()

		eng, err := buildEngine(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		runOnce := func() {
			res, err := eng.SyncAllTasks(ctx)
			if err != nil {
				if errors.Is(err, engine.ErrRunInProgress) {
					debug.Logf("change event during a run, skipped\n")
					return
				}
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return
			}
			printResult(res)
		}

		runOnce()

		w, err := watcher.New(cfg.SpecDirs, cfg.Debounce, runOnce)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := w.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		eng.StartWatcher()

		debug.PrintNormal("Watching %v (debounce %s). Ctrl-C to stop.\n", cfg.SpecDirs, cfg.Debounce)
		<-ctx.Done()

		eng.StopWatcher()
		w.Stop()
		debug.PrintNormal("Stopped.\n")
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
