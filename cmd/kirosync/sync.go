package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirosync/kirosync/internal/config"
	"github.com/kirosync/kirosync/internal/engine"
	"github.com/kirosync/kirosync/internal/lockfile"
	"github.com/kirosync/kirosync/internal/state"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass over all task files",
	Long: `Parse every task file under the configured spec directories and
reconcile against GitHub: create issues for new tasks, update issues for
changed tasks, close issues for removed tasks.

Exits non-zero if any task failed to sync; the remaining tasks are still
processed.

Examples:
  kirosync sync
  kirosync sync --config ci/kirosync.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		requireValid(cfg)

		res, err := runSync(cmd.Context(), cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		printResult(res)
		if len(res.Errors) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

// runSync holds the process lock for the duration of one engine run. The
// lock keeps concurrent invocations (CI job plus a local watch session)
// from interleaving writes to the state file.
func runSync(ctx context.Context, cfg *config.Config) (*engine.Result, error) {
	lock, err := lockfile.Acquire(lockPath(cfg))
	if err != nil {
		if errors.Is(err, lockfile.ErrLocked) {
			return nil, fmt.Errorf("another kirosync run is in progress (lock: %s)", lockPath(cfg))
		}
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	eng, err := buildEngine(cfg)
	if err != nil {
		return nil, err
	}
	return eng.SyncAllTasks(ctx)
}

func buildEngine(cfg *config.Config) (*engine.Engine, error) {
	store := state.NewStore(cfg.StatePath)
	if err := store.Load(); err != nil {
		return nil, err
	}

	client, err := cfg.NewClient()
	if err != nil {
		return nil, err
	}

	return engine.New(store, client, cfg.SpecDirs), nil
}

func lockPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.StatePath), "kirosync.lock")
}

func printResult(res *engine.Result) {
	for _, taskErr := range res.Errors {
		fmt.Fprintf(os.Stderr, "  ✗ %v\n", taskErr)
	}
	if !quietFlag {
		fmt.Printf("Synced in %s: %d created, %d updated, %d closed, %d unchanged",
			res.Duration.Round(time.Millisecond), res.Created, res.Updated, res.Closed, res.Unchanged)
		if len(res.Errors) > 0 {
			fmt.Printf(", %d failed", len(res.Errors))
		}
		fmt.Println()
	}
}
