package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirosync/kirosync/internal/engine"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose configuration and GitHub connectivity",
	Long: `Check that the configuration is complete, the spec directories
exist and contain task files, and the token can reach the target
repository's issues API.

Examples:
  kirosync doctor`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		healthy := true
		check := func(ok bool, label string, detail string) {
			mark := "✓"
			if !ok {
				mark = "✗"
				healthy = false
			}
			fmt.Printf("%s %s", mark, label)
			if detail != "" {
				fmt.Printf(": %s", detail)
			}
			fmt.Println()
		}

		issues := cfg.Validate()
		check(len(issues) == 0, "configuration", "")
		for _, issue := range issues {
			fmt.Printf("    • %s\n", issue)
		}

		for _, dir := range cfg.SpecDirs {
			info, err := os.Stat(dir)
			switch {
			case err != nil:
				check(false, "spec dir "+dir, err.Error())
			case !info.IsDir():
				check(false, "spec dir "+dir, "not a directory")
			default:
				files, err := engine.DiscoverTaskFiles([]string{dir})
				if err != nil {
					check(false, "spec dir "+dir, err.Error())
				} else {
					check(true, "spec dir "+dir, fmt.Sprintf("%d markdown files", len(files)))
				}
			}
		}

		if len(issues) == 0 {
			client, err := cfg.NewClient()
			if err != nil {
				check(false, "github client", err.Error())
			} else if err := client.TestConnection(cmd.Context()); err != nil {
				check(false, "github connection", err.Error())
			} else {
				check(true, "github connection", cfg.Repository)
				if snap := client.RateLimitSnapshot(); snap != nil {
					fmt.Printf("    rate limit: %d/%d remaining\n", snap.Remaining, snap.Limit)
				}
			}
		}

		if !healthy {
			os.Exit(1)
		}
		fmt.Println("\nAll checks passed.")
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
