// kirosync mirrors markdown task checklists into GitHub issues.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirosync/kirosync/internal/config"
	"github.com/kirosync/kirosync/internal/debug"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"

	configPath  string
	verboseFlag bool
	quietFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "kirosync",
	Short: "kirosync - one-way sync from markdown task lists to GitHub issues",
	Long: `kirosync scans spec directories for markdown checkbox tasks and mirrors
them into GitHub issues: new tasks become issues, edited tasks update
their issue, and removed tasks close it. The markdown files are the
source of truth; issues are never read back into the files.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("kirosync version %s\n", Version)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug.SetVerbose(verboseFlag)
		debug.SetQuiet(quietFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")
	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

// loadConfig reads the config file and exits with a clear message when it
// cannot be loaded. Commands that talk to GitHub also call requireValid.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func requireValid(cfg *config.Config) {
	issues := cfg.Validate()
	if len(issues) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr, "Configuration is not usable:")
	for _, issue := range issues {
		fmt.Fprintf(os.Stderr, "  • %s\n", issue)
	}
	fmt.Fprintf(os.Stderr, "\nEdit %s or set the environment variables, then retry.\n", configPath)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
