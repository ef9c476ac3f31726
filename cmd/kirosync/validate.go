package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirosync/kirosync/internal/engine"
	"github.com/kirosync/kirosync/internal/parser"
)

var validateJSON bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check task files for problems without syncing",
	Long: `Parse every task file and report problems: duplicate task ids,
empty titles, and malformed checkbox syntax. Nothing is sent to GitHub.

Exits non-zero when problems are found.

Examples:
  kirosync validate
  kirosync validate --json`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		files, err := engine.DiscoverTaskFiles(cfg.SpecDirs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var (
			problems  []string
			taskCount int
		)
		for _, file := range files {
			content, err := os.ReadFile(file) // #nosec G304 - discovered under configured dirs
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", file, err))
				continue
			}
			problems = append(problems, parser.Validate(string(content), file)...)
			taskCount += len(parser.Parse(string(content), file))
		}

		if validateJSON {
			out := map[string]interface{}{
				"valid":    len(problems) == 0,
				"files":    len(files),
				"tasks":    taskCount,
				"problems": problems,
			}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(data))
		} else if len(problems) == 0 {
			fmt.Printf("✓ %d tasks across %d files, no problems found\n", taskCount, len(files))
		} else {
			fmt.Println("Validation found problems:")
			for _, p := range problems {
				fmt.Printf("  • %s\n", p)
			}
		}

		if len(problems) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(validateCmd)
}
