package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kirosync/kirosync/internal/state"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the recorded sync state",
	Long: `List every task the state file knows about: its issue number, the
last sync time, and the source file. Reads only local state; GitHub is
not contacted.

Examples:
  kirosync status
  kirosync status --format json
  kirosync status --format yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		store := state.NewStore(cfg.StatePath)
		if err := store.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		records, err := store.All()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		switch statusFormat {
		case "json":
			data, _ := json.MarshalIndent(records, "", "  ")
			fmt.Println(string(data))
		case "yaml":
			data, err := yaml.Marshal(records)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Print(string(data))
		case "table":
			printStatusTable(records, store.Path())
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown format %q (valid: table, json, yaml)\n", statusFormat)
			os.Exit(1)
		}
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "table", "Output format: table, json, yaml")
	rootCmd.AddCommand(statusCmd)
}

func printStatusTable(records []state.SyncState, statePath string) {
	if len(records) == 0 {
		fmt.Println("No synced tasks. Run 'kirosync sync' first.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tISSUE\tLAST SYNCED\tFILE")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t#%d\t%s\t%s\n",
			rec.TaskID, rec.IssueNumber, rec.LastSynced.Local().Format(time.RFC3339), rec.FilePath)
	}
	_ = w.Flush()
	fmt.Printf("\n%d tasks tracked in %s\n", len(records), statePath)
}
