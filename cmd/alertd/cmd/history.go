package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	sqlitestore "candle-alerts/internal/store/sqlite"
)

var (
	historyDBPath  string
	historyLimit   int
	historyOutcome string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List journaled alerts",
	Long: `Show recent dispatch records from the SQLite alert journal, newest first.

Examples:
  alertd history
  alertd history --outcome failed --limit 20
  alertd history --db data/alerts.db`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVarP(&historyDBPath, "db", "d", "", "path to SQLite alert journal (default: sqlite_path from config)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "maximum records to show")
	historyCmd.Flags().StringVar(&historyOutcome, "outcome", "", "filter by outcome: sent, suppressed, failed, dry_run")
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := historyDBPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.SQLitePath
	}
	if path == "" {
		return fmt.Errorf("no journal configured: pass --db or set SQLITE_PATH")
	}

	j, err := sqlitestore.Open(sqlitestore.Config{DBPath: path})
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	entries, err := j.Recent(cmd.Context(), historyLimit, historyOutcome)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOUTCOME\tKEY\tBODY")
	for _, e := range entries {
		body := e.Body
		if e.Error != "" {
			body += " (" + e.Error + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.At.Format(time.RFC3339), e.Outcome, e.Key, body)
	}
	return w.Flush()
}
