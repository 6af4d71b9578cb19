package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dream-ai/paperqa/internal/db"
	"github.com/dream-ai/paperqa/internal/domain"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent ingestions from the Postgres journal",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of ingestions to show")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.ConnectionString == "" {
		return fmt.Errorf("database.connection_string is not set: %w", domain.ErrConfiguration)
	}

	ctx := cmd.Context()
	journal, err := db.New(ctx, cfg.Database.ConnectionString)
	if err != nil {
		return err
	}
	defer journal.Close()

	rows, err := journal.ListIngestions(ctx, historyLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tDOCUMENT\tPAGES\tCHUNKS\tMODEL\tSTATE\tDURATION")
	for _, r := range rows {
		state := r.State
		if r.ErrorKind != "" {
			state += " (" + r.ErrorKind + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Name, r.Pages, r.Chunks,
			r.EmbeddingModel, state, r.Duration.Round(time.Millisecond))
	}
	return w.Flush()
}
