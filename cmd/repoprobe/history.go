package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jkaninda/repoprobe/internal/config"
	"github.com/jkaninda/repoprobe/internal/storage"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent try-run attempts",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum records to show")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	logger := newLogger(false)

	store, err := storage.Open(cfg.HistoryDBPath(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListRecent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No recorded attempts.")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%s  %-16s %-10s %s\n    %s\n",
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.ID.String()[:8],
			r.Strategy,
			r.RepoPath,
			r.Summary,
		)
	}
	return nil
}
