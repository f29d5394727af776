package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Mickaeljc/app-bofip/internal/config"
	"github.com/Mickaeljc/app-bofip/internal/kb"
	"github.com/spf13/cobra"
)

var (
	flagSyncForce      bool
	flagHistoryLimit   int
	flagPruneOlderThan string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the BOFIP records and save the local snapshot",
	Long: `Download every page from the configured endpoint and write the local snapshot.

Without --force an existing snapshot is kept and nothing is fetched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		out := a.pipeline.Prepare(cmd.Context(), flagSyncForce || flagRefresh)
		reportOutcome(out)

		switch {
		case out.FromCache && out.FetchErr != nil:
			fmt.Printf("Refresh failed; kept the existing snapshot of %d records.\n", out.Dataset.Len())
			return fmt.Errorf("sync failed: %w", out.FetchErr)
		case out.FromCache:
			fmt.Printf("Snapshot already present: %d records (use --force to fetch again).\n", out.Dataset.Len())
		case out.Saved:
			fmt.Printf("Fetched %d records, %d knowledge base entries.\n", out.Dataset.Len(), out.KB.Len())
		default:
			fmt.Printf("Fetched %d records; snapshot not written.\n", out.Dataset.Len())
		}
		if out.FetchErr != nil && out.Dataset.Len() == 0 {
			return fmt.Errorf("sync failed: %w", out.FetchErr)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show snapshot and history statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("Snapshot: %s\n", a.store.Path())
		info, err := a.store.Stat()
		switch {
		case errors.Is(err, os.ErrNotExist):
			fmt.Println("  (none, run `bofip sync`)")
		case err != nil:
			return fmt.Errorf("reading snapshot: %w", err)
		default:
			status := a.store.Load()
			ds, ok := status.Dataset()
			if !ok {
				fmt.Printf("  unusable: %s\n", status.Reason)
				break
			}
			base := kb.Build(ds, a.build)
			fmt.Printf("  Records: %d (complete: %t)\n", ds.Len(), ds.Complete)
			fmt.Printf("  Knowledge base entries: %d\n", base.Len())
			if !ds.FetchedAt.IsZero() {
				fmt.Printf("  Fetched: %s\n", ds.FetchedAt.Local().Format(time.DateTime))
			}
			fmt.Printf("  Size: %s\n", formatBytes(info.Size))
		}

		if a.history == nil {
			return nil
		}
		dbPath := config.HistoryPath()
		count, size, err := a.history.Stats(dbPath)
		if err != nil {
			return fmt.Errorf("reading history stats: %w", err)
		}
		fmt.Printf("History: %s\n", dbPath)
		fmt.Printf("  Questions: %d\n", count)
		fmt.Printf("  Size: %s\n", formatBytes(size))
		if last, err := a.history.LastSync(); err == nil {
			state := "complete"
			if !last.Complete {
				state = "partial: " + last.Error
			}
			fmt.Printf("  Last sync: %s, %d records (%s)\n", last.SyncedAt.Local().Format(time.DateTime), last.Records, state)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("reading last sync: %w", err)
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the local snapshot",
	Long:  "Remove the cached BOFIP records. The next run fetches them again.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Remove(); err != nil {
			return fmt.Errorf("removing snapshot: %w", err)
		}
		fmt.Printf("Removed %s.\n", a.store.Path())
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently asked questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if a.history == nil {
			return fmt.Errorf("history is disabled (history.enabled: false)")
		}

		entries, err := a.history.Recent(flagHistoryLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No questions yet.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %s\n", e.AskedAt.Local().Format(time.DateTime), e.Question)
			if e.Sentinel {
				fmt.Println("  " + sentinelStyle.Render(e.Answer))
			} else {
				fmt.Println("  " + e.Answer)
			}
		}
		return nil
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old questions and sync records",
	Long: `Delete history entries older than the retention period and reclaim disk space.

Uses the retention value from config (default: 90d) unless overridden with --older-than.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if a.history == nil {
			return fmt.Errorf("history is disabled (history.enabled: false)")
		}

		retention := a.cfg.RetentionDuration()
		if flagPruneOlderThan != "" {
			d, err := config.ParseDuration(flagPruneOlderThan)
			if err != nil {
				return fmt.Errorf("invalid --older-than value: %w", err)
			}
			retention = d
		}

		deleted, err := a.history.Prune(retention)
		if err != nil {
			return fmt.Errorf("pruning: %w", err)
		}

		if deleted == 0 {
			fmt.Println("Nothing to prune.")
		} else {
			fmt.Printf("Pruned %d question(s) older than %s.\n", deleted, formatDuration(retention))
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&flagSyncForce, "force", false, "fetch even when a snapshot exists")
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "number of questions to show")
	historyPruneCmd.Flags().StringVar(&flagPruneOlderThan, "older-than", "", "override retention period (e.g., 30d, 720h)")
	historyCmd.AddCommand(historyPruneCmd)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days > 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dh", int(d.Hours()))
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
