package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentra-io/sentra/internal/config"
	"github.com/sentra-io/sentra/internal/snapshot"
)

var (
	snapshotListLimit int
	snapshotKeep      int
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect and prune persisted state snapshots",
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "snapshot.list")
		defer span.End()

		store, err := openSnapshotStore()
		if err != nil {
			return err
		}
		defer store.Close()

		infos, err := store.List(ctx, snapshotListLimit)
		if err != nil {
			return fmt.Errorf("listing snapshots: %w", err)
		}
		if len(infos) == 0 {
			fmt.Println("No snapshots.")
			return nil
		}
		for _, info := range infos {
			sealed := "plain"
			if info.Sealed {
				sealed = "sealed"
			}
			fmt.Printf("%s  %s  %s  %d bytes\n",
				info.ID, info.CreatedAt.Format("2006-01-02 15:04:05"), sealed, info.Bytes)
		}
		return nil
	},
}

var snapshotPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "snapshot.prune")
		defer span.End()

		store, err := openSnapshotStore()
		if err != nil {
			return err
		}
		defer store.Close()

		pruned, err := store.Prune(ctx, snapshotKeep)
		if err != nil {
			return fmt.Errorf("pruning snapshots: %w", err)
		}
		fmt.Printf("Pruned %d snapshot(s), kept the newest %d.\n", pruned, snapshotKeep)
		return nil
	},
}

func openSnapshotStore() (*snapshot.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	store, err := snapshot.NewStore(cfg.SnapshotDBPath(), cfg.SnapshotKey)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store: %w", err)
	}
	return store, nil
}

func init() {
	snapshotListCmd.Flags().IntVar(&snapshotListLimit, "limit", 20, "maximum snapshots to list (0 for all)")
	snapshotPruneCmd.Flags().IntVar(&snapshotKeep, "keep", config.DefaultSnapshotKeep, "snapshots to keep")
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotPruneCmd)
	rootCmd.AddCommand(snapshotCmd)
}
