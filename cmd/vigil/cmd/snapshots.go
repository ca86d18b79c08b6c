package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/vigil/internal/logging"
	"github.com/hugo-lorenzo-mato/vigil/internal/snapshot"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Inspect stored diagnostic snapshots",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots, newest first",
	RunE:  runSnapshotsList,
}

var snapshotsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the most recent snapshot as JSON",
	RunE:  runSnapshotsShow,
}

var snapshotsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored snapshots",
	RunE:  runSnapshotsClear,
}

var snapshotsJSON bool

func init() {
	rootCmd.AddCommand(snapshotsCmd)
	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsShowCmd)
	snapshotsCmd.AddCommand(snapshotsClearCmd)

	snapshotsListCmd.Flags().BoolVar(&snapshotsJSON, "json", false, "print full records as JSON")
}

func openSnapshotStore() (*snapshot.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return snapshot.NewStore(cfg.Snapshots.Dir, logging.NewNop().Logger,
		snapshot.WithMaxRecords(cfg.Snapshots.MaxRecords))
}

func runSnapshotsList(cmd *cobra.Command, _ []string) error {
	store, err := openSnapshotStore()
	if err != nil {
		return err
	}
	snaps, err := store.LoadAll()
	if err != nil {
		return err
	}
	if snapshotsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snaps)
	}
	if len(snaps) == 0 {
		cmd.Println("No snapshots stored.")
		return nil
	}
	for _, s := range snaps {
		cmd.Printf("%s  %-12s  %-8s  %s\n",
			s.Timestamp.Format("2006-01-02 15:04:05"), s.Level, s.ID[:min(8, len(s.ID))], s.Reason)
	}
	return nil
}

func runSnapshotsShow(_ *cobra.Command, _ []string) error {
	store, err := openSnapshotStore()
	if err != nil {
		return err
	}
	snap, err := store.LoadLatest()
	if err != nil {
		if errors.Is(err, snapshot.ErrNoSnapshots) {
			return fmt.Errorf("no snapshots stored")
		}
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func runSnapshotsClear(cmd *cobra.Command, _ []string) error {
	store, err := openSnapshotStore()
	if err != nil {
		return err
	}
	count, err := store.Count()
	if err != nil {
		return err
	}
	if err := store.ClearAll(); err != nil {
		return err
	}
	cmd.Printf("Removed %d snapshot(s).\n", count)
	return nil
}
