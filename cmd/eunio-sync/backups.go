package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sestako/eunio-app-sub009/backup"
)

var (
	backupsUserID string
	backupsLimit  int
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "Inspect and prune local backup snapshots",
}

var backupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup snapshots, newest first",
	RunE:  runBackupsList,
}

var backupsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete automatic snapshots beyond the retention count",
	RunE:  runBackupsPrune,
}

var backupsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Capture a manual snapshot now",
	RunE:  runBackupsCreate,
}

func init() {
	backupsCmd.PersistentFlags().StringVar(&backupsUserID, "user", "", "user ID (required)")
	_ = backupsCmd.MarkPersistentFlagRequired("user")
	backupsListCmd.Flags().IntVar(&backupsLimit, "limit", 20, "maximum records to show")

	backupsCmd.AddCommand(backupsListCmd)
	backupsCmd.AddCommand(backupsPruneCmd)
	backupsCmd.AddCommand(backupsCreateCmd)
	rootCmd.AddCommand(backupsCmd)
}

func newBackupManager(cmd *cobra.Command) (*backup.Manager, func(), error) {
	p, err := loadProfile()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(p)

	docs, err := openStore(cmd.Context(), p, logger)
	if err != nil {
		return nil, nil, err
	}
	manager := backup.NewManager(docs, nil, p, logger)
	docs.SetSnapshotter(manager)
	cleanup := func() {
		manager.Close()
		docs.Close()
	}
	return manager, cleanup, nil
}

func runBackupsList(cmd *cobra.Command, _ []string) error {
	manager, cleanup, err := newBackupManager(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := manager.ListBackups(cmd.Context(), backupsUserID, backupsLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tCREATED\tSIZE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
			r.ID, r.Kind, time.UnixMilli(r.CreatedTs).Format(time.RFC3339), r.SizeBytes)
	}
	return w.Flush()
}

func runBackupsPrune(cmd *cobra.Command, _ []string) error {
	manager, cleanup, err := newBackupManager(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	deleted, err := manager.Cleanup(cmd.Context(), backupsUserID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pruned %d snapshots\n", deleted)
	return nil
}

func runBackupsCreate(cmd *cobra.Command, _ []string) error {
	manager, cleanup, err := newBackupManager(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	record, err := manager.CreateManual(cmd.Context(), backupsUserID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created snapshot %s (%d bytes)\n", record.ID, record.SizeBytes)
	return nil
}
