package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jalonhq/jalon/internal/config"
	"github.com/jalonhq/jalon/internal/snapshot"
	"github.com/jalonhq/jalon/internal/store"
)

// snapshotCmd takes one database snapshot and exits, uploading it when
// storage is configured.
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Take a database snapshot and exit",
	RunE:  runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(newLogHandler(os.Stderr, cfg.Log.Level, cfg.Log.Format)))

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	path, err := db.Snapshot(cmd.Context(), cfg.Snapshot.Dir)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	uploader, err := snapshot.NewUploader(cfg.Snapshot.Storage)
	if err != nil {
		return err
	}
	if err := uploader.Upload(cmd.Context(), path); err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	fmt.Fprintln(os.Stdout, path)
	return nil
}
