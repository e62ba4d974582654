package main

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jalonhq/jalon/internal/alerts"
	"github.com/jalonhq/jalon/internal/config"
	"github.com/jalonhq/jalon/internal/email"
	"github.com/jalonhq/jalon/internal/store"
)

var alertsJSONOutput bool

// alertsCmd runs one deadline alert pass without starting the server. Meant
// for OS cron deployments that skip the in-process coordinator.
var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Run one deadline alert pass and exit",
	RunE:  runAlerts,
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsJSONOutput, "json", false,
		"Print the run report as JSON")
	rootCmd.AddCommand(alertsCmd)
}

func runAlerts(cmd *cobra.Command, args []string) error {
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

	runner := alerts.NewRunner(db, email.NewSender(cfg.Email), cfg.Alerts.BatchSize)
	report := runner.Run(cmd.Context())

	if alertsJSONOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return nil
}
