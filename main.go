package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"estudent-scraper/config"
	"estudent-scraper/logger"
)

// app carries what every command needs once the config is loaded.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "estudent",
		Short:         "Scrape the eStudent timetable and publish it as calendar events",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(a.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			a.cfg = cfg
			a.logger = logger.New(cfg.LogLevel, cfg.LogPath)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "config.json", "path to the JSON config file")

	root.AddCommand(
		newTimetableCmd(a),
		newSyncCmd(a),
		newICSCmd(a),
		newCalendarCmd(a),
	)
	return root
}
