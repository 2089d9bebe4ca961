package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jkaninda/msimamizi/internal/config"
	"github.com/jkaninda/msimamizi/internal/scheduler"
	goutils "github.com/jkaninda/go-utils"
)

var schedulesConfigPath string

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "List configured cron schedules and their next fire times",
	RunE:  runSchedules,
}

func init() {
	schedulesCmd.Flags().StringVar(&schedulesConfigPath, "config", config.DefaultConfigPath(), "path to config file")
}

func runSchedules(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(goutils.Env("MSIMAMIZI_CONFIG", schedulesConfigPath))
	if err != nil {
		return err
	}

	if cfg.Scheduler == nil || len(cfg.Scheduler.Schedules) == 0 {
		fmt.Println("no schedules configured")
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	sched := scheduler.New(nil, nil, logger, cfg.Scheduler)

	for _, s := range cfg.Scheduler.Schedules {
		next, err := sched.NextRun(s.Cron)
		if err != nil {
			fmt.Printf("%-24s %-16s invalid: %v\n", s.Name, s.Cron, err)
			continue
		}
		fmt.Printf("%-24s %-16s next: %s\n", s.Name, s.Cron, next.Format("2006-01-02 15:04 MST"))
	}

	if !cfg.Scheduler.Enabled {
		fmt.Println("\nnote: scheduler is disabled in config")
	}
	return nil
}
