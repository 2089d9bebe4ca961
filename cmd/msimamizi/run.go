package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/msimamizi/internal/config"
	goutils "github.com/jkaninda/go-utils"
)

// Exit codes for the run command.
const (
	ExitApproved = 0
	ExitFailure  = 1
	ExitRejected = 2
)

var (
	runObjective string
	runConfig    string
	runTimeout   int
	runVerbose   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single objective to completion",
	Long: `Run one objective through the full supervision loop and print the outcome.
The run is persisted to the configured store like any other run, so it shows
up in the API afterwards.

Examples:
  msimamizi run -o "research and summarize the Q3 incident reports"
  msimamizi run -o "analyze the deployment failure" --verbose

Exit codes:
  0  run approved by the review gate
  1  run could not be started or was interrupted
  2  run rejected by the review gate`,
	RunE: runObjectiveCmd,
}

func init() {
	runCmd.Flags().StringVarP(&runObjective, "objective", "o", "", "objective to supervise (required)")
	runCmd.Flags().StringVar(&runConfig, "config", config.DefaultConfigPath(), "path to config file")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 600, "timeout in seconds")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "print per-task results")

	_ = runCmd.MarkFlagRequired("objective")
}

func runObjectiveCmd(_ *cobra.Command, _ []string) error {
	code, err := superviseObjective()
	if err != nil {
		return err
	}
	if code != ExitApproved {
		os.Exit(code)
	}
	return nil
}

// superviseObjective runs the objective and returns the process exit code.
// It owns every deferred cleanup, so the caller may os.Exit once it returns.
func superviseObjective() (int, error) {
	if runObjective == "" {
		return ExitFailure, fmt.Errorf("objective is required: use -o flag")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	if runVerbose {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	cfg, err := config.Load(goutils.Env("MSIMAMIZI_CONFIG", runConfig))
	if err != nil {
		return ExitFailure, err
	}

	c, err := initComponents(cfg, logger, nil)
	if err != nil {
		return ExitFailure, err
	}
	defer c.Cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(runTimeout)*time.Second)
	defer cancel()

	rec, err := c.Manager.Execute(ctx, runObjective)
	if err != nil {
		return ExitFailure, err
	}

	if runVerbose && rec.State != nil {
		for _, res := range rec.State.Results {
			fmt.Fprintf(os.Stderr, "[%s/%s]\n%s\n\n", res.AgentID, res.TaskID, res.Output)
		}
	}

	fmt.Printf("run %s: %s\n", rec.ID, rec.Status)
	if rec.Feedback != "" {
		fmt.Println(rec.Feedback)
	}
	if rec.State != nil {
		if score, ok := rec.State.Metadata["agreementScore"].(float64); ok {
			fmt.Fprintf(os.Stderr, "[tasks=%d agreement=%.0f%%]\n", len(rec.State.Tasks), score)
		} else {
			fmt.Fprintf(os.Stderr, "[tasks=%d]\n", len(rec.State.Tasks))
		}
	}

	if rec.State != nil && rec.State.Review != nil && rec.State.Review.Approved {
		return ExitApproved, nil
	}
	return ExitRejected, nil
}
