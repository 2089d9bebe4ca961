// Msimamizi — supervisor orchestration engine for multi-agent runs.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"

	"github.com/jkaninda/msimamizi/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "msimamizi",
	Short: "Msimamizi — supervisor orchestration engine for multi-agent workloads.",
	Long: `Msimamizi supervises a roster of specialized agents through a phase state
machine: it decomposes an objective into tasks, routes them by role and
keyword, executes batches in parallel, reconciles conflicting results, builds
consensus, and reviews the outcome before approving it.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, runCmd, schedulesCmd, versionCmd)
	observability.ServiceVersion = version
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
