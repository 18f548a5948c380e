// Package cmd provides the CLI commands for tsgraphmcp.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/couzic/ts-graph-mcp/internal/logging"
	"github.com/couzic/ts-graph-mcp/internal/profiling"
	"github.com/couzic/ts-graph-mcp/pkg/version"
)

var (
	projectRoot    string
	debugMode      bool
	cpuProfile     string
	loggingCleanup func()
	profiler       = profiling.NewProfiler()
	stopCPUProfile func()
)

// NewRootCmd creates the root command for the tsgraphmcp CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tsgraphmcp",
		Short:   "Typed symbol/edge graph service for TypeScript projects",
		Version: version.Version,
	}
	cmd.SetVersionTemplate("tsgraphmcp version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&projectRoot, "project", ".", "Project root directory")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.ts-graph-mcp/logs/")
	cmd.PersistentFlags().StringVar(&cpuProfile, "cpuprofile", "", "Write a CPU profile to this path before exiting")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStopCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func startLogging(cmd *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	loggingCleanup = cleanup

	if cpuProfile != "" {
		stop, err := profiler.StartCPU(cpuProfile)
		if err != nil {
			return err
		}
		stopCPUProfile = stop
	}
	return nil
}

func stopLogging(cmd *cobra.Command, _ []string) error {
	if stopCPUProfile != nil {
		stopCPUProfile()
	}
	if loggingCleanup != nil {
		loggingCleanup()
	}
	return nil
}
