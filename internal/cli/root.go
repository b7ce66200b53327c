// Package cli provides the command-line interface for the forge agent.
package cli

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mrz1836/forge/internal/masker"
)

// BuildInfo contains version information set at build time via ldflags.
type BuildInfo struct {
	// Version is the semantic version (e.g., "1.0.0").
	Version string
	// Commit is the git commit hash.
	Commit string
	// Date is the build date.
	Date string
}

// globalLogger stores the initialized logger for use by subcommands.
// This is set during PersistentPreRunE and should be accessed via GetLogger.
var (
	globalLogger   zerolog.Logger //nolint:gochecknoglobals // CLI logger requires global access
	globalLoggerMu sync.RWMutex   //nolint:gochecknoglobals // Protects globalLogger
)

// sharedMasker is the process-wide secret masker. The diagnostic logger
// and every job share it, so a secret registered by a running job is
// redacted from agent diagnostics too.
var sharedMasker = masker.New() //nolint:gochecknoglobals // process-wide redaction boundary

// GetLogger returns the initialized logger for use by subcommands.
//
// IMPORTANT: This function MUST only be called after the root command's
// PersistentPreRunE has executed. Calling it before initialization will
// return a zero-value logger that discards all log output.
func GetLogger() zerolog.Logger {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

// GlobalFlags holds root-level flag values shared by all subcommands.
type GlobalFlags struct {
	// Verbose enables debug-level diagnostics and debug-tagged job lines.
	Verbose bool

	// Quiet raises the diagnostic log level to warnings and errors only.
	Quiet bool

	// ConfigPath points at an explicit agent config file.
	ConfigPath string
}

// newRootCmd creates and returns the root command for the forge CLI.
func newRootCmd(flags *GlobalFlags, info BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forge",
		Short: "FORGE - pipeline job execution agent",
		Long: `FORGE executes orchestrator-dispatched pipeline jobs: it runs each job's
tasks, reports timeline records upstream, redacts secrets from every log
line, and captures a debug timeline when a job fails.`,
		Version: formatVersion(info),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			globalLoggerMu.Lock()
			globalLogger = InitLogger(flags.Verbose, flags.Quiet)
			globalLoggerMu.Unlock()
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "only log warnings and errors")
	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to agent config file")

	AddRunCommand(cmd, flags)

	return cmd
}

// formatVersion renders the version string for --version output.
func formatVersion(info BuildInfo) string {
	if info.Version == "" {
		return "dev"
	}
	v := info.Version
	if info.Commit != "" {
		v += " (" + info.Commit + ")"
	}
	return v
}

// Execute runs the forge CLI with the provided context.
func Execute(ctx context.Context, info BuildInfo) error {
	flags := &GlobalFlags{}
	cmd := newRootCmd(flags, info)
	defer CloseLogFile()
	return cmd.ExecuteContext(ctx)
}
