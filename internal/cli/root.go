package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dna-labs/dna/internal/branding"
	"github.com/dna-labs/dna/internal/config"
	"github.com/dna-labs/dna/internal/telemetry"
	"github.com/dna-labs/dna/internal/ui"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var (
	logLevel    string
	logFormat   string
	metricsFile string
)

// Set up by the root command's PersistentPreRunE.
var (
	settings config.Settings
	logger   = zerolog.Nop()
	metrics  = telemetry.NewMetrics()
)

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` generates projects from composable templates and modules.

Every generation runs as a transaction: a failure in a critical stage rolls the
output directory back to its previous state.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json (default from config)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
}

func setup(cmd *cobra.Command, args []string) error {
	if err := config.Load(); err != nil {
		return err
	}
	s, err := config.Current()
	if err != nil {
		return err
	}
	settings = s

	logCfg := telemetry.LoggingConfig{
		Level:  settings.Log.Level,
		Format: settings.Log.Format,
	}
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	if logFormat != "" {
		logCfg.Format = logFormat
	}
	logger = telemetry.NewLoggerTo(cmd.ErrOrStderr(), logCfg)
	return nil
}

// ExitError carries a process exit status out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Execute runs the root command with build info injected via ldflags and
// returns the process exit status.
func Execute(version, commit, date string) int {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	writeMetrics()
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintln(os.Stderr, ui.ErrorStyle.Render("Error:"), err)
	return 1
}

func writeMetrics() {
	if metricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(metricsFile); err != nil {
		logger.Warn().Err(err).Str("path", metricsFile).Msg("writing metrics failed")
	}
}
