package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/XiaoConstantine/dspy-go/pkg/logging"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dshills/prgate/internal/config"
	"github.com/dshills/prgate/internal/github"
	"github.com/dshills/prgate/internal/providers"
)

const version = "0.3.0"

// Exit codes.
const (
	ExitSuccess       = 0
	ExitChangesWanted = 1
	ExitUsageError    = 2
	ExitAuthError     = 3
	ExitRuntimeError  = 4
)

var flagLogLevel string

var rootCmd = &cobra.Command{
	Use:   "prgate",
	Short: "Automated pull request review",
	Long: "prgate reviews pull requests with an LLM: it reads the intent of the change, " +
		"classifies its risk, reviews every file and posts one summary comment.",
	SilenceUsage: true,
}

// Run executes the root command and returns an exit code.
func Run() int {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}

	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print prgate version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "prgate version %s\n", version)
	},
}

// setupLogging installs the process logger. Colour is used only when the
// config allows it and stderr is a terminal.
func setupLogging(cfg config.Config) {
	color := cfg.Log.Color && isatty.IsTerminal(os.Stderr.Fd())
	logger := logging.NewLogger(logging.Config{
		Severity: parseSeverity(cfg.Log.Level),
		Outputs:  []logging.Output{logging.NewConsoleOutput(true, logging.WithColor(color))},
	})
	logging.SetLogger(logger)
}

func parseSeverity(level string) logging.Severity {
	switch strings.ToLower(level) {
	case "debug":
		return logging.DEBUG
	case "warn", "warning":
		return logging.WARN
	case "error":
		return logging.ERROR
	default:
		return logging.INFO
	}
}

// fail prints err and records the exit code that matches it.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	exitCode = exitCodeFor(err)
}

func exitCodeFor(err error) int {
	var usage *usageError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &usage):
		return ExitUsageError
	case providers.IsAuthError(err), github.IsAuthError(err):
		return ExitAuthError
	default:
		return ExitRuntimeError
	}
}

// usageError marks a bad argument that Cobra could not catch.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
}
