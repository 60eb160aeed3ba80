package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/wodrt/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	MaxSteps int
}

// TestResult holds the overall test result.
type TestResult struct {
	Passed   int                       `json:"passed"`
	Failed   int                       `json:"failed"`
	Total    int                       `json:"total"`
	Failures []harness.ScenarioFailure `json:"failures,omitempty"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios>...",
		Short: "Run scenario files",
		Long: `Run workout scenarios through the harness.

Each argument is a *.scenario.yaml file or a directory searched for them.
A scenario starts its script on a manual clock, delivers its steps and
checks its assertions against the engine and the session archive.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  wodrt test ./scenarios
  wodrt test fran.scenario.yaml amrap.scenario.yaml
  wodrt test ./scenarios --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "per-event action quota (default $WODRT_MAX_STEPS)")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	var runOpts []harness.Option
	if opts.Verbose {
		runOpts = append(runOpts, harness.WithLogger(opts.Logger(formatter.Diagnostics())))
	}
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = opts.Config.MaxSteps
	}
	if maxSteps > 0 {
		runOpts = append(runOpts, harness.WithMaxSteps(maxSteps))
	}

	var result TestResult
	for _, path := range paths {
		formatter.Verbosef("Running scenarios in %s", path)
		suite, err := harness.RunSuite(ctx, path, runOpts...)
		if err != nil {
			var notFound *harness.ScenarioNotFoundError
			if errors.As(err, &notFound) {
				return NewExitError(ExitCommandError, fmt.Sprintf("scenarios not found: %s", path))
			}
			return WrapExitError(ExitCommandError, "failed to run scenarios", err)
		}
		result.Total += suite.TotalScenarios
		result.Passed += suite.Passed
		result.Failed += suite.Failed
		result.Failures = append(result.Failures, suite.Failures...)
	}

	if formatter.JSON() {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter.Writer, result)
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	if result.Failed == 0 {
		return formatter.Success(result)
	}
	msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	if err := formatter.Failure(result, ErrCodeTest, msg); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

// outputTestText outputs the test result as text.
func outputTestText(w io.Writer, result TestResult) error {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	for _, f := range result.Failures {
		name := f.Scenario
		if name == "" {
			name = f.ScenarioPath
		}
		fmt.Fprintf(w, "✗ %s\n", name)
		for _, e := range f.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
