package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/wodrt/internal/script"
)

// CLI error codes. Script load and validation errors keep their own codes.
const (
	ErrCodeGeneric = script.ErrCodeGeneric
	ErrCodeCompile = "E_COMPILE"
	ErrCodeTest    = "E_TEST_FAILED"
	ErrCodeReplay  = "E_REPLAY"
)

// ScriptError is a validation error tagged with the script it belongs to.
type ScriptError struct {
	Script string `json:"script"`
	script.ValidationError
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool          `json:"valid"`
	Scripts int           `json:"scripts"`
	Errors  []ScriptError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <script-or-dir>",
		Short: "Validate scripts without compiling blocks",
		Long: `Validate workout scripts: decoding, statement tree consistency and
fragment payloads. A directory is loaded as a CUE package plus any YAML
scripts beside it, and every problem in every script is reported.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	info, err := os.Stat(path)
	if err != nil {
		msg := fmt.Sprintf("script path not found: %s", path)
		_ = formatter.Error(script.ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	var docs []*script.Document
	var result ValidationResult
	if info.IsDir() {
		loaded, loadErrs := script.LoadDir(path, script.LoadModeCollectAll)
		if loaded == nil {
			return outputLoadError(formatter, loadErrs[0])
		}
		formatter.Verbosef("Found %d script file(s) in %s", loaded.FileCount, path)
		docs = loaded.Documents
		for _, err := range loadErrs {
			result.Errors = append(result.Errors, ScriptError{Script: path, ValidationError: loadValidationError(err)})
		}
	} else {
		doc, err := script.LoadFile(path)
		if err != nil {
			return outputLoadError(formatter, err)
		}
		docs = []*script.Document{doc}
	}

	for _, doc := range docs {
		formatter.Verbosef("Validating script: %s", doc.Name)
		for _, ve := range doc.Validate() {
			result.Errors = append(result.Errors, ScriptError{Script: doc.Name, ValidationError: ve})
		}
	}
	result.Scripts = len(docs)
	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %d script(s) valid\n", result.Scripts)
	return nil
}

// loadValidationError converts a load error into the validation error shape.
func loadValidationError(err error) script.ValidationError {
	ve := script.ValidationError{Field: "load", Code: ErrCodeGeneric, Message: err.Error()}
	var le *script.LoadError
	if errors.As(err, &le) {
		ve.Code = le.Code
		ve.Message = le.Message
		if le.Pos.IsValid() {
			ve.Line = le.Pos.Line()
		}
	}
	return ve
}

// scriptErrorCode picks the code reported for a loadScript error.
func scriptErrorCode(err error) string {
	var le *script.LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	var invalid *script.InvalidScriptError
	if errors.As(err, &invalid) && len(invalid.Errors) > 0 {
		return invalid.Errors[0].Code
	}
	return ErrCodeGeneric
}

// outputLoadError reports a script that could not be loaded at all.
func outputLoadError(formatter *OutputFormatter, err error) error {
	ve := loadValidationError(err)
	_ = formatter.Error(ve.Code, ve.Message, nil)
	return WrapExitError(ExitCommandError, "failed to load scripts", err)
}

// outputValidationErrors outputs every validation error found.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.JSON() {
		first := result.Errors[0]
		if err := formatter.Failure(result, first.Code, first.Message); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range result.Errors {
		if e.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s: line %d\n", e.Script, e.Line)
		} else {
			fmt.Fprintf(formatter.Writer, "%s\n", e.Script)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
	}
	return exitErr
}
