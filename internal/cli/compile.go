package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/wodrt/internal/compiler"
	"github.com/roach88/wodrt/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult is the static plan of a script.
type CompilationResult struct {
	Script     string              `json:"script"`
	Statements int                 `json:"statements"`
	Plan       []compiler.PlanNode `json:"plan"`
	Failed     int                 `json:"failed"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <script>",
		Short: "Validate a script and print its compiled plan",
		Long: `Validate a workout script and print the block each statement group
compiles to, without running it.

Groups no strategy can compile are reported; at run time they become
error blocks. With --output the plan is written as canonical JSON.

Examples:
  wodrt compile fran.yaml
  wodrt compile cindy.cue -o cindy.plan.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, err := loadScript(path)
	if err != nil {
		_ = formatter.Error(scriptErrorCode(err), err.Error(), nil)
		return err
	}
	formatter.Verbosef("Loaded %s: %d statement(s)", s.Name, len(s.Statements))

	logger := opts.Logger(formatter.Diagnostics())
	plan, err := newCompiler(logger).Plan(s)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "compile failed", err)
	}

	result := CompilationResult{
		Script:     s.Name,
		Statements: len(s.Statements),
		Plan:       plan,
		Failed:     countFailed(plan),
	}

	if opts.Output != "" {
		data, err := ir.MarshalCanonical(planToCanonical(plan))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode plan", err)
		}
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		formatter.Verbosef("Wrote plan to %s", opts.Output)
	}

	if result.Failed > 0 {
		msg := fmt.Sprintf("%d group(s) do not compile", result.Failed)
		if formatter.JSON() {
			_ = formatter.Failure(result, ErrCodeCompile, msg)
		} else {
			printPlan(formatter.Writer, result)
		}
		return NewExitError(ExitFailure, msg)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	printPlan(formatter.Writer, result)
	return nil
}

func countFailed(nodes []compiler.PlanNode) int {
	n := 0
	for _, node := range nodes {
		if node.Error != "" {
			n++
		}
		n += countFailed(node.Children)
	}
	return n
}

// planToCanonical converts plan nodes to plain values for ir.MarshalCanonical.
func planToCanonical(nodes []compiler.PlanNode) []any {
	out := make([]any, len(nodes))
	for i, node := range nodes {
		group := make([]any, len(node.Group))
		for j, id := range node.Group {
			group[j] = id
		}
		m := map[string]any{
			"group": group,
			"label": node.Label,
		}
		if node.Strategy != "" {
			m["strategy"] = node.Strategy
		}
		if node.Error != "" {
			m["error"] = node.Error
		}
		if len(node.Children) > 0 {
			m["children"] = planToCanonical(node.Children)
		}
		out[i] = m
	}
	return out
}

func printPlan(w io.Writer, result CompilationResult) {
	mark := "✓"
	if result.Failed > 0 {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s (%d statements)\n", mark, result.Script, result.Statements)

	var walk func(nodes []compiler.PlanNode, depth int)
	walk = func(nodes []compiler.PlanNode, depth int) {
		indent := strings.Repeat("  ", depth+1)
		for _, node := range nodes {
			if node.Error != "" {
				fmt.Fprintf(w, "%s%v error: %s\n", indent, node.Group, node.Error)
				continue
			}
			fmt.Fprintf(w, "%s%v %s: %s\n", indent, node.Group, node.Strategy, node.Label)
			walk(node.Children, depth+1)
		}
	}
	walk(result.Plan, 0)
}
