package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/script"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Events []string // name@offset
	Every  string   // tick period between events
	Start  string   // RFC 3339 session start
}

// SimulationResult is the state after the last simulated event.
type SimulationResult struct {
	Script  string                                  `json:"script"`
	Events  int                                     `json:"events"`
	Done    bool                                    `json:"done"`
	Stack   []engine.BlockInfo                      `json:"stack"`
	History []ir.ExecutionRecord                    `json:"history"`
	Totals  map[string]map[ir.MetricValueType]int64 `json:"totals"`
	Errors  []string                                `json:"errors,omitempty"`
}

type simEvent struct {
	name   string
	offset time.Duration
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <script>",
		Short: "Run a script against a fixed event sequence",
		Long: `Run a script offline against events given on the command line, then
print the resulting stack and history.

Each --event is name@offset, where offset is from session start ("90s"
or "1:30"). With --every, ticks are delivered at that period between
events. Span ids and block keys are sequential, so output is stable.

Examples:
  wodrt simulate fran.yaml -e next@1:00 -e next@2:10 -e next@3:00
  wodrt simulate cindy.cue --every 1s -e next@0:45 -e tick@20:00`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Events, "event", "e", nil, "event as name@offset (repeatable)")
	cmd.Flags().StringVar(&opts.Every, "every", "", "tick period between events")
	cmd.Flags().StringVar(&opts.Start, "start", "", "session start time, RFC 3339 (default now)")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	evs, err := parseSimEvents(opts.Events)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --event", err)
	}
	var period time.Duration
	if opts.Every != "" {
		ms, err := script.ParseDuration(opts.Every)
		if err != nil || ms == 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid --every %q", opts.Every))
		}
		period = time.Duration(ms) * time.Millisecond
	}
	start := time.Now().UTC().Truncate(time.Second)
	if opts.Start != "" {
		start, err = time.Parse(time.RFC3339, opts.Start)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --start", err)
		}
	}

	s, err := loadScript(path)
	if err != nil {
		_ = formatter.Error(scriptErrorCode(err), err.Error(), nil)
		return err
	}

	logger := opts.Logger(formatter.Diagnostics())
	engineOpts := append(opts.engineOptions(logger),
		engine.WithTimeSource(engine.FixedTime{T: start}),
		engine.WithSpanIDs(engine.NewSequenceGenerator("span")),
		engine.WithBlockKeys(engine.NewSequenceGenerator("blk")),
	)
	eng := engine.New(newCompiler(logger), engineOpts...)

	result := SimulationResult{Script: s.Name}
	if err := eng.Start(s); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	deliver := func(name string, at time.Duration) {
		result.Events++
		formatter.Verbosef("%s %s", formatElapsed(at), name)
		if err := eng.Handle(events.New(name, start.Add(at))); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s at %s: %v", name, at, err))
		}
	}
	var prev time.Duration
	for _, ev := range evs {
		if eng.Done() {
			break
		}
		if period > 0 {
			for t := prev + period; t < ev.offset && !eng.Done(); t += period {
				deliver(events.Tick, t)
			}
		}
		deliver(ev.name, ev.offset)
		prev = ev.offset
	}

	snap := eng.Snapshot()
	result.Done = snap.Done
	result.Stack = snap.Stack
	result.History = eng.Log().History()
	result.Totals = eng.Metrics().Totals()

	if formatter.JSON() {
		return formatter.Success(result)
	}
	printSimulation(formatter.Writer, result, start)
	return nil
}

// parseSimEvents parses name@offset pairs. Offsets must not decrease.
func parseSimEvents(args []string) ([]simEvent, error) {
	out := make([]simEvent, 0, len(args))
	var prev time.Duration
	for _, arg := range args {
		i := strings.LastIndex(arg, "@")
		if i <= 0 || i == len(arg)-1 {
			return nil, fmt.Errorf("%q: want name@offset", arg)
		}
		ms, err := script.ParseDuration(arg[i+1:])
		if err != nil {
			return nil, fmt.Errorf("%q: %w", arg, err)
		}
		ev := simEvent{name: inputEvent(arg[:i]), offset: time.Duration(ms) * time.Millisecond}
		if ev.offset < prev {
			return nil, fmt.Errorf("%q: offset is before the previous event", arg)
		}
		prev = ev.offset
		out = append(out, ev)
	}
	return out, nil
}

func printSimulation(w io.Writer, result SimulationResult, start time.Time) {
	state := "running"
	if result.Done {
		state = "complete"
	}
	fmt.Fprintf(w, "%s: %s after %d event(s)\n", result.Script, state, result.Events)
	fmt.Fprintln(w)

	if len(result.Stack) > 0 {
		fmt.Fprintln(w, "Stack:")
		for i := len(result.Stack) - 1; i >= 0; i-- {
			b := result.Stack[i]
			fmt.Fprintf(w, "  %s %s %q\n", b.Key, b.Type, b.Label)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "History:")
	printRecordTree(w, result.History, start)

	for _, e := range result.Errors {
		fmt.Fprintf(w, "! %s\n", e)
	}
}
