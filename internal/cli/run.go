package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/wodrt/internal/api"
	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/store"
	"github.com/roach88/wodrt/internal/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	Tick        time.Duration
	MetricsAddr string

	// Now overrides the wall clock (for testing).
	Now func() time.Time
}

// RunSummary is printed when a session ends.
type RunSummary struct {
	SessionID string `json:"session_id,omitempty"`
	Script    string `json:"script"`
	Done      bool   `json:"done"`
	Stopped   bool   `json:"stopped,omitempty"`
	Records   int    `json:"records"`
	Metrics   int    `json:"metrics"`
	Digest    string `json:"digest,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a workout session",
		Long: `Run a workout script as a live session.

Ticks are delivered at --tick. Each input line is an event: an empty line
(or "n") is next, "q" stops the session, anything else is delivered as a
custom event name. The session ends when the script completes, on stop,
or on Ctrl-C.

With --db the session is archived for trace and replay. With
--metrics-addr a status server exposes /healthz, /metrics and
/v1/snapshot while the session runs.

Examples:
  wodrt run fran.yaml
  wodrt run --db ./wodrt.db --tick 250ms cindy.cue
  wodrt run --metrics-addr :9090 fran.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite session archive (default $WODRT_DB_PATH)")
	cmd.Flags().DurationVar(&opts.Tick, "tick", 0, "tick interval (default $WODRT_TICK_INTERVAL or 100ms)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "status server listen address (default $WODRT_METRICS_ADDR)")

	return cmd
}

func runSession(opts *RunOptions, path string, cmd *cobra.Command) error {
	logger := opts.Logger(cmd.ErrOrStderr())
	slog.SetDefault(logger)

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = opts.Config.TickInterval
	}
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	metricsAddr := opts.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = opts.Config.MetricsAddr
	}

	s, err := loadScript(path)
	if err != nil {
		return err
	}
	logger.Info("script loaded", "script", s.Name, "statements", len(s.Statements))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The engine reads its clock only at start; event timestamps drive it
	// afterwards. Replay starts from the archived start time.
	startedAt := now()
	metrics := telemetry.NewMetrics()
	live := api.NewLive()
	engineOpts := append(opts.engineOptions(logger),
		engine.WithTimeSource(engine.FixedTime{T: startedAt}),
		engine.WithObserver(metrics),
		engine.WithObserver(telemetry.NewTracer(ctx, nil)),
		engine.WithObserver(live),
	)

	summary := RunSummary{Script: s.Name}

	var st *store.Store
	var recorder *store.Recorder
	if db := opts.resolveDB(opts.Database); db != "" {
		st, err = store.Open(db, store.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		summary.SessionID = store.NewSessionID(startedAt)
		if _, err := st.CreateSession(ctx, summary.SessionID, s, startedAt); err != nil {
			return WrapExitError(ExitCommandError, "failed to create session", err)
		}
		// Writes continue after an interrupt so the stopped chain is archived.
		recorder = store.NewRecorder(context.WithoutCancel(ctx), st, summary.SessionID, logger)
		engineOpts = append(engineOpts, engine.WithObserver(recorder))
	}

	w := cmd.OutOrStdout()
	if opts.Format != "json" {
		engineOpts = append(engineOpts, engine.WithObserver(&progress{w: w}))
	}

	eng := engine.New(newCompiler(logger), engineOpts...)
	if err := eng.Start(s); err != nil {
		return WrapExitError(ExitFailure, "failed to start session", err)
	}
	live.Bind(eng.Snapshot)

	if opts.Format != "json" {
		fmt.Fprintf(w, "Session started: %s. Enter = next, q = stop, Ctrl-C = quit.\n", s.Name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		err := eng.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return tickLoop(gctx, eng, tick, now)
	})
	g.Go(func() error {
		return inputLoop(gctx, eng, readLines(cmd.InOrStdin()), now)
	})
	if metricsAddr != "" {
		srv := api.NewServer(metricsAddr, live, st, metrics, logger)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "session error", err)
	}

	// An interrupt leaves the chain mounted: stop it so every open block is
	// popped, its spans closed and its metrics emitted.
	interrupted := !eng.Done()
	if interrupted {
		if err := eng.Handle(events.New(events.Stop, now())); err != nil {
			return WrapExitError(ExitFailure, "failed to stop session", err)
		}
	}

	history := eng.Log().History()
	summary.Stopped = eng.Stopped()
	summary.Done = eng.Done() && !summary.Stopped
	summary.Records = len(history)
	summary.Metrics = eng.Metrics().Len()

	if recorder != nil {
		// ctx may already be cancelled by a signal; archiving must still finish.
		digest, err := recorder.Finish(context.WithoutCancel(ctx), history, now())
		if err != nil {
			return WrapExitError(ExitFailure, "failed to archive session", err)
		}
		summary.Digest = digest
	}

	logger.Info("session finished",
		"script", s.Name,
		"done", summary.Done,
		"stopped", summary.Stopped,
		"interrupted", interrupted,
		"records", summary.Records,
		"session_id", summary.SessionID)

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: w}
		return formatter.Success(summary)
	}
	printSummary(w, summary)
	return nil
}

func tickLoop(ctx context.Context, eng *engine.Engine, period time.Duration, now func() time.Time) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !eng.Enqueue(events.New(events.Tick, now())) {
				return nil
			}
		}
	}
}

func inputLoop(ctx context.Context, eng *engine.Engine, lines <-chan string, now func() time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if !eng.Enqueue(events.New(inputEvent(line), now())) {
				return nil
			}
		}
	}
}

// inputEvent maps one input line to an event name.
func inputEvent(line string) string {
	switch s := strings.TrimSpace(line); strings.ToLower(s) {
	case "", "n", "next":
		return events.Next
	case "q", "quit", "stop":
		return events.Stop
	default:
		return s
	}
}

// readLines streams r line by line. The goroutine exits at EOF; a blocked
// terminal read is abandoned when the command returns.
func readLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			out <- scanner.Text()
		}
	}()
	return out
}

func printSummary(w io.Writer, s RunSummary) {
	fmt.Fprintln(w)
	if s.Done {
		fmt.Fprintf(w, "✓ %s complete\n", s.Script)
	} else {
		fmt.Fprintf(w, "■ %s stopped\n", s.Script)
	}
	fmt.Fprintf(w, "  Records: %d, metrics: %d\n", s.Records, s.Metrics)
	if s.SessionID != "" {
		fmt.Fprintf(w, "  Session: %s\n", s.SessionID)
		fmt.Fprintf(w, "  Digest:  %s\n", s.Digest)
	}
}
