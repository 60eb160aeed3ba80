package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Type     string // optional - filter records to one block type
}

// TraceEvent is one archived input event.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Name   string `json:"name"`
	AtMs   int64  `json:"at_ms"`
	Source string `json:"source,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  store.Session                           `json:"session"`
	Timeline []TraceEvent                            `json:"timeline"`
	Records  []ir.ExecutionRecord                    `json:"records"`
	Totals   map[string]map[ir.MetricValueType]int64 `json:"totals"`
	Stats    TraceStats                              `json:"stats"`
}

// TraceStats holds summary statistics for the session.
type TraceStats struct {
	Events     int  `json:"events"`
	Records    int  `json:"records"`
	Failed     int  `json:"failed"`
	Metrics    int  `json:"metrics"`
	IsComplete bool `json:"is_complete"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [session-id]",
		Short: "Show an archived session",
		Long: `Show what an archived session did.

The output includes:
- Timeline: the input events in delivery order
- Records: the execution spans as a tree
- Totals: metric values summed per exercise

Without a session id the most recent session is shown.

Examples:
  wodrt trace --db ./wodrt.db
  wodrt trace --db ./wodrt.db 01JGZ3Q4X9M2K7T8V5R6W1Y0AB
  wodrt trace --db ./wodrt.db --type effort --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runTrace(opts, id, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite session archive (default $WODRT_DB_PATH)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "filter records to a block type")

	return cmd
}

func runTrace(opts *TraceOptions, sessionID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openArchive(opts.resolveDB(opts.Database), opts.Logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := findSession(ctx, st, sessionID)
	if err != nil {
		return err
	}

	result, err := buildTrace(ctx, st, sess, opts.Type)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	if opts.Format == "json" {
		formatter := opts.formatter(cmd)
		return formatter.Success(result)
	}
	outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

// findSession returns the named session, or the latest one when id is empty.
func findSession(ctx context.Context, st *store.Store, id string) (store.Session, error) {
	var sess store.Session
	var err error
	if id == "" {
		sess, err = st.LatestSession(ctx)
	} else {
		sess, err = st.GetSession(ctx, id)
	}
	if store.IsSessionNotFound(err) {
		if id == "" {
			return sess, NewExitError(ExitCommandError, "no sessions archived")
		}
		return sess, WrapExitError(ExitCommandError, "session not found", err)
	}
	if err != nil {
		return sess, WrapExitError(ExitCommandError, "failed to read session", err)
	}
	return sess, nil
}

func buildTrace(ctx context.Context, st *store.Store, sess store.Session, typeFilter string) (TraceResult, error) {
	evs, err := st.ReadEvents(ctx, sess.ID)
	if err != nil {
		return TraceResult{}, err
	}
	records, err := st.ReadRecords(ctx, sess.ID)
	if err != nil {
		return TraceResult{}, err
	}
	metrics, err := st.ReadMetrics(ctx, sess.ID)
	if err != nil {
		return TraceResult{}, err
	}

	result := TraceResult{
		Session:  sess,
		Timeline: make([]TraceEvent, 0, len(evs)),
		Records:  make([]ir.ExecutionRecord, 0, len(records)),
		Totals:   make(map[string]map[ir.MetricValueType]int64),
	}
	for i, ev := range evs {
		result.Timeline = append(result.Timeline, TraceEvent{
			Seq:    int64(i + 1),
			Name:   ev.Name,
			AtMs:   ev.Timestamp.Sub(sess.StartedAt).Milliseconds(),
			Source: ev.Source,
		})
	}
	for _, rec := range records {
		if rec.Status == ir.StatusFailed {
			result.Stats.Failed++
		}
		if typeFilter != "" && rec.Type != typeFilter {
			continue
		}
		result.Records = append(result.Records, rec)
	}
	for _, m := range metrics {
		totals, ok := result.Totals[m.ExerciseID]
		if !ok {
			totals = make(map[ir.MetricValueType]int64)
			result.Totals[m.ExerciseID] = totals
		}
		for _, v := range m.Values {
			totals[v.Type] += v.Value
		}
	}

	result.Stats.Events = len(result.Timeline)
	result.Stats.Records = len(records)
	result.Stats.Metrics = len(metrics)
	result.Stats.IsComplete = sess.EndedAt != nil
	return result, nil
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	sess := result.Session
	fmt.Fprintf(w, "Session: %s\n", sess.ID)
	fmt.Fprintf(w, "Script:  %s\n", sess.ScriptName)
	fmt.Fprintf(w, "Started: %s\n", sess.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Status:  %s\n", completeStatus(result.Stats.IsComplete))
	fmt.Fprintln(w)

	if verbose {
		fmt.Fprintln(w, "Timeline:")
		for _, ev := range result.Timeline {
			fmt.Fprintf(w, "  [%d] %s %s\n", ev.Seq, formatElapsed(time.Duration(ev.AtMs)*time.Millisecond), ev.Name)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Records:")
	printRecordTree(w, result.Records, sess.StartedAt)
	fmt.Fprintln(w)

	if len(result.Totals) > 0 {
		fmt.Fprintln(w, "Totals:")
		for _, exercise := range sortedKeys(result.Totals) {
			totals := result.Totals[exercise]
			parts := make([]string, 0, len(totals))
			for _, typ := range sortedKeys(totals) {
				parts = append(parts, fmt.Sprintf("%s=%d", typ, totals[typ]))
			}
			fmt.Fprintf(w, "  %s: %s\n", exercise, strings.Join(parts, " "))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Stats: %d events, %d records (%d failed), %d metrics\n",
		result.Stats.Events, result.Stats.Records, result.Stats.Failed, result.Stats.Metrics)
}

// printRecordTree prints records nested under their parent spans, in
// sequence order. Records whose parent is missing are printed at the top.
func printRecordTree(w io.Writer, records []ir.ExecutionRecord, start time.Time) {
	byID := make(map[string]bool, len(records))
	for _, r := range records {
		byID[r.ID] = true
	}
	children := make(map[string][]ir.ExecutionRecord)
	for _, r := range records {
		parent := r.ParentSpanID
		if !byID[parent] {
			parent = ""
		}
		children[parent] = append(children[parent], r)
	}
	for _, list := range children {
		sort.Slice(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	}

	var walk func(parent string, depth int)
	walk = func(parent string, depth int) {
		for _, r := range children[parent] {
			end := "…"
			if r.End != nil {
				end = formatElapsed(r.End.Sub(start))
			}
			fmt.Fprintf(w, "%s%s %s %q %s-%s\n",
				strings.Repeat("  ", depth+1),
				statusMark(r.Status), r.Type, r.Label,
				formatElapsed(r.Start.Sub(start)), end)
			for _, m := range r.Metrics {
				fmt.Fprintf(w, "%s  %s %s\n", strings.Repeat("  ", depth+1), m.ExerciseID, formatValues(m.Values))
			}
			walk(r.ID, depth+1)
		}
	}
	walk("", 0)
}

func statusMark(s ir.SpanStatus) string {
	switch s {
	case ir.StatusCompleted:
		return "✓"
	case ir.StatusFailed:
		return "✗"
	default:
		return "…"
	}
}

func completeStatus(isComplete bool) string {
	if isComplete {
		return "ended"
	}
	return "incomplete"
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
