package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/wodrt/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplaySummary holds the overall replay result.
type ReplaySummary struct {
	Sessions         []store.ReplayResult `json:"sessions"`
	TotalSessions    int                  `json:"total_sessions"`
	AllDeterministic bool                 `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [session-id]",
		Short: "Replay archived sessions and verify determinism",
		Long: `Replay archived input events through a fresh engine and check that the
replayed history matches the archived one.

Without a session id every archived session is replayed.

Exit codes:
  0 - All sessions replay identically
  1 - A replayed history differs from its archive
  2 - Command error (database not found, etc.)

Examples:
  wodrt replay --db ./wodrt.db
  wodrt replay --db ./wodrt.db 01JGZ3Q4X9M2K7T8V5R6W1Y0AB
  wodrt replay --db ./wodrt.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runReplay(opts, id, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite session archive (default $WODRT_DB_PATH)")

	return cmd
}

func runReplay(opts *ReplayOptions, sessionID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger(cmd.ErrOrStderr())

	st, err := openArchive(opts.resolveDB(opts.Database), logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var ids []string
	if sessionID != "" {
		ids = []string{sessionID}
	} else {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		for _, s := range sessions {
			ids = append(ids, s.ID)
		}
	}

	result := ReplaySummary{
		Sessions:         make([]store.ReplayResult, 0, len(ids)),
		TotalSessions:    len(ids),
		AllDeterministic: true,
	}

	c := newCompiler(logger)
	for _, id := range ids {
		rr, err := st.ReplayCheck(ctx, id, c, opts.engineOptions(logger)...)
		if store.IsSessionNotFound(err) {
			return WrapExitError(ExitCommandError, "session not found", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", id), err)
		}
		result.Sessions = append(result.Sessions, rr)
		if !rr.Match {
			result.AllDeterministic = false
		}
	}

	formatter := opts.formatter(cmd)
	if formatter.JSON() {
		if result.AllDeterministic {
			return formatter.Success(result)
		}
		_ = formatter.Failure(result, ErrCodeReplay, "determinism verification failed")
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return outputReplayText(formatter.Writer, result, opts.Verbose)
}

// outputReplayText outputs the replay result as text.
func outputReplayText(w io.Writer, result ReplaySummary, verbose bool) error {
	if result.TotalSessions == 0 {
		fmt.Fprintln(w, "No sessions found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d session(s)\n", result.TotalSessions)
	fmt.Fprintln(w)

	for _, s := range result.Sessions {
		mark := "✓"
		if !s.Match {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s Session: %s\n", mark, s.SessionID)
		fmt.Fprintf(w, "  Events: %d\n", s.Events)
		if verbose || !s.Match {
			fmt.Fprintf(w, "  Stored:   %s\n", s.Stored)
			fmt.Fprintf(w, "  Archived: %s\n", s.Archived)
			fmt.Fprintf(w, "  Replayed: %s\n", s.Replayed)
		}
		if !s.Match {
			fmt.Fprintln(w, "  Warning: replayed history differs from the archive!")
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All sessions verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	return NewExitError(ExitFailure, "determinism verification failed")
}
