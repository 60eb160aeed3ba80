package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wodrt/internal/compiler"
	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/script"
	"github.com/roach88/wodrt/internal/store"
	"github.com/roach88/wodrt/internal/testutil"
)

const (
	testScript    = "../script/testdata/fran.yaml"
	testCUEScript = "../script/testdata/cindy.cue"
	testScenarios = "../harness/testdata/scenarios"
)

const badGroupScript = `
name: Bad Group
statements:
  - id: 1
    children: [[2, 3], 5]
    fragments:
      - {type: rounds, count: 1}
  - id: 2
    parent: 1
    fragments:
      - {type: effort, label: A}
  - id: 3
    parent: 1
    children: [4]
    fragments:
      - {type: effort, label: B}
  - id: 4
    parent: 3
    fragments:
      - {type: effort, label: C}
  - id: 5
    parent: 1
    fragments:
      - {type: effort, label: D}
`

const duplicateIDScript = `
name: Duplicate
statements:
  - id: 1
    fragments:
      - {type: effort, label: Burpees}
  - id: 1
    fragments:
      - {type: effort, label: Lunges}
`

// writeFile writes body under a temp dir and returns its path.
func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// execute runs cmd with args and returns everything it wrote.
func execute(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func textOpts() *RootOptions {
	return &RootOptions{Format: "text"}
}

func jsonOpts() *RootOptions {
	return &RootOptions{Format: "json"}
}

// archiveFran writes a completed Fran session into the archive at dbPath,
// one next per minute, and returns its id.
func archiveFran(t *testing.T, dbPath string) string {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	s, err := script.Load(testScript)
	require.NoError(t, err)

	clock := testutil.NewManualClock(time.Time{})
	id := store.NewSessionID(clock.Now())
	_, err = st.CreateSession(ctx, id, s, clock.Now())
	require.NoError(t, err)

	rec := store.NewRecorder(ctx, st, id, testutil.DiscardLogger())
	e := engine.New(compiler.New(compiler.WithLogger(testutil.DiscardLogger())),
		engine.WithLogger(testutil.DiscardLogger()),
		engine.WithTimeSource(clock),
		engine.WithObserver(rec),
	)
	require.NoError(t, e.Start(s))
	for i := 0; i < 6; i++ {
		clock.Advance(time.Minute)
		require.NoError(t, e.Handle(events.New(events.Next, clock.Now())))
	}
	require.True(t, e.Done())

	_, err = rec.Finish(ctx, e.Log().History(), clock.Now())
	require.NoError(t, err)
	return id
}
