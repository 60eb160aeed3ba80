package compiler

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/ir"
)

var t0 = time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)

type fixedTime struct{ t time.Time }

func (f fixedTime) Now() time.Time { return f.t }

func ptr(v int64) *int64 { return &v }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(t *testing.T, s *ir.Script) *engine.Engine {
	t.Helper()
	e := engine.New(New(WithLogger(discard())),
		engine.WithLogger(discard()),
		engine.WithTimeSource(fixedTime{t: t0}),
		engine.WithSpanIDs(engine.NewSequenceGenerator("span")),
		engine.WithBlockKeys(engine.NewSequenceGenerator("blk")),
	)
	require.NoError(t, e.Start(s))
	return e
}

func effort(id int64, parent *int64, label string, frags ...ir.Fragment) ir.Statement {
	return ir.Statement{
		ID:        id,
		Parent:    parent,
		Fragments: append(frags, ir.Fragment{Type: ir.FragmentEffort, Label: label}),
	}
}

func reps(n int64) ir.Fragment {
	return ir.Fragment{Type: ir.FragmentRep, Count: n}
}

func TestSelect(t *testing.T) {
	c := New(WithLogger(discard()))
	parent := func(frags ...ir.Fragment) []ir.Statement {
		return []ir.Statement{{ID: 1, Children: [][]int64{{2}}, Fragments: frags}}
	}
	rounds := ir.Fragment{Type: ir.FragmentRounds, Count: 3}
	scheme := ir.Fragment{Type: ir.FragmentRounds, Sequence: []int64{21, 15, 9}}
	countdown := ir.Fragment{Type: ir.FragmentTimer, Duration: 600000}
	emom := ir.Fragment{Type: ir.FragmentAction, Label: "emom"}

	tests := []struct {
		name  string
		stmts []ir.Statement
		want  string
	}{
		{"emom", parent(rounds, ir.Fragment{Type: ir.FragmentTimer, Duration: 60000}, emom), "interval"},
		{"rounds with time cap", parent(rounds, countdown), "timed-rounds"},
		{"rep scheme", parent(scheme), "rep-scheme"},
		{"fixed rounds", parent(rounds), "rounds"},
		{"amrap", parent(countdown, ir.Fragment{Type: ir.FragmentAction, Label: "AMRAP"}), "amrap"},
		{"for time", parent(ir.Fragment{Type: ir.FragmentTimer, Direction: ir.DirectionUp}), "for-time"},
		{"time cap counting up", parent(ir.Fragment{Type: ir.FragmentTimer, Duration: 600000, Direction: ir.DirectionUp}), "for-time"},
		{"plain parent", parent(ir.Fragment{Type: ir.FragmentEffort, Label: "Warmup"}), "group"},
		{"rest", []ir.Statement{{ID: 1, Fragments: []ir.Fragment{countdown}}}, "timer"},
		{"effort", []ir.Statement{effort(1, nil, "Pushups", reps(10))}, "effort"},
		{"effort group", []ir.Statement{effort(1, nil, "Pushups"), effort(2, nil, "Situps")}, "effort"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := c.Select(tt.stmts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.Name())
		})
	}
}

func TestSelect_Errors(t *testing.T) {
	c := New(WithLogger(discard()))

	_, err := c.Select(nil)
	assert.Equal(t, CodeEmptyInput, ErrorCode(err))

	_, err = c.Select([]ir.Statement{{ID: 1, Fragments: []ir.Fragment{{Type: ir.FragmentEffort}}}})
	assert.Equal(t, CodeInvalidFragment, ErrorCode(err))

	// Several statements with children cannot form one block.
	_, err = c.Select([]ir.Statement{
		{ID: 1, Children: [][]int64{{3}}},
		{ID: 2, Children: [][]int64{{4}}},
	})
	require.Error(t, err)
	assert.True(t, IsCompilationError(err))
	assert.Equal(t, CodeNoMatch, ErrorCode(err))

	_, err = c.Select([]ir.Statement{
		{ID: 1, Children: [][]int64{{3}}},
		{ID: 2, Children: [][]int64{{4}}},
	})
	var ce *CompilationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []int64{1, 2}, ce.Group)
}

func TestSelect_FirstMatchWins(t *testing.T) {
	c := New(WithStrategies(Effort{}, Timer{}), WithLogger(discard()))
	st, err := c.Select([]ir.Statement{{ID: 1, Fragments: []ir.Fragment{{Type: ir.FragmentTimer, Duration: 1000}}}})
	require.NoError(t, err)
	assert.Equal(t, "effort", st.Name())
}

func TestCompileRoot_EmptyScript(t *testing.T) {
	e := engine.New(New(WithLogger(discard())), engine.WithLogger(discard()))
	err := e.Start(ir.MustScript("empty", nil))
	require.Error(t, err)
	assert.Equal(t, CodeEmptyInput, ErrorCode(err))
}

func TestCompileGroup_UnknownStatement(t *testing.T) {
	s := ir.MustScript("broken", []ir.Statement{
		{ID: 1, Children: [][]int64{{99}}, Fragments: []ir.Fragment{{Type: ir.FragmentRounds, Count: 1}}},
	})
	e := newSession(t, s)

	top := e.Stack().Top()
	require.NotNil(t, top)
	assert.Equal(t, "error", top.Type)
	assert.Equal(t, []int64{99}, top.Sources)
}

func TestPlan(t *testing.T) {
	s := ir.MustScript("cindy", []ir.Statement{
		{ID: 1, Children: [][]int64{{2}, {3}}, Fragments: []ir.Fragment{
			{Type: ir.FragmentTimer, Duration: 1200000, Image: "20:00"},
			{Type: ir.FragmentAction, Label: "AMRAP"},
		}},
		effort(2, ptr(1), "Pull-ups", reps(5)),
		effort(3, ptr(1), "Pushups", reps(10)),
	})
	plan, err := New(WithLogger(discard())).Plan(s)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "amrap", plan[0].Strategy)
	assert.Equal(t, "AMRAP", plan[0].Label)
	require.Len(t, plan[0].Children, 2)
	assert.Equal(t, "effort", plan[0].Children[0].Strategy)
	assert.Equal(t, []int64{3}, plan[0].Children[1].Group)
}

func TestPlan_Cycle(t *testing.T) {
	s := ir.MustScript("loop", []ir.Statement{
		{ID: 1, Children: [][]int64{{2}}, Fragments: []ir.Fragment{{Type: ir.FragmentEffort, Label: "A"}}},
		{ID: 2, Children: [][]int64{{1}}, Fragments: []ir.Fragment{{Type: ir.FragmentEffort, Label: "B"}}},
		{ID: 3, Children: [][]int64{{1}}, Fragments: []ir.Fragment{{Type: ir.FragmentEffort, Label: "C"}}},
	})
	_, err := New(WithLogger(discard())).Plan(s)
	require.Error(t, err)
}
