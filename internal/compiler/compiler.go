package compiler

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/wodrt/internal/behavior"
	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/memory"
)

// Strategy turns a statement group into a block.
//
// Match must be cheap and free of side effects. Compile is only called on a
// group Match accepted; it allocates every memory cell the block's behaviors
// need with its final visibility and injects the references.
type Strategy interface {
	Name() string
	Match(stmts []ir.Statement) bool
	Compile(stmts []ir.Statement, env engine.CompileEnv) (*engine.Block, error)
}

// Compiler selects the first matching strategy for a group, in registration
// order. Once a strategy matches no other is tried, even if it fails.
//
// Compiler implements engine.Compiler.
type Compiler struct {
	strategies []Strategy
	logger     *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithStrategies replaces the default registry.
func WithStrategies(s ...Strategy) Option {
	return func(c *Compiler) {
		c.strategies = slices.Clone(s)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) {
		c.logger = l
	}
}

// New creates a compiler with DefaultStrategies unless WithStrategies is given.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		strategies: DefaultStrategies(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultStrategies returns the registry, most specific first.
func DefaultStrategies() []Strategy {
	return []Strategy{
		Interval{},
		TimedRounds{},
		RepScheme{},
		Rounds{},
		Amrap{},
		ForTime{},
		Group{},
		Timer{},
		Effort{},
	}
}

// Strategies returns the registry in match order.
func (c *Compiler) Strategies() []Strategy {
	return slices.Clone(c.strategies)
}

// Select returns the first strategy matching stmts.
func (c *Compiler) Select(stmts []ir.Statement) (Strategy, error) {
	if len(stmts) == 0 {
		return nil, &CompilationError{Code: CodeEmptyInput, Message: "no statements to compile"}
	}
	for _, s := range stmts {
		for i, f := range s.Fragments {
			if err := f.Validate(); err != nil {
				return nil, &CompilationError{
					Code:    CodeInvalidFragment,
					Group:   statementIDs(stmts),
					Message: fmt.Sprintf("statement %d fragment %d: %v", s.ID, i, err),
					Err:     err,
				}
			}
		}
	}
	for _, st := range c.strategies {
		if st.Match(stmts) {
			return st, nil
		}
	}
	return nil, &CompilationError{
		Code:    CodeNoMatch,
		Group:   statementIDs(stmts),
		Message: "no strategy matched",
	}
}

// Compile compiles already resolved statements.
func (c *Compiler) Compile(stmts []ir.Statement, env engine.CompileEnv) (*engine.Block, error) {
	st, err := c.Select(stmts)
	if err != nil {
		return nil, err
	}
	b, err := st.Compile(stmts, env)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", st.Name(), err)
	}
	c.logger.Debug("compiled group",
		"strategy", st.Name(),
		"group", statementIDs(stmts),
		"block_key", b.Key,
		"parent_key", env.ParentKey())
	return b, nil
}

// CompileGroup resolves ids against the session script and compiles them.
func (c *Compiler) CompileGroup(ids []int64, env engine.CompileEnv) (*engine.Block, error) {
	if len(ids) == 0 {
		return nil, &CompilationError{Code: CodeEmptyInput, Message: "empty statement group"}
	}
	stmts, err := env.Script().Lookup(ids)
	if err != nil {
		return nil, &CompilationError{
			Code:    CodeUnknownStatement,
			Group:   slices.Clone(ids),
			Message: err.Error(),
			Err:     err,
		}
	}
	return c.Compile(stmts, env)
}

// CompileRoot builds the session root: one FIXED pass over the script's
// top-level groups with a count-up session timer.
func (c *Compiler) CompileRoot(env engine.CompileEnv) (*engine.Block, error) {
	s := env.Script()
	groups := s.RootGroups()
	if len(groups) == 0 {
		return nil, &CompilationError{Code: CodeEmptyInput, Message: fmt.Sprintf("script %q has no statements", s.Name)}
	}

	key := env.NewKey()
	ctx := env.Memory().Context(key)
	timer := memory.Own(ctx, behavior.CellTimer, behavior.TimerState{Direction: ir.DirectionUp}, memory.Public)
	loop := newLoop(ctx, behavior.LoopConfig{
		Kind:        behavior.LoopFixed,
		Groups:      groups,
		TotalRounds: 1,
	})
	b := engine.NewBlock(key, env.ParentKey(), "root", s.Name, nil, ctx,
		&behavior.Timer{State: timer},
		loop,
	)
	c.logger.Debug("compiled root",
		"script", s.Name,
		"groups", len(groups),
		"block_key", key)
	return b, nil
}

// ErrorBlock builds the block shown in place of a group that failed to
// compile. It publishes the failure in a public block:error cell and is
// dismissed with next.
func (c *Compiler) ErrorBlock(cause error, ids []int64, env engine.CompileEnv) *engine.Block {
	key := env.NewKey()
	ctx := env.Memory().Context(key)
	cell := memory.Own(ctx, behavior.CellBlockError, behavior.BlockError{
		Message: cause.Error(),
		Group:   slices.Clone(ids),
	}, memory.Public)
	return engine.NewBlock(key, env.ParentKey(), "error", "compile error", ids, ctx,
		&behavior.ErrorBehavior{Cell: cell},
		behavior.NextCompletes{},
	)
}

func statementIDs(stmts []ir.Statement) []int64 {
	ids := make([]int64, len(stmts))
	for i, s := range stmts {
		ids[i] = s.ID
	}
	return ids
}
