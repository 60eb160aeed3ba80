package engine

import (
	"log/slog"
	"time"

	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/memory"
)

// Env is what a behavior hook may touch besides its own block.
type Env interface {
	// Now is the timestamp of the event being handled.
	Now() time.Time
	Memory() *memory.Store
	Logger() *slog.Logger

	// Compile compiles a statement group as a child of the calling block.
	Compile(ids []int64) (*Block, error)

	// OpenSpan opens a nested span (e.g. one round) under the block's
	// innermost open span and returns its id. Metrics emitted by the block
	// attach to the innermost span until it is closed.
	OpenSpan(typ, label string) string

	// CloseSpan finalizes a span opened with OpenSpan. Unknown ids are ignored.
	CloseSpan(id string)
}

// CompileEnv is what a compile strategy may read.
type CompileEnv interface {
	Now() time.Time
	Memory() *memory.Store
	Script() *ir.Script
	Logger() *slog.Logger

	// ParentKey is the key of the block the result will be pushed under,
	// empty for the root.
	ParentKey() string

	// NewKey returns a fresh block key.
	NewKey() string
}

// Compiler turns statement groups into blocks.
type Compiler interface {
	CompileRoot(env CompileEnv) (*Block, error)
	CompileGroup(ids []int64, env CompileEnv) (*Block, error)

	// ErrorBlock builds the block pushed in place of a group that failed to
	// compile. It must not fail.
	ErrorBlock(cause error, ids []int64, env CompileEnv) *Block
}

type blockEnv struct {
	e *Engine
	b *Block
}

func (v blockEnv) Now() time.Time        { return v.e.now }
func (v blockEnv) Memory() *memory.Store { return v.e.memory }
func (v blockEnv) Logger() *slog.Logger  { return v.e.logger.With("block_key", v.b.Key) }

func (v blockEnv) Compile(ids []int64) (*Block, error) {
	return v.e.compiler.CompileGroup(ids, v.e.compileEnv(v.b.Key))
}

func (v blockEnv) OpenSpan(typ, label string) string {
	id := v.e.spanIDs.Generate()
	v.e.log.Open(ir.ExecutionRecord{
		ID:           id,
		BlockKey:     v.b.Key,
		ParentSpanID: v.b.currentSpan(),
		Type:         typ,
		Label:        label,
		Seq:          v.e.seq.next(),
		Start:        v.e.now,
	})
	v.b.spans = append(v.b.spans, id)
	return id
}

func (v blockEnv) CloseSpan(id string) {
	// The block's own span is closed by the engine at pop.
	for i := len(v.b.spans) - 1; i > 0; i-- {
		if v.b.spans[i] != id {
			continue
		}
		v.e.log.Close(id, ir.StatusCompleted, v.e.now)
		v.b.spans = append(v.b.spans[:i], v.b.spans[i+1:]...)
		return
	}
}

type compileEnv struct {
	e      *Engine
	parent string
}

func (c compileEnv) Now() time.Time        { return c.e.now }
func (c compileEnv) Memory() *memory.Store { return c.e.memory }
func (c compileEnv) Script() *ir.Script    { return c.e.script }
func (c compileEnv) Logger() *slog.Logger  { return c.e.logger }
func (c compileEnv) ParentKey() string     { return c.parent }
func (c compileEnv) NewKey() string        { return c.e.blockKeys.Generate() }
