package behavior

import (
	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/memory"
)

// BlockError is published for a statement group that failed to compile.
type BlockError struct {
	Message string  `json:"message"`
	Group   []int64 `json:"group"`
}

// ErrorBehavior marks its block failed so its span is finalized as failed.
// The block stays on the stack until the user dismisses it with next.
type ErrorBehavior struct {
	Cell memory.Ref[BlockError]
}

func (e *ErrorBehavior) Name() string { return "error" }

func (e *ErrorBehavior) OnMount(b *engine.Block, env engine.Env) ([]engine.Action, error) {
	if err := engine.RequireRef(b, env, e.Name(), CellBlockError, e.Cell.Reference); err != nil {
		return nil, err
	}
	b.MarkFailed()
	be, err := memory.Get(env.Memory(), e.Cell)
	if err != nil {
		return nil, err
	}
	env.Logger().Warn("statement group failed to compile",
		"group", be.Group,
		"error", be.Message)
	return nil, nil
}
