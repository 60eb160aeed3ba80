package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/wodrt/internal/compiler"
	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/script"
	"github.com/roach88/wodrt/internal/store"
)

// loadScript loads and validates a script file. A file that cannot be read
// or decoded is a command error; a script that decodes but fails
// validation is a failure.
func loadScript(path string) (*ir.Script, error) {
	s, err := script.Load(path)
	if err == nil {
		return s, nil
	}
	var invalid *script.InvalidScriptError
	if errors.As(err, &invalid) {
		return nil, WrapExitError(ExitFailure, "invalid script", err)
	}
	return nil, WrapExitError(ExitCommandError, "failed to load script", err)
}

// openArchive opens an existing session archive.
func openArchive(path string, logger *slog.Logger) (*store.Store, error) {
	if path == "" {
		return nil, NewExitError(ExitCommandError, "--db is required")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path, store.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// newCompiler returns the default strategy registry.
func newCompiler(logger *slog.Logger) *compiler.Compiler {
	return compiler.New(compiler.WithLogger(logger))
}

// engineOptions returns the options every command's engine shares.
func (o *RootOptions) engineOptions(logger *slog.Logger) []engine.Option {
	opts := []engine.Option{engine.WithLogger(logger)}
	if o.Config.MaxSteps > 0 {
		opts = append(opts, engine.WithMaxSteps(o.Config.MaxSteps))
	}
	return opts
}

// resolveDB picks the --db flag when set, else the configured archive.
func (o *RootOptions) resolveDB(flag string) string {
	if flag != "" {
		return flag
	}
	return o.Config.DBPath
}
