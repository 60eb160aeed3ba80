package script

import (
	"fmt"

	"github.com/roach88/wodrt/internal/ir"
)

// Document is a decoded script before validation and indexing.
type Document struct {
	Name       string
	Path       string // source file, empty for in-memory sources
	Statements []ir.Statement

	// Lines maps a statement id to the source line it was declared on.
	// Used to position validation errors.
	Lines map[int64]int
}

// Script validates the document and indexes it.
// Returns *InvalidScriptError if validation finds anything.
func (d *Document) Script() (*ir.Script, error) {
	if errs := d.Validate(); len(errs) > 0 {
		return nil, &InvalidScriptError{Name: d.Name, Errors: errs}
	}
	s, err := ir.NewScript(d.Name, d.Statements)
	if err != nil {
		return nil, fmt.Errorf("index script %q: %w", d.Name, err)
	}
	return s, nil
}
