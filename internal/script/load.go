package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/wodrt/internal/ir"
)

// LoadMode controls how errors are handled while loading a directory.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Load error codes.
const (
	ErrCodeGeneric     = "E001" // generic/unknown error
	ErrCodeScanError   = "E002" // directory scan error
	ErrCodeNoFiles     = "E003" // no script files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeFormat      = "E007" // unsupported file extension
)

// LoadError is an error that occurred while loading scripts.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadResult contains the documents loaded from a directory.
type LoadResult struct {
	Documents []*Document
	FileCount int
}

// LoadFile loads one script file, choosing the decoder by extension.
// The document name defaults to the file's base name without extension.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("read script: %v", err)}
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var doc *Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		doc, err = ParseYAML(name, data)
	case ".cue":
		doc, err = compileFile(name, path, data)
	default:
		return nil, &LoadError{Code: ErrCodeFormat, Message: fmt.Sprintf("unsupported script format %q", filepath.Ext(path))}
	}
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// compileFile accepts a single workout either at the top level or as the
// only entry of a `workout` struct.
func compileFile(name, path string, data []byte) (*Document, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if v.LookupPath(cue.ParsePath("statements")).Exists() {
		return Compile(name, v)
	}
	workouts, err := workoutValues(v)
	if err != nil {
		return nil, err
	}
	if len(workouts) != 1 {
		return nil, &LoadError{
			Code:    ErrCodeGeneric,
			Message: fmt.Sprintf("%s holds %d workouts; load its directory instead", path, len(workouts)),
		}
	}
	return Compile("", workouts[0])
}

func workoutValues(v cue.Value) ([]cue.Value, error) {
	wv := v.LookupPath(cue.ParsePath("workout"))
	if !wv.Exists() {
		return nil, nil
	}
	iter, err := wv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []cue.Value
	for iter.Next() {
		out = append(out, iter.Value())
	}
	return out, nil
}

// LoadDir loads every workout under the `workout` struct of the CUE package
// in dir, plus any YAML scripts beside it. Documents are returned in name
// order.
func LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("scripts directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing scripts directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, yamlFiles, err := FindScriptFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles)+len(yamlFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no script files found in %s", dir)}}
	}

	result := &LoadResult{FileCount: len(cueFiles) + len(yamlFiles)}
	var errs []error
	fail := func(err error) bool {
		errs = append(errs, err)
		return mode == LoadModeFailFast
	}

	if len(cueFiles) > 0 {
		ctx := cuecontext.New()
		instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
		if len(instances) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
		}
		inst := instances[0]
		if inst.Err != nil {
			return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
		}
		value := ctx.BuildInstance(inst)
		if err := value.Err(); err != nil {
			return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
		}

		workouts, err := workoutValues(value)
		if err != nil && fail(convertCompileError(err, "workout")) {
			return result, errs
		}
		for _, w := range workouts {
			doc, err := Compile("", w)
			if err != nil {
				if fail(convertCompileError(err, w.Path().String())) {
					return result, errs
				}
				continue
			}
			doc.Path = dir
			result.Documents = append(result.Documents, doc)
		}
	}

	for _, path := range yamlFiles {
		doc, err := LoadFile(path)
		if err != nil {
			if fail(convertCompileError(err, path)) {
				return result, errs
			}
			continue
		}
		result.Documents = append(result.Documents, doc)
	}

	slices.SortStableFunc(result.Documents, func(a, b *Document) int {
		return strings.Compare(a.Name, b.Name)
	})
	if len(result.Documents) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no workouts found in scripts"})
	}
	return result, errs
}

// FindScriptFiles returns the .cue and .yaml/.yml files directly in dir.
func FindScriptFiles(dir string) (cueFiles, yamlFiles []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".cue":
			cueFiles = append(cueFiles, path)
		case ".yaml", ".yml":
			yamlFiles = append(yamlFiles, path)
		}
	}
	return cueFiles, yamlFiles, nil
}

// convertCompileError converts a decoding error to a LoadError with position
// info.
func convertCompileError(err error, context string) *LoadError {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	var ce *CompileError
	if errors.As(err, &ce) {
		return &LoadError{
			Code:    ErrCodeGeneric,
			Message: ce.Field + ": " + ce.Message,
			Pos:     ce.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Load reads a script file and returns the validated script.
func Load(path string) (*ir.Script, error) {
	doc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return doc.Script()
}
