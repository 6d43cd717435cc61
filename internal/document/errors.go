package document

import (
	"fmt"
	"sort"
	"strings"
)

// CastError reports a value that could not be converted to the declared
// type of a path.
type CastError struct {
	Path  string
	Type  FieldType
	Value any
}

func (e *CastError) Error() string {
	return fmt.Sprintf("cast to %s failed for value %v (type %T) at path %q", e.Type, e.Value, e.Value, e.Path)
}

// ValidationError collects per-path failures of a document.
type ValidationError struct {
	Schema string
	Errors map[string]error
}

func (e *ValidationError) Error() string {
	paths := make([]string, 0, len(e.Errors))
	for p := range e.Errors {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		parts = append(parts, p+": "+e.Errors[p].Error())
	}
	return fmt.Sprintf("%s validation failed: %s", e.Schema, strings.Join(parts, ", "))
}

// Unwrap exposes the per-path errors so cast failures can be found in the chain.
func (e *ValidationError) Unwrap() []error {
	out := make([]error, 0, len(e.Errors))
	for _, err := range e.Errors {
		out = append(out, err)
	}
	return out
}

func (e *ValidationError) add(path string, err error) {
	if e.Errors == nil {
		e.Errors = map[string]error{}
	}
	e.Errors[path] = err
}

func (e *ValidationError) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

type requiredError struct{ path string }

func (e *requiredError) Error() string { return fmt.Sprintf("path %q is required", e.path) }
