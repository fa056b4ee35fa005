// Package importer implements the bulk spreadsheet import pipeline:
// rows describing Objectives, Initiatives and Activities are parsed,
// matched by title within their tenant scope and upserted top-down,
// with a per-row audit record under an import job.
package importer

import (
	"fmt"
	"strings"
)

// FieldError is one failing field of a row.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every failing field of a row, not just the first.
// Field names carry the raw column name (objective_priority, activity_title)
// so callers can tell which hierarchy level failed.
type ValidationError struct {
	RowIndex int
	Fields   []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("row %d invalid: %s", e.RowIndex, strings.Join(parts, "; "))
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// LevelFailed reports whether any failing field belongs to the given level
// prefix ("objective", "initiative", "activity") or to the row itself.
func (e *ValidationError) LevelFailed(prefix string) bool {
	for _, f := range e.Fields {
		if strings.HasPrefix(f.Field, prefix) {
			return true
		}
	}
	return false
}

// UnresolvedParentError marks a child row entry that was skipped because its
// parent level could not be resolved or created.
type UnresolvedParentError struct {
	Level  string // the level that could not be resolved
	Reason string
}

func (e *UnresolvedParentError) Error() string {
	return fmt.Sprintf("skipped: parent %s unresolved: %s", e.Level, e.Reason)
}

// FatalPipelineError aborts the whole job: the source file is unreadable,
// storage is unavailable, or another non-row-scoped failure occurred.
type FatalPipelineError struct {
	Stage string
	Err   error
}

func (e *FatalPipelineError) Error() string {
	return fmt.Sprintf("import pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *FatalPipelineError) Unwrap() error {
	return e.Err
}
