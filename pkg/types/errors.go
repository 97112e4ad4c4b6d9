package types

import (
	"errors"
	"fmt"
)

// Engine errors. Typed errors below match these sentinels through errors.Is.
var (
	ErrUnregisteredTable    = errors.New("table is not registered")
	ErrValidation           = errors.New("validation failed")
	ErrMissingConflictField = errors.New("upsert requires a conflict field")
	ErrMissingWhereClause   = errors.New("delete requires an id or a where condition")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidOperation     = errors.New("invalid operation")
	ErrStorageExecution     = errors.New("storage execution failed")
)

// Secondary errors raised by builders and the substrate.
var (
	ErrMissingID       = errors.New("operation requires a positive id")
	ErrUnknownColumn   = errors.New("unknown column")
	ErrUnknownOperator = errors.New("unknown comparison operator")
	ErrNestedAtomic    = errors.New("atomic scopes cannot be nested")
	ErrInvalidSchema   = errors.New("invalid table schema")
	ErrStoreClosed     = errors.New("store is closed")
	ErrAlreadyAttached = errors.New("store is already attached")
)

// ValidationError reports the first schema constraint a value failed.
// Path is dotted (e.g. "items.2.name"); empty for the root value.
type ValidationError struct {
	Table      string
	Path       string
	Constraint string
}

func (e *ValidationError) Error() string {
	prefix := "validation failed"
	if e.Table != "" {
		prefix = fmt.Sprintf("validation failed for table %q", e.Table)
	}
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", prefix, e.Constraint)
	}
	return fmt.Sprintf("%s: %s: %s", prefix, e.Path, e.Constraint)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StorageError wraps a failure raised by the SQL surface together with the
// statement that caused it.
type StorageError struct {
	SQL    string
	Params []any
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("executing [%s] with %d params: %v", e.SQL, len(e.Params), e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is matches ErrStorageExecution.
func (e *StorageError) Is(target error) bool { return target == ErrStorageExecution }

// MissingRequiredFieldError reports a multi-table batch entry that lacks a
// field its kind requires.
type MissingRequiredFieldError struct {
	Index int
	Kind  string
	Field string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("batch entry %d (%s): missing required field %q", e.Index, e.Kind, e.Field)
}

// Is matches ErrMissingRequiredField.
func (e *MissingRequiredFieldError) Is(target error) bool { return target == ErrMissingRequiredField }
