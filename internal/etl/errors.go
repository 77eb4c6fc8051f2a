package etl

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	// ErrConfig marks errors raised before any row is processed because a
	// conversion unit is declared incorrectly.
	ErrConfig = errors.New("invalid conversion configuration")
	// ErrSchema marks schema generation failures.
	ErrSchema = errors.New("schema generation failed")
	// ErrPersistence marks failed writes to the document store.
	ErrPersistence = errors.New("persisting documents failed")
)

// ConfigError describes a misconfigured conversion unit.
type ConfigError struct {
	Unit  string
	Msg   string
	Cause error
}

func newConfigError(unit, format string, args ...any) *ConfigError {
	return &ConfigError{Unit: unit, Msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	msg := e.Msg
	if e.Unit != "" {
		msg = e.Unit + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

func (e *ConfigError) Unwrap() error { return e.Cause }

// CycleError names the dependency chain from the repeated ancestor back to itself.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return "circular dependency: " + strings.Join(e.Chain, " -> ")
}

func (e *CycleError) Is(target error) bool { return target == ErrConfig }

// PersistenceError carries the batch that could not be written.
type PersistenceError struct {
	Collection string
	Documents  []bson.M
	Cause      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting %d documents into %s: %v", len(e.Documents), e.Collection, e.Cause)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Cause }

// SchemaPathError reports the first embed path segment missing from a parent schema.
type SchemaPathError struct {
	Path    string
	Segment string
	Title   string
}

func (e *SchemaPathError) Error() string {
	return fmt.Sprintf("unable to find segment %q of path %s in schema(%s)", e.Segment, e.Path, e.Title)
}

func (e *SchemaPathError) Is(target error) bool { return target == ErrSchema }
