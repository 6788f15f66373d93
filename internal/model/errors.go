package model

import (
	"errors"
	"fmt"
)

// InvalidInputError reports a row or argument that cannot be processed.
type InvalidInputError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// PersistenceConflictError is returned when a unique key (company domain,
// lead email, tag name) was inserted concurrently by another writer.
type PersistenceConflictError struct {
	Entity string
	Key    string
	Err    error
}

func (e *PersistenceConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.Key)
}

func (e *PersistenceConflictError) Unwrap() error { return e.Err }

// ConfigurationError reports a capability that cannot run because a
// credential or setting is missing.
type ConfigurationError struct {
	Capability string
	Setting    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s disabled: %s is not configured", e.Capability, e.Setting)
}

// IsInvalidInput reports whether err wraps an InvalidInputError.
func IsInvalidInput(err error) bool {
	var target *InvalidInputError
	return errors.As(err, &target)
}

// IsConflict reports whether err wraps a PersistenceConflictError.
func IsConflict(err error) bool {
	var target *PersistenceConflictError
	return errors.As(err, &target)
}

// IsConfiguration reports whether err wraps a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
