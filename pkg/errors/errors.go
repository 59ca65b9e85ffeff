// Package errors provides the typed errors used across crmsync.
// Every type supports errors.Is against the sentinels below and
// errors.As for structured inspection, so callers can classify
// failures into the outcome categories reported at the end of a run.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is and As re-export the standard library helpers so callers only import one errors package.
var (
	Is = errors.Is
	As = errors.As
)

// Common sentinel errors.
var (
	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates the remote side rejected a call with 401 or 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient indicates a non-2xx response or network failure that may succeed later.
	ErrTransient = errors.New("transient failure")

	// ErrMapping indicates a record could not be normalized.
	ErrMapping = errors.New("mapping failed")

	// ErrPersistence indicates the relational store rejected a write.
	ErrPersistence = errors.New("persistence failed")

	// ErrFatalConfig indicates required configuration is absent or invalid.
	ErrFatalConfig = errors.New("fatal configuration error")

	// ErrUnrecognizedEnvelope indicates a response body matched none of the known shapes.
	ErrUnrecognizedEnvelope = errors.New("unrecognized response envelope")

	// ErrIncompleteRun indicates a run did not observe every page.
	ErrIncompleteRun = errors.New("incomplete run")

	// ErrLocked indicates another run holds the lock.
	ErrLocked = errors.New("locked by another run")
)

// NotFoundError represents an error when a resource is not found.
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// APIError is a transient failure talking to the remote CRM: any non-2xx
// response other than a rate-limit signal, or a network error (StatusCode 0).
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error from %s (status %d): %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error from %s: %s", e.Endpoint, e.Message)
}

// Unwrap implements errors.Unwrap.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support.
func (e *APIError) Is(target error) bool {
	return target == ErrTransient
}

// NewAPIError creates a new APIError.
func NewAPIError(endpoint string, statusCode int, message string) *APIError {
	return &APIError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Message:    message,
	}
}

// RateLimitError is returned once the retry policy gives up on a 401/429 response.
type RateLimitError struct {
	Endpoint   string
	StatusCode int
	Attempts   int
	Cooldown   time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s (status %d) after %d attempts, cooldown %s",
		e.Endpoint, e.StatusCode, e.Attempts, e.Cooldown)
}

// Is implements errors.Is support.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// MappingError reports a record that cannot be normalized into a usable shape.
type MappingError struct {
	Entity string
	Field  string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *MappingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("cannot map %s: field %s: %s", e.Entity, e.Field, e.Reason)
	}
	return fmt.Sprintf("cannot map %s: %s", e.Entity, e.Reason)
}

// Unwrap implements errors.Unwrap.
func (e *MappingError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support.
func (e *MappingError) Is(target error) bool {
	return target == ErrMapping
}

// NewMappingError creates a new MappingError.
func NewMappingError(entity, field, reason string) *MappingError {
	return &MappingError{Entity: entity, Field: field, Reason: reason}
}

// PersistenceError reports a rejected insert, update, delete or select.
// StatusCode is the HTTP status for REST stores and 0 for SQL stores.
type PersistenceError struct {
	Operation  string // "insert", "update", "delete", "select"
	Table      string
	ID         string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s on %s", e.Operation, e.Table)
	if e.ID != "" {
		fmt.Fprintf(&b, " (id %s)", e.ID)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " failed with status %d", e.StatusCode)
	} else {
		b.WriteString(" failed")
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// Unwrap implements errors.Unwrap.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(operation, table, id string, statusCode int, err error) *PersistenceError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &PersistenceError{
		Operation:  operation,
		Table:      table,
		ID:         id,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// ConfigError represents a configuration error. It is always fatal.
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support.
func (e *ConfigError) Is(target error) bool {
	return target == ErrFatalConfig
}

// NewConfigError creates a new ConfigError.
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// UnrecognizedEnvelopeError reports a response body whose shape matched none of the known envelopes.
type UnrecognizedEnvelopeError struct {
	Endpoint string
	Keys     []string
}

// Error implements the error interface.
func (e *UnrecognizedEnvelopeError) Error() string {
	if len(e.Keys) == 0 {
		return fmt.Sprintf("unrecognized response envelope from %s", e.Endpoint)
	}
	return fmt.Sprintf("unrecognized response envelope from %s (top-level keys: %s)",
		e.Endpoint, strings.Join(e.Keys, ", "))
}

// Is implements errors.Is support.
func (e *UnrecognizedEnvelopeError) Is(target error) bool {
	return target == ErrUnrecognizedEnvelope || target == ErrTransient
}

// IncompleteRunError is returned when an operation requires a run that observed every page.
type IncompleteRunError struct {
	Reason string
}

// Error implements the error interface.
func (e *IncompleteRunError) Error() string {
	return fmt.Sprintf("run incomplete: %s", e.Reason)
}

// Is implements errors.Is support.
func (e *IncompleteRunError) Is(target error) bool {
	return target == ErrIncompleteRun
}

// ParseError represents an error when parsing data formats.
type ParseError struct {
	Format  string // "json", "yaml"
	File    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap.
func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// IOError represents an error during I/O operations.
type IOError struct {
	Operation string // "read", "write", "rename", "delete"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap.
func (e *IOError) Unwrap() error {
	return e.Err
}

func newIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// ResourceError represents an error during resource operations.
type ResourceError struct {
	Operation string // "create", "load", "read", "close"
	Resource  string // "store", "checkpoint", "schema", "config"
	ID        string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *ResourceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed to %s %s %s: %s", e.Operation, e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("failed to %s %s: %s", e.Operation, e.Resource, e.Message)
}

// Unwrap implements errors.Unwrap.
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError creates a new ResourceError.
func NewResourceError(operation, resource, id string, err error) *ResourceError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ResourceError{
		Operation: operation,
		Resource:  resource,
		ID:        id,
		Message:   message,
		Err:       err,
	}
}

// Helper functions for error checking

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsRateLimited checks if an error is a rate limit error.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsTransient checks if an error is a transient network error.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsMapping checks if an error is a mapping error.
func IsMapping(err error) bool {
	return errors.Is(err, ErrMapping)
}

// IsPersistence checks if an error is a persistence error.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsFatal checks if an error must abort the process.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalConfig)
}

// Helper wrapping functions for common patterns

// WrapIO wraps an error as an IOError.
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return newIOError(operation, path, err)
}

// WrapResource wraps an error as a ResourceError.
func WrapResource(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	return NewResourceError(operation, resource, id, err)
}

// WrapParse wraps an error as a ParseError.
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return newParseError(format, file, err.Error(), err)
}

// WrapAPI wraps an error as an APIError.
func WrapAPI(endpoint string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	return &APIError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Message:    err.Error(),
		Err:        err,
	}
}
