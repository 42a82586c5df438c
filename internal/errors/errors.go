// Package errors provides categorized errors with structured context.
//
// Errors are built with a fluent builder and carry the component that raised
// them, a category used for grouping in telemetry, and free-form context:
//
//	return errors.New(err).
//	    Component("datastore").
//	    Category(errors.CategoryDatabase).
//	    Context("operation", "fetch_page").
//	    Context("cursor", cursor).
//	    Build()
//
// The package also re-exports Is, As, Unwrap and Join so callers need only
// one errors import.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors for reporting and handling decisions.
type ErrorCategory string

const (
	CategoryDatabase      ErrorCategory = "database"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryValidation    ErrorCategory = "validation"
	CategoryTransform     ErrorCategory = "transform" // payload could not be converted
	CategoryFileParsing   ErrorCategory = "file-parsing"
	CategoryCancellation  ErrorCategory = "cancellation"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryConflict      ErrorCategory = "conflict"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryState         ErrorCategory = "state"
	CategoryNetwork       ErrorCategory = "network"
	CategoryGeneric       ErrorCategory = "generic"
)

// ComponentUnknown is used when no component was set on the builder.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with a component, a category and context data.
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time

	mu       sync.RWMutex
	reported bool
}

func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches another EnhancedError by category, otherwise defers to the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetContext returns a copy of the context map.
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	if ee.Context == nil {
		return nil
	}
	out := make(map[string]any, len(ee.Context))
	maps.Copy(out, ee.Context)
	return out
}

// MarkReported records that telemetry has seen this error.
func (ee *EnhancedError) MarkReported() {
	ee.mu.Lock()
	defer ee.mu.Unlock()
	ee.reported = true
}

// IsReported reports whether telemetry has seen this error.
func (ee *EnhancedError) IsReported() bool {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	return ee.reported
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts building an enhanced error around err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts building an enhanced error from a formatted message.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Timing records how long the failed operation ran.
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	return eb.Context("operation", operation).Context("duration_ms", duration.Milliseconds())
}

// Build creates the EnhancedError and hands it to the telemetry reporter, if one is active.
func (eb *ErrorBuilder) Build() *EnhancedError {
	if eb.err == nil {
		eb.err = stderrors.New("unspecified error")
	}
	ee := &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  eb.category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
	if ee.Component == "" {
		ee.Component = ComponentUnknown
	}
	if ee.Category == "" {
		ee.Category = detectCategory(eb.err)
	}

	if hasActiveReporting.Load() {
		reportToTelemetry(ee)
	}
	return ee
}

// detectCategory recognizes context errors so cancellations are not reported as generic failures.
func detectCategory(err error) ErrorCategory {
	switch {
	case stderrors.Is(err, context.Canceled):
		return CategoryCancellation
	case stderrors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	default:
		return CategoryGeneric
	}
}

var hasActiveReporting atomic.Bool

// ValidationError creates a validation error from a message.
func ValidationError(message string) *EnhancedError {
	return New(stderrors.New(message)).Category(CategoryValidation).Build()
}

// NewStd creates a plain error (passthrough to the standard library)
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is passes through to the standard library
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As passes through to the standard library
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap passes through to the standard library
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join passes through to the standard library
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory reports whether err is an EnhancedError of the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	return As(err, &ee) && ee.Category == category
}

// IsNotFound reports whether err is categorized as not-found.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}
