// Package dnaerr defines the typed error taxonomy shared by the generation
// pipeline and the recovery engine. Every failure that crosses a stage
// boundary is an *Error carrying a stable code, a category, a severity and,
// when one exists, a suggestion and an automatic fix.
package dnaerr

import (
	"errors"
	"fmt"
	"time"
)

// Category groups errors by the subsystem that failed.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryTemplate      Category = "template"
	CategoryFilesystem    Category = "filesystem"
	CategoryNetwork       Category = "network"
	CategoryDependency    Category = "dependency"
	CategorySystem        Category = "system"
	CategoryConfiguration Category = "configuration"
	CategoryRollback      Category = "rollback"
	CategorySecurity      Category = "security"
)

// Severity ranks how much damage an error implies.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error is a classified failure. Treat it as immutable once returned.
type Error struct {
	// Code is the stable identifier used for retry bookkeeping and exit messages.
	Code string `json:"code"`

	Category Category `json:"category"`
	Severity Severity `json:"severity"`

	// Message is the human-readable description of what failed.
	Message string `json:"message"`

	// Suggestion tells the operator what to do next, if anything.
	Suggestion string `json:"suggestion,omitempty"`

	// AutoFix repairs the condition that caused the error. Nil when no
	// automatic repair exists.
	AutoFix func() error `json:"-"`

	// Recoverable reports whether retrying after manual action can succeed.
	Recoverable bool `json:"recoverable"`

	// Stage names the pipeline stage that raised the error, if any.
	Stage string `json:"stage,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// Details carries structured context for detailed output and logs.
	Details map[string]interface{} `json:"details,omitempty"`

	// Err is the underlying cause.
	Err error `json:"-"`
}

// New creates an error with the given classification. Errors are
// recoverable unless their category or severity says otherwise.
func New(code string, category Category, severity Severity, message string) *Error {
	return &Error{
		Code:        code,
		Category:    category,
		Severity:    severity,
		Message:     message,
		Recoverable: defaultRecoverable(category, severity),
		Timestamp:   time.Now(),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// AutoFixable reports whether the error carries an automatic fix that the
// recovery engine is allowed to run. Rollback and system failures never are.
func (e *Error) AutoFixable() bool {
	if e.AutoFix == nil {
		return false
	}
	return e.Category != CategoryRollback && e.Category != CategorySystem
}

// WithSuggestion sets the operator hint.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithAutoFix attaches an automatic repair action.
func (e *Error) WithAutoFix(fix func() error) *Error {
	e.AutoFix = fix
	return e
}

// WithCause wraps the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// WithStage records the pipeline stage that raised the error.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Unrecoverable marks the error as not recoverable by retry.
func (e *Error) Unrecoverable() *Error {
	e.Recoverable = false
	return e
}

// Validation creates a validation error.
func Validation(code, message string) *Error {
	return New(code, CategoryValidation, SeverityMedium, message)
}

// Template creates a template error.
func Template(code, message string) *Error {
	return New(code, CategoryTemplate, SeverityHigh, message)
}

// Filesystem creates a filesystem error.
func Filesystem(code, message string) *Error {
	return New(code, CategoryFilesystem, SeverityHigh, message)
}

// Network creates a network error.
func Network(code, message string) *Error {
	return New(code, CategoryNetwork, SeverityMedium, message)
}

// Dependency creates a dependency error.
func Dependency(code, message string) *Error {
	return New(code, CategoryDependency, SeverityMedium, message)
}

// System creates a system error.
func System(code, message string) *Error {
	return New(code, CategorySystem, SeverityHigh, message)
}

// Configuration creates a configuration error.
func Configuration(code, message string) *Error {
	return New(code, CategoryConfiguration, SeverityHigh, message)
}

// Rollback creates a rollback error. Rollback failures are always critical.
func Rollback(code, message string) *Error {
	return New(code, CategoryRollback, SeverityCritical, message)
}

// Security creates a security error.
func Security(code, message string) *Error {
	return New(code, CategorySecurity, SeverityCritical, message)
}

// WithSeverity overrides the constructor's default severity.
func (e *Error) WithSeverity(s Severity) *Error {
	e.Severity = s
	e.Recoverable = e.Recoverable && defaultRecoverable(e.Category, s)
	return e
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode reports whether err's chain contains an *Error with the code.
func HasCode(err error, code string) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

func defaultRecoverable(c Category, s Severity) bool {
	switch c {
	case CategoryRollback, CategorySystem, CategorySecurity:
		return false
	}
	return s != SeverityCritical
}
