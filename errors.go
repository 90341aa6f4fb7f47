package armature

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Azhovan/armature/calc"
	"github.com/Azhovan/armature/schema"
)

// Error codes for validation failures.
const (
	ErrCodeUnresolved = "unresolved"
	ErrCodeCycle      = "cycle"
	ErrCodeCasting    = "casting"
	ErrCodeConstraint = "constraint"
	ErrCodeUnknownKey = "unknown_key"
)

// Evaluation errors surface from the value graph and the schema layer
// unchanged; these aliases name them at the package boundary.
type (
	UnresolvedReferenceError = calc.UnresolvedError
	CyclicDependencyError    = calc.CycleError
	CastingError             = schema.CastingError
)

// ErrInconsistentInventory reports an alias table entry that points at a
// trait nobody declares. It is a framework bug, not a configuration mistake.
var ErrInconsistentInventory = errors.New("armature: inconsistent inventory")

// ErrNotFound is returned when a trait name or alias is unknown.
var ErrNotFound = errors.New("armature: no such trait")

// ValidationError aggregates trait-level failures.
type ValidationError struct {
	FieldErrors []FieldError
}

// Error formats validation errors as a multi-line message.
func (e *ValidationError) Error() string {
	if len(e.FieldErrors) == 0 {
		return "validation failed: no errors"
	}

	var b strings.Builder
	if len(e.FieldErrors) == 1 {
		b.WriteString("validation failed: 1 error\n")
	} else {
		fmt.Fprintf(&b, "validation failed: %d errors\n", len(e.FieldErrors))
	}

	for _, fe := range e.FieldErrors {
		fmt.Fprintf(&b, "  - %s: %s (%s)\n", fe.FieldPath, fe.Code, fe.Message)
	}

	return strings.TrimRight(b.String(), "\n")
}

// Unwrap exposes the underlying errors to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error {
	var errs []error
	for _, fe := range e.FieldErrors {
		if fe.Err != nil {
			errs = append(errs, fe.Err)
		}
	}
	return errs
}

// FieldError represents a single trait failure.
type FieldError struct {
	FieldPath string // Dot notation (e.g., "gallery.shape.color")
	Code      string // Error code (e.g., "cycle", "casting")
	Message   string // Human-readable description
	Err       error  // Underlying error, if any
}

// fieldError classifies err under path.
func fieldError(path string, err error) FieldError {
	fe := FieldError{FieldPath: path, Message: err.Error(), Err: err}

	var (
		ue *calc.UnresolvedError
		ce *calc.CycleError
		ca *schema.CastingError
		cv *ConstraintViolationError
	)
	switch {
	case errors.As(err, &ce):
		fe.Code = ErrCodeCycle
	case errors.As(err, &ue):
		fe.Code = ErrCodeUnresolved
	case errors.As(err, &ca):
		fe.Code = ErrCodeCasting
		if ca.Code == schema.CodeConstraint {
			fe.Code = ErrCodeConstraint
		}
	case errors.As(err, &cv):
		fe.Code = ErrCodeConstraint
	default:
		fe.Code = ErrCodeConstraint
	}
	return fe
}

// collect appends one FieldError per error joined inside err.
func collect(dst []FieldError, path string, err error) []FieldError {
	if err == nil {
		return dst
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		if _, isValidation := err.(*ValidationError); !isValidation {
			for _, e := range joined.Unwrap() {
				dst = collect(dst, path, e)
			}
			return dst
		}
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return append(dst, ve.FieldErrors...)
	}
	return append(dst, fieldError(path, err))
}

// ConstraintViolationError reports a cross-trait or protocol conformance
// check that failed after the individual traits validated.
type ConstraintViolationError struct {
	Subject    string // Type, instance or protocol being checked
	Constraint string
	Err        error
}

func (e *ConstraintViolationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s violates %s: %v", e.Subject, e.Constraint, e.Err)
	}
	return fmt.Sprintf("%s violates %s", e.Subject, e.Constraint)
}

func (e *ConstraintViolationError) Unwrap() error { return e.Err }

// DuplicateAliasError reports two traits of one type claiming the same name.
type DuplicateAliasError struct {
	Type   string
	Alias  string
	First  string // Trait that claimed the alias first
	Second string
}

func (e *DuplicateAliasError) Error() string {
	return fmt.Sprintf("armature: type %q: alias %q claimed by both %q and %q", e.Type, e.Alias, e.First, e.Second)
}

// DeclarationError reports a malformed type, trait or protocol declaration.
type DeclarationError struct {
	Subject string
	Reason  string
}

func (e *DeclarationError) Error() string {
	return fmt.Sprintf("armature: invalid declaration of %q: %s", e.Subject, e.Reason)
}

// ReentrantRegistrationError is returned when an observer tries to register
// something while the registrar is notifying.
type ReentrantRegistrationError struct {
	Subject string
}

func (e *ReentrantRegistrationError) Error() string {
	return fmt.Sprintf("armature: registration of %q attempted during observer notification", e.Subject)
}

// LifecycleError reports a transition that skips or re-enters a phase.
type LifecycleError struct {
	Subject string
	From    Phase
	To      Phase
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("armature: %s cannot move from %s to %s", e.Subject, e.From, e.To)
}

// UnusedConfigurationError lists configuration keys no trait ever claimed.
type UnusedConfigurationError struct {
	Keys []string
}

func (e *UnusedConfigurationError) Error() string {
	return fmt.Sprintf("armature: unused configuration: %s", strings.Join(e.Keys, ", "))
}
