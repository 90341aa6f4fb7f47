package schema

import "fmt"

// Failure codes carried by CastingError.
const (
	CodeCasting    = "casting"
	CodeConstraint = "constraint"
)

// CastingError reports a value that failed conversion or validation.
type CastingError struct {
	Trait      string // Trait being processed (e.g. "gallery.shape.color")
	Value      any    // Offending value as received
	Constraint string // Type or validator that rejected it (e.g. "int", "min=1")
	Code       string // CodeCasting or CodeConstraint
	Err        error
}

func (e *CastingError) Error() string {
	return fmt.Sprintf("%s: value %#v rejected by %s: %v", e.Trait, e.Value, e.Constraint, e.Err)
}

func (e *CastingError) Unwrap() error { return e.Err }
