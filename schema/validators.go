package schema

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator checks a coerced value.
type Validator interface {
	// Constraint describes the rule for diagnostics (e.g. "min=1").
	Constraint() string
	Validate(v any) error
}

// Checker is implemented by validators whose own definition can be
// malformed. Check reports such a definition before any value is seen.
type Checker interface {
	Check() error
}

// Converter reshapes a coerced value. Converters run in declaration order
// after the type coercion and before the validators.
type Converter func(v any) (any, error)

var validate = validator.New()

// Tag validates with go-playground/validator tag syntax ("min=1,max=9",
// "oneof=red green", "hostname"). Unknown tags are reported by Check.
func Tag(tag string) Validator {
	return tagValidator{tag: tag}
}

type tagValidator struct{ tag string }

func (t tagValidator) Constraint() string { return t.tag }

// Check parses the tag against a nil value, which every known validation
// function tolerates.
func (t tagValidator) Check() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid validation tag %q: %v", t.tag, r)
		}
	}()
	_ = validate.Var(nil, t.tag)
	return nil
}

// Validate never panics: validator panics on tags that do not fit the
// value's kind (e.g. "len" on a bool), which is reported as a failure.
func (t tagValidator) Validate(v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tag %q does not apply: %v", t.tag, r)
		}
	}()
	if err := validate.Var(v, t.tag); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Param() != "" {
				return fmt.Errorf("failed %q (%s)", fe.Tag(), fe.Param())
			}
			return fmt.Errorf("failed %q", fe.Tag())
		}
		return err
	}
	return nil
}

// OneOf accepts only the listed values.
func OneOf(values ...any) Validator {
	return oneOf{values: values}
}

type oneOf struct{ values []any }

func (o oneOf) Constraint() string {
	parts := make([]string, len(o.values))
	for i, v := range o.values {
		parts[i] = fmt.Sprint(v)
	}
	return "oneof=" + strings.Join(parts, "|")
}

func (o oneOf) Validate(v any) error {
	for _, allowed := range o.values {
		if reflect.DeepEqual(v, allowed) {
			return nil
		}
	}
	return fmt.Errorf("not one of %v", o.values)
}

// Func wraps a predicate under a named constraint.
func Func(constraint string, fn func(v any) error) Validator {
	return funcValidator{constraint: constraint, fn: fn}
}

type funcValidator struct {
	constraint string
	fn         func(v any) error
}

func (f funcValidator) Constraint() string   { return f.constraint }
func (f funcValidator) Validate(v any) error { return f.fn(v) }

// Lower lowercases string values.
func Lower(v any) (any, error) {
	if s, ok := v.(string); ok {
		return strings.ToLower(s), nil
	}
	return v, nil
}

// TrimSpace trims surrounding whitespace from string values.
func TrimSpace(v any) (any, error) {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s), nil
	}
	return v, nil
}

// Pipeline is the full processing chain of one trait.
type Pipeline struct {
	Trait      string
	Type       Type
	Converters []Converter
	Validators []Validator
}

// Process coerces v, applies the converters in order, then runs every
// validator in order.
func (p Pipeline) Process(v any) (any, error) {
	typ := p.Type
	if typ == nil {
		typ = Any
	}

	out, err := typ.Coerce(v)
	if err != nil {
		return nil, &CastingError{Trait: p.Trait, Value: v, Constraint: typ.Name(), Code: CodeCasting, Err: err}
	}

	for i, conv := range p.Converters {
		out, err = conv(out)
		if err != nil {
			return nil, &CastingError{Trait: p.Trait, Value: v, Constraint: fmt.Sprintf("converter #%d", i), Code: CodeCasting, Err: err}
		}
	}

	for _, val := range p.Validators {
		if err := val.Validate(out); err != nil {
			return nil, &CastingError{Trait: p.Trait, Value: v, Constraint: val.Constraint(), Code: CodeConstraint, Err: err}
		}
	}
	return out, nil
}
