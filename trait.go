package armature

import (
	"slices"

	"github.com/Azhovan/armature/calc"
	"github.com/Azhovan/armature/schema"
)

// Trait declares one configurable attribute of a component type.
// Traits are copied when a type is built, so later changes to the value
// passed to NewType have no effect.
type Trait struct {
	Name       string
	Aliases    []string
	Default    any
	HasDefault bool
	Type       schema.Type
	Converters []schema.Converter
	Validators []schema.Validator
	Doc        string
}

// TraitOption configures a Trait built with Property.
type TraitOption func(*Trait)

// Property declares a trait of the given type. A trait without a default is
// required: it stays unresolved until configuration supplies a value.
func Property(name string, typ schema.Type, opts ...TraitOption) Trait {
	t := Trait{Name: name, Type: typ}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// WithDefault sets the declaration default. Strings containing "${" are
// templates evaluated against the other configured names.
func WithDefault(v any) TraitOption {
	return func(t *Trait) {
		t.Default = v
		t.HasDefault = true
	}
}

// WithAliases adds alternative names for the trait.
func WithAliases(aliases ...string) TraitOption {
	return func(t *Trait) {
		t.Aliases = append(t.Aliases, aliases...)
	}
}

// WithDoc attaches documentation.
func WithDoc(doc string) TraitOption {
	return func(t *Trait) {
		t.Doc = doc
	}
}

// WithConverters appends converters, run in order after type coercion.
func WithConverters(convs ...schema.Converter) TraitOption {
	return func(t *Trait) {
		t.Converters = append(t.Converters, convs...)
	}
}

// WithValidators appends validators, run in order after the converters.
func WithValidators(vals ...schema.Validator) TraitOption {
	return func(t *Trait) {
		t.Validators = append(t.Validators, vals...)
	}
}

// Names returns the canonical name followed by the aliases.
func (t Trait) Names() []string {
	return append([]string{t.Name}, t.Aliases...)
}

// Process coerces, converts and validates v as a value of this trait.
func (t Trait) Process(v any) (any, error) {
	return t.pipeline(t.Name).Process(v)
}

func (t Trait) pipeline(qualified string) schema.Pipeline {
	return schema.Pipeline{
		Trait:      qualified,
		Type:       t.Type,
		Converters: t.Converters,
		Validators: t.Validators,
	}
}

func (t Trait) processor(qualified string) calc.Processor {
	return t.pipeline(qualified).Process
}

func (t Trait) clone() Trait {
	t.Aliases = slices.Clone(t.Aliases)
	t.Converters = slices.Clone(t.Converters)
	t.Validators = slices.Clone(t.Validators)
	return t
}

// typeName returns the declared schema type name, or "any".
func (t Trait) typeName() string {
	if t.Type == nil {
		return schema.Any.Name()
	}
	return t.Type.Name()
}
