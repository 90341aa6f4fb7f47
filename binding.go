package armature

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Azhovan/armature/internal/normalize"
	"github.com/Azhovan/armature/schema"
)

// structTag is the struct tag read by TraitsFromStruct and Instance.Decode.
const structTag = "trait"

// tagConfig holds parsed directives from a struct field's `trait` tag.
type tagConfig struct {
	name       string   // Trait name (first, unnamed element)
	aliases    []string // Alternative names (alias:a|b)
	defValue   string   // Default value (default:value)
	hasDefault bool     // Whether a default directive was present
	validate   string   // go-playground/validator tag (validate:min=1,max=9)
	doc        string   // Documentation (doc:text)
	skip       bool     // Field excluded ("-")
}

// parseTag parses a `trait` struct tag.
// Tag format: "name,alias:a|b,default:value,validate:min=1,max=9,doc:text"
// The name may be empty, in which case it is derived from the field name.
func parseTag(tag string) tagConfig {
	cfg := tagConfig{}
	if tag == "-" {
		cfg.skip = true
		return cfg
	}
	if tag == "" {
		return cfg
	}

	directives := splitDirectives(tag)
	for i, directive := range directives {
		directive = strings.TrimSpace(directive)
		parts := strings.SplitN(directive, ":", 2)
		if i == 0 && len(parts) == 1 {
			cfg.name = directive
			continue
		}
		if directive == "" {
			continue
		}

		name := strings.TrimSpace(parts[0])
		var value string
		if len(parts) > 1 {
			value = parts[1] // Don't trim value - empty strings may be intentional
		}

		switch name {
		case "alias":
			for _, a := range strings.Split(value, "|") {
				if a = strings.TrimSpace(a); a != "" {
					cfg.aliases = append(cfg.aliases, a)
				}
			}
		case "default":
			cfg.defValue = value
			cfg.hasDefault = true
		case "validate":
			cfg.validate = value
		case "doc":
			cfg.doc = value
		}
	}
	return cfg
}

// splitDirectives splits a tag string into individual directives. Commas
// inside validate and doc values belong to the value unless a known
// directive follows them.
func splitDirectives(tag string) []string {
	var directives []string
	var current strings.Builder
	greedy := false

	for i := 0; i < len(tag); i++ {
		ch := tag[i]
		if ch != ',' {
			current.WriteByte(ch)
			continue
		}
		if greedy && !startsWithDirective(tag[i+1:]) {
			current.WriteByte(ch)
			continue
		}
		directives = append(directives, current.String())
		current.Reset()
		greedy = startsWithGreedy(tag[i+1:])
	}
	directives = append(directives, current.String())
	return directives
}

// startsWithDirective checks if a string starts with a known directive name.
func startsWithDirective(s string) bool {
	s = strings.TrimSpace(s)
	for _, d := range []string{"alias:", "default:", "validate:", "doc:"} {
		if strings.HasPrefix(s, d) {
			return true
		}
	}
	return false
}

func startsWithGreedy(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "validate:") || strings.HasPrefix(s, "doc:")
}

// TraitsFromStruct declares one trait per exported field of T.
//
//	type Shape struct {
//	    Color string  `trait:"color,alias:hue,default:black,validate:oneof=black white red"`
//	    Size  float64 `trait:",default:1,validate:gt=0"`
//	}
func TraitsFromStruct[T any]() ([]Trait, error) {
	var zero T
	rt := reflect.TypeOf(zero)
	for rt != nil && rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, &DeclarationError{Subject: fmt.Sprintf("%v", rt), Reason: "not a struct"}
	}

	var traits []Trait
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := parseTag(field.Tag.Get(structTag))
		if tag.skip {
			continue
		}

		name := tag.name
		if name == "" {
			name = normalize.DeriveFieldPath(field.Name)
		}

		opts := []TraitOption{WithDoc(tag.doc)}
		if len(tag.aliases) > 0 {
			opts = append(opts, WithAliases(tag.aliases...))
		}
		if tag.hasDefault {
			opts = append(opts, WithDefault(tag.defValue))
		}
		if tag.validate != "" {
			v := schema.Tag(tag.validate)
			if err := v.(schema.Checker).Check(); err != nil {
				return nil, &DeclarationError{Subject: rt.Name() + "." + field.Name, Reason: err.Error()}
			}
			opts = append(opts, WithValidators(v))
		}
		traits = append(traits, Property(name, schemaTypeOf(field.Type), opts...))
	}
	return traits, nil
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// schemaTypeOf maps a Go field type to the schema type that coerces into it.
func schemaTypeOf(rt reflect.Type) schema.Type {
	switch rt {
	case durationType:
		return schema.Duration
	case timeType:
		return schema.Date(time.RFC3339)
	}
	switch rt.Kind() {
	case reflect.String:
		return schema.String
	case reflect.Bool:
		return schema.Bool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return schema.Int
	case reflect.Float32, reflect.Float64:
		return schema.Float
	case reflect.Slice, reflect.Array:
		return schema.List(schemaTypeOf(rt.Elem()))
	case reflect.Map:
		if rt.Key().Kind() == reflect.String {
			return schema.Map(schemaTypeOf(rt.Elem()))
		}
	}
	return schema.Any
}
