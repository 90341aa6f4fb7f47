package schema

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/Azhovan/armature/internal/ctyconv"
)

// Type coerces raw input into a trait's declared type.
type Type interface {
	Name() string
	Coerce(v any) (any, error)
}

var errNull = errors.New("value is null")

// String accepts anything cty can turn into a string.
var String Type = ctyType{name: "str", ty: cty.String}

// Bool accepts booleans and the strings "true" and "false".
var Bool Type = ctyType{name: "bool", ty: cty.Bool}

// Float accepts numbers and numeric strings.
var Float Type = floatType{}

// Int accepts integral numbers and numeric strings.
var Int Type = intType{}

// Duration accepts time.Duration values and strings such as "1m30s".
var Duration Type = durationType{}

// Date accepts time.Time values and strings in layout, which defaults to
// time.DateOnly.
func Date(layout string) Type {
	if layout == "" {
		layout = time.DateOnly
	}
	return dateType{layout: layout}
}

// Any accepts every value unchanged.
var Any Type = anyType{}

type ctyType struct {
	name string
	ty   cty.Type
}

func (t ctyType) Name() string { return t.name }

func (t ctyType) Coerce(v any) (any, error) {
	cv, err := convertTo(v, t.ty)
	if err != nil {
		return nil, err
	}
	return ctyconv.FromValue(cv)
}

type intType struct{}

func (intType) Name() string { return "int" }

func (intType) Coerce(v any) (any, error) {
	cv, err := convertTo(v, cty.Number)
	if err != nil {
		return nil, err
	}
	bf := cv.AsBigFloat()
	if !bf.IsInt() {
		return nil, fmt.Errorf("%s is not an integer", bf.Text('g', -1))
	}
	i, acc := bf.Int64()
	if acc != big.Exact {
		return nil, fmt.Errorf("%s overflows int", bf.Text('g', -1))
	}
	return int(i), nil
}

type floatType struct{}

func (floatType) Name() string { return "float" }

func (floatType) Coerce(v any) (any, error) {
	cv, err := convertTo(v, cty.Number)
	if err != nil {
		return nil, err
	}
	f, _ := cv.AsBigFloat().Float64()
	return f, nil
}

type durationType struct{}

func (durationType) Name() string { return "duration" }

func (durationType) Coerce(v any) (any, error) {
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		return time.ParseDuration(strings.TrimSpace(d))
	case nil:
		return nil, errNull
	default:
		return nil, fmt.Errorf("cannot convert %T to duration", v)
	}
}

type dateType struct{ layout string }

func (dateType) Name() string { return "date" }

func (t dateType) Coerce(v any) (any, error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case string:
		return time.Parse(t.layout, strings.TrimSpace(d))
	case nil:
		return nil, errNull
	default:
		return nil, fmt.Errorf("cannot convert %T to date", v)
	}
}

type anyType struct{}

func (anyType) Name() string              { return "any" }
func (anyType) Coerce(v any) (any, error) { return v, nil }

// List accepts sequences, or a comma separated string, and coerces every
// element with elem.
func List(elem Type) Type {
	return listType{elem: elem}
}

type listType struct{ elem Type }

func (t listType) Name() string { return "list(" + t.elem.Name() + ")" }

func (t listType) Coerce(v any) (any, error) {
	var items []any
	switch x := v.(type) {
	case nil:
		return nil, errNull
	case string:
		if strings.TrimSpace(x) == "" {
			return []any{}, nil
		}
		for _, part := range strings.Split(x, ",") {
			items = append(items, strings.TrimSpace(part))
		}
	case []any:
		items = x
	case []string:
		for _, s := range x {
			items = append(items, s)
		}
	default:
		cv, err := ctyconv.ToValue(v)
		if err != nil {
			return nil, err
		}
		if !cv.Type().IsListType() && !cv.Type().IsTupleType() && !cv.Type().IsSetType() {
			return nil, fmt.Errorf("cannot convert %T to a list", v)
		}
		native, err := ctyconv.FromValue(cv)
		if err != nil {
			return nil, err
		}
		items, _ = native.([]any)
	}

	out := make([]any, len(items))
	for i, item := range items {
		c, err := t.elem.Coerce(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

// Map accepts string-keyed maps and coerces every value with elem.
func Map(elem Type) Type {
	return mapType{elem: elem}
}

type mapType struct{ elem Type }

func (t mapType) Name() string { return "map(" + t.elem.Name() + ")" }

func (t mapType) Coerce(v any) (any, error) {
	var in map[string]any
	switch x := v.(type) {
	case nil:
		return nil, errNull
	case map[string]any:
		in = x
	case map[string]string:
		in = make(map[string]any, len(x))
		for k, s := range x {
			in[k] = s
		}
	default:
		return nil, fmt.Errorf("cannot convert %T to a map", v)
	}

	out := make(map[string]any, len(in))
	for _, k := range ctyconv.SortedKeys(in) {
		c, err := t.elem.Coerce(in[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = c
	}
	return out, nil
}

func convertTo(v any, ty cty.Type) (cty.Value, error) {
	if v == nil {
		return cty.NilVal, errNull
	}
	if s, ok := v.(string); ok && ty != cty.String {
		v = strings.TrimSpace(s)
	}
	cv, err := ctyconv.ToValue(v)
	if err != nil {
		return cty.NilVal, err
	}
	out, err := convert.Convert(cv, ty)
	if err != nil {
		return cty.NilVal, err
	}
	if out.IsNull() {
		return cty.NilVal, errNull
	}
	return out, nil
}
