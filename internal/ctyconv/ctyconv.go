// Package ctyconv converts between native Go values and cty values.
package ctyconv

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// floatValue rejects NaN and the infinities: cty numbers are finite and
// big.Float panics on NaN.
func floatValue(f float64) (cty.Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return cty.NilVal, fmt.Errorf("number %v is not finite", f)
	}
	return cty.NumberFloatVal(f), nil
}

// ToValue converts a native Go value into a cty.Value.
// Maps with string keys become objects, slices become tuples.
func ToValue(v any) (cty.Value, error) {
	switch x := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		return x, nil
	case string:
		return cty.StringVal(x), nil
	case bool:
		return cty.BoolVal(x), nil
	case int:
		return cty.NumberIntVal(int64(x)), nil
	case int8:
		return cty.NumberIntVal(int64(x)), nil
	case int16:
		return cty.NumberIntVal(int64(x)), nil
	case int32:
		return cty.NumberIntVal(int64(x)), nil
	case int64:
		return cty.NumberIntVal(x), nil
	case uint:
		return cty.NumberUIntVal(uint64(x)), nil
	case uint32:
		return cty.NumberUIntVal(uint64(x)), nil
	case uint64:
		return cty.NumberUIntVal(x), nil
	case float32:
		return floatValue(float64(x))
	case float64:
		return floatValue(x)
	case time.Time:
		return cty.StringVal(x.Format(time.RFC3339)), nil
	case time.Duration:
		return cty.StringVal(x.String()), nil
	case []any:
		if len(x) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(x))
		for i, e := range x {
			ev, err := ToValue(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("index %d: %w", i, err)
			}
			elems[i] = ev
		}
		return cty.TupleVal(elems), nil
	case []string:
		if len(x) == 0 {
			return cty.ListValEmpty(cty.String), nil
		}
		elems := make([]cty.Value, len(x))
		for i, e := range x {
			elems[i] = cty.StringVal(e)
		}
		return cty.ListVal(elems), nil
	case map[string]any:
		if len(x) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(x))
		for k, e := range x {
			ev, err := ToValue(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("key %q: %w", k, err)
			}
			attrs[k] = ev
		}
		return cty.ObjectVal(attrs), nil
	case map[string]string:
		if len(x) == 0 {
			return cty.MapValEmpty(cty.String), nil
		}
		attrs := make(map[string]cty.Value, len(x))
		for k, e := range x {
			attrs[k] = cty.StringVal(e)
		}
		return cty.MapVal(attrs), nil
	}

	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unable to infer cty type for %T: %w", v, err)
	}
	return reflectValue(v, ty)
}

// reflectValue runs gocty, which panics on a NaN nested in a float slice
// or struct.
func reflectValue(v any, ty cty.Type) (out cty.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = cty.NilVal, fmt.Errorf("convert %T: %v", v, r)
		}
	}()
	return gocty.ToCtyValue(v, ty)
}

// FromValue converts a cty.Value into its most natural Go counterpart.
// Integral numbers come back as int, others as float64.
func FromValue(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	v, _ = v.Unmark()

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return int(i), nil
			}
		}
		f, _ := bf.Float64()
		return f, nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, ev := it.Element()
			nv, err := FromValue(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, nv)
		}
		return out, nil

	case ty.IsMapType() || ty.IsObjectType():
		out := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			k, ev := it.Element()
			nv, err := FromValue(ev)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", k.AsString(), err)
			}
			out[k.AsString()] = nv
		}
		return out, nil
	}

	return nil, fmt.Errorf("unsupported cty type %s", ty.FriendlyName())
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
