package calc

import (
	"fmt"
	"math"
	"strconv"
)

// Sum adds numeric operands.
func Sum(args []any) (any, error) {
	return fold(args, 0, func(acc, x float64) float64 { return acc + x })
}

// Product multiplies numeric operands.
func Product(args []any) (any, error) {
	return fold(args, 1, func(acc, x float64) float64 { return acc * x })
}

// Min returns the smallest numeric operand.
func Min(args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("min of no operands")
	}
	return fold(args, math.Inf(1), math.Min)
}

// Max returns the largest numeric operand.
func Max(args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("max of no operands")
	}
	return fold(args, math.Inf(-1), math.Max)
}

// fold combines operands as float64; the result is an int when every operand
// was integral.
func fold(args []any, seed float64, op func(acc, x float64) float64) (any, error) {
	acc := seed
	integral := true
	for i, a := range args {
		x, isInt, err := number(a)
		if err != nil {
			return nil, fmt.Errorf("operand %d: %w", i, err)
		}
		integral = integral && isInt
		acc = op(acc, x)
	}
	if integral && acc == math.Trunc(acc) && !math.IsInf(acc, 0) {
		return int(acc), nil
	}
	return acc, nil
}

func number(v any) (float64, bool, error) {
	switch x := v.(type) {
	case int:
		return float64(x), true, nil
	case int32:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case uint:
		return float64(x), true, nil
	case uint64:
		return float64(x), true, nil
	case float32:
		return float64(x), false, nil
	case float64:
		return x, false, nil
	case string:
		if i, err := strconv.ParseInt(x, 10, 64); err == nil {
			return float64(i), true, nil
		}
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%q is not a number", x)
		}
		return f, false, nil
	default:
		return 0, false, fmt.Errorf("%v (%T) is not a number", v, v)
	}
}
