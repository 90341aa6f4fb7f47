package ctyconv

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestRoundTripNatives(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{name: "string", in: "black", want: "black"},
		{name: "bool", in: true, want: true},
		{name: "int", in: 42, want: 42},
		{name: "int64 folds to int", in: int64(7), want: 7},
		{name: "float", in: 2.5, want: 2.5},
		{name: "integral float folds to int", in: 3.0, want: 3},
		{name: "nil", in: nil, want: nil},
		{name: "tuple", in: []any{"a", 1}, want: []any{"a", 1}},
		{name: "strings", in: []string{"x", "y"}, want: []any{"x", "y"}},
		{name: "object", in: map[string]any{"r": 1, "name": "c"}, want: map[string]any{"r": 1, "name": "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ToValue(tt.in)
			require.NoError(t, err)
			got, err := FromValue(v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToValue_RejectsNonFinite(t *testing.T) {
	for _, in := range []any{math.NaN(), math.Inf(1), math.Inf(-1), float32(math.NaN()), []float64{1, math.NaN()}} {
		_, err := ToValue(in)
		assert.Error(t, err, "%v", in)
	}
}

func TestToValue_Time(t *testing.T) {
	at := time.Date(2014, 3, 1, 12, 0, 0, 0, time.UTC)
	v, err := ToValue(at)
	require.NoError(t, err)
	assert.Equal(t, "2014-03-01T12:00:00Z", v.AsString())
}

func TestFromValue_Unknown(t *testing.T) {
	got, err := FromValue(cty.UnknownVal(cty.String))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 1, "a": 2, "b": 3}))
}
