package normalize

import (
	"reflect"
	"testing"
)

func TestToLowerDotPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "double underscore to dot", input: "GALLERY__SHAPE", expected: "gallery.shape"},
		{name: "single underscore preserved", input: "LINE_WIDTH", expected: "line_width"},
		{name: "mixed separators", input: "GALLERY__SHAPE__LINE_WIDTH", expected: "gallery.shape.line_width"},
		{name: "already lowercase", input: "simple", expected: "simple"},
		{name: "empty string", input: "", expected: ""},
		{name: "only underscores", input: "____", expected: ".."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToLowerDotPath(tt.input)
			if result != tt.expected {
				t.Errorf("ToLowerDotPath(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDeriveFieldPath(t *testing.T) {
	tests := []struct {
		fieldName string
		expected  string
	}{
		{fieldName: "Color", expected: "color"},
		{fieldName: "P", expected: "p"},
		{fieldName: "APIKey", expected: "aPIKey"},
		{fieldName: "lineWidth", expected: "lineWidth"},
		{fieldName: "", expected: ""},
	}

	for _, tt := range tests {
		if got := DeriveFieldPath(tt.fieldName); got != tt.expected {
			t.Errorf("DeriveFieldPath(%q) = %q, want %q", tt.fieldName, got, tt.expected)
		}
	}
}

func TestSplitAndJoin(t *testing.T) {
	tests := []struct {
		key      string
		expected []string
	}{
		{key: "gallery.shape.color", expected: []string{"gallery", "shape", "color"}},
		{key: "color", expected: []string{"color"}},
		{key: "a..b", expected: []string{"a", "b"}},
		{key: " a . b ", expected: []string{"a", "b"}},
		{key: "", expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := Split(tt.key)
			if len(got) == 0 && len(tt.expected) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Split(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}

	if got := Join([]string{"gallery", "shape", "color"}); got != "gallery.shape.color" {
		t.Errorf("Join = %q", got)
	}
}

func TestSplitTrait(t *testing.T) {
	tests := []struct {
		key    string
		prefix string
		trait  string
	}{
		{key: "gallery.shape.color", prefix: "gallery.shape", trait: "color"},
		{key: "c.p1", prefix: "c", trait: "p1"},
		{key: "color", prefix: "", trait: "color"},
	}

	for _, tt := range tests {
		prefix, trait := SplitTrait(tt.key)
		if prefix != tt.prefix || trait != tt.trait {
			t.Errorf("SplitTrait(%q) = (%q, %q), want (%q, %q)", tt.key, prefix, trait, tt.prefix, tt.trait)
		}
	}
}

func TestApplyPrefix(t *testing.T) {
	tests := []struct {
		prefix   string
		key      string
		expected string
	}{
		{prefix: "gallery.shape", key: "color", expected: "gallery.shape.color"},
		{prefix: "", key: "color", expected: "color"},
		{prefix: "gallery", key: "", expected: "gallery"},
		{prefix: "", key: "", expected: ""},
	}

	for _, tt := range tests {
		if got := ApplyPrefix(tt.prefix, tt.key); got != tt.expected {
			t.Errorf("ApplyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.expected)
		}
	}
}

func TestHasPrefix(t *testing.T) {
	if !HasPrefix("gallery.shape.color", "gallery.shape") {
		t.Error("expected level-boundary prefix to match")
	}
	if HasPrefix("gallery.shapes.color", "gallery.shape") {
		t.Error("expected partial level not to match")
	}
	if !HasPrefix("anything", "") {
		t.Error("empty prefix matches everything")
	}
}
