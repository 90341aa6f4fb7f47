package normalize

import (
	"strings"
	"unicode"
)

// Separator separates the levels of a key path ("gallery.shape.color").
const Separator = "."

// ToLowerDotPath normalizes an environment-style key to a lowercase dot-separated path.
// Double underscores (__) are treated as level separators and converted to dots.
// Single underscores within a level are preserved.
// Examples:
//   - "FOO__BAR" → "foo.bar"
//   - "DB_MAX_CONNECTIONS" → "db_max_connections"
//   - "GALLERY__SHAPE__COLOR" → "gallery.shape.color"
func ToLowerDotPath(key string) string {
	normalized := strings.ReplaceAll(key, "__", Separator)
	return strings.ToLower(normalized)
}

// DeriveFieldPath derives a trait name from a struct field name.
// It lowercases the first letter of the field name.
// Examples:
//   - "Color" → "color"
//   - "APIKey" → "aPIKey"
func DeriveFieldPath(fieldName string) string {
	if fieldName == "" {
		return ""
	}

	runes := []rune(fieldName)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

// Split breaks a dotted key into its levels, dropping empty levels.
//   - "gallery.shape.color" → ["gallery", "shape", "color"]
//   - "a..b" → ["a", "b"]
func Split(key string) []string {
	parts := strings.Split(key, Separator)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Join is the inverse of Split.
func Join(levels []string) string {
	return strings.Join(levels, Separator)
}

// SplitTrait separates the trait name (last level) from the owner prefix.
// A key with a single level has an empty prefix.
//   - "gallery.shape.color" → ("gallery.shape", "color")
//   - "color" → ("", "color")
func SplitTrait(key string) (prefix, trait string) {
	i := strings.LastIndex(key, Separator)
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}

// ApplyPrefix combines a prefix with a key to create a nested key path.
// Examples:
//   - ApplyPrefix("gallery.shape", "color") → "gallery.shape.color"
//   - ApplyPrefix("", "color") → "color"
func ApplyPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	if key == "" {
		return prefix
	}
	return prefix + Separator + key
}

// HasPrefix reports whether key lives under prefix at a level boundary.
//   - HasPrefix("gallery.shape.color", "gallery.shape") → true
//   - HasPrefix("gallery.shapes.color", "gallery.shape") → false
func HasPrefix(key, prefix string) bool {
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(key, prefix+Separator)
}
