package armature

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Describer is a type or instance whose traits can be dumped.
type Describer interface {
	Reader
	Provenance() *Provenance
}

// DumpOption configures dump behavior using the functional options pattern.
type DumpOption func(*dumpConfig)

type dumpConfig struct {
	withSources bool   // Include origin and priority for each trait
	asJSON      bool   // Output as JSON instead of text format
	indent      string // Indentation for JSON output (default: "  ")
}

// WithSources includes the origin and priority of each trait in the output.
func WithSources() DumpOption {
	return func(cfg *dumpConfig) {
		cfg.withSources = true
	}
}

// AsJSON outputs the traits as JSON instead of text format.
func AsJSON() DumpOption {
	return func(cfg *dumpConfig) {
		cfg.asJSON = true
	}
}

// WithIndent sets the indentation for JSON output.
// Default is two spaces ("  ").
func WithIndent(indent string) DumpOption {
	return func(cfg *dumpConfig) {
		cfg.indent = indent
	}
}

// traitData holds one evaluated trait.
type traitData struct {
	keyPath  string
	trait    string
	value    any
	err      error
	origin   Origin
	priority Priority
}

// DumpEffective writes the effective value of every trait of d. Traits that
// fail to evaluate are shown with their error instead of aborting the dump.
func DumpEffective(w io.Writer, d Describer, opts ...DumpOption) error {
	if d == nil {
		return fmt.Errorf("armature: nothing to dump")
	}
	config := dumpConfig{indent: "  "}
	for _, opt := range opts {
		opt(&config)
	}

	traits := collectTraits(d)
	if config.asJSON {
		return dumpAsJSON(w, traits, config)
	}
	return dumpAsText(w, traits, config)
}

func collectTraits(d Describer) []traitData {
	prov := d.Provenance()
	out := make([]traitData, 0, len(prov.Traits))
	for _, tp := range prov.Traits {
		v, err := d.Get(tp.Trait)
		out = append(out, traitData{
			keyPath:  tp.KeyPath,
			trait:    tp.Trait,
			value:    v,
			err:      err,
			origin:   tp.Origin,
			priority: tp.Priority,
		})
	}
	return out
}

func dumpAsText(w io.Writer, traits []traitData, config dumpConfig) error {
	for _, td := range traits {
		line := fmt.Sprintf("%s: %s", td.keyPath, formatValueAsString(td))
		if config.withSources {
			line += fmt.Sprintf(" (source: %s, priority: %s)", td.origin, td.priority)
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return fmt.Errorf("write error: %w", err)
		}
	}
	return nil
}

func dumpAsJSON(w io.Writer, traits []traitData, config dumpConfig) error {
	result := make(map[string]any, len(traits))
	for _, td := range traits {
		v := formatValueForJSON(td)
		if config.withSources {
			v = map[string]any{
				"value":    v,
				"source":   td.origin.String(),
				"priority": td.priority.String(),
			}
		}
		result[td.trait] = v
	}

	var (
		data []byte
		err  error
	)
	if config.indent != "" {
		data, err = json.MarshalIndent(result, "", config.indent)
	} else {
		data, err = json.Marshal(result)
	}
	if err != nil {
		return fmt.Errorf("json marshal error: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	return nil
}

func formatValueForJSON(td traitData) any {
	if td.err != nil {
		return map[string]any{"error": td.err.Error()}
	}
	switch v := td.value.(type) {
	case time.Duration:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return v
	}
}

func formatValueAsString(td traitData) string {
	if td.err != nil {
		return fmt.Sprintf("<error: %v>", td.err)
	}
	switch v := td.value.(type) {
	case nil:
		return "<nil>"
	case string:
		return fmt.Sprintf("%q", v)
	case time.Duration:
		return v.String()
	case []string:
		return fmt.Sprintf("[%s]", strings.Join(v, ", "))
	default:
		return fmt.Sprintf("%v", v)
	}
}
