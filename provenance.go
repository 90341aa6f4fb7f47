package armature

import (
	"fmt"
	"strings"
)

// Origin identifies where a value came from. It is used for diagnostics only
// and never takes part in resolution.
type Origin struct {
	Source string // Source identifier (e.g., "file:gallery.yaml", "env:APP_SHAPE__COLOR")
	File   string // Path of the file, if any
	Line   int    // 1-based line, 0 if unknown
	Column int    // 1-based column, 0 if unknown
}

// String formats the origin as source[:line[:column]].
func (o Origin) String() string {
	if o.Source == "" && o.File == "" {
		return "<unknown>"
	}
	var b strings.Builder
	if o.Source != "" {
		b.WriteString(o.Source)
	} else {
		b.WriteString(o.File)
	}
	if o.Line > 0 {
		fmt.Fprintf(&b, ":%d", o.Line)
		if o.Column > 0 {
			fmt.Fprintf(&b, ":%d", o.Column)
		}
	}
	return b.String()
}

// IsZero reports whether the origin carries no information.
func (o Origin) IsZero() bool {
	return o == Origin{}
}

// DeclarationOrigin marks values that come from a trait declaration.
func DeclarationOrigin(typeName string) Origin {
	return Origin{Source: "declaration:" + typeName}
}

// ExplicitOrigin marks values assigned from code.
var ExplicitOrigin = Origin{Source: "explicit"}

// Provenance describes where every trait of a type or instance got its value.
type Provenance struct {
	Traits []TraitProvenance
}

// TraitProvenance describes where one trait's value came from.
type TraitProvenance struct {
	Trait     string   // Canonical trait name
	KeyPath   string   // Fully qualified key (e.g., "gallery.shape.color")
	Priority  Priority // Priority of the winning assignment
	Origin    Origin
	Inherited bool   // True when the value falls through to an ancestor
	Owner     string // Name of the type or instance holding the slot
}

// Lookup returns the provenance of trait, if present.
func (p *Provenance) Lookup(trait string) (TraitProvenance, bool) {
	if p == nil {
		return TraitProvenance{}, false
	}
	for _, tp := range p.Traits {
		if tp.Trait == trait {
			return tp, true
		}
	}
	return TraitProvenance{}, false
}
