package armature

import (
	"fmt"
	"slices"
)

// Protocol is a capability contract: a set of traits a component type must
// declare, plus the requirements of its parent protocols.
type Protocol struct {
	name     string
	parents  []*Protocol
	pedigree []*Protocol
	requires []Trait
	doc      string
}

// ProtocolOption configures a Protocol.
type ProtocolOption func(*protocolConfig)

type protocolConfig struct {
	parents  []*Protocol
	requires []Trait
	doc      string
}

// Refines declares the parent protocols.
func Refines(parents ...*Protocol) ProtocolOption {
	return func(c *protocolConfig) {
		c.parents = append(c.parents, parents...)
	}
}

// Requires lists traits an implementer must declare. A requirement with a
// Type also pins the schema type of the implementer's trait.
func Requires(traits ...Trait) ProtocolOption {
	return func(c *protocolConfig) {
		c.requires = append(c.requires, traits...)
	}
}

// ProtocolDoc attaches documentation.
func ProtocolDoc(doc string) ProtocolOption {
	return func(c *protocolConfig) {
		c.doc = doc
	}
}

// NewProtocol builds a protocol and linearizes its pedigree.
func NewProtocol(name string, opts ...ProtocolOption) (*Protocol, error) {
	if name == "" {
		return nil, &DeclarationError{Subject: "protocol", Reason: "empty name"}
	}
	var cfg protocolConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Protocol{name: name, parents: cfg.parents, doc: cfg.doc}
	for _, r := range cfg.requires {
		if r.Name == "" {
			return nil, &DeclarationError{Subject: name, Reason: "requirement with empty trait name"}
		}
		p.requires = append(p.requires, r.clone())
	}

	pedigree, ok := linearize(p, cfg.parents, func(q *Protocol) []*Protocol { return q.pedigree })
	if !ok {
		return nil, &DeclarationError{Subject: name, Reason: "inconsistent protocol hierarchy"}
	}
	p.pedigree = pedigree
	return p, nil
}

// MustProtocol is like NewProtocol but panics on error.
func MustProtocol(name string, opts ...ProtocolOption) *Protocol {
	p, err := NewProtocol(name, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Protocol) Name() string { return p.name }
func (p *Protocol) Doc() string  { return p.doc }

// Parents returns the directly refined protocols.
func (p *Protocol) Parents() []*Protocol { return slices.Clone(p.parents) }

// Pedigree returns the protocol followed by its ancestors, nearest first.
func (p *Protocol) Pedigree() []*Protocol { return slices.Clone(p.pedigree) }

// Requirements returns every trait required by the protocol and its
// ancestors, nearest declaration first.
func (p *Protocol) Requirements() []Trait {
	var out []Trait
	seen := make(map[string]struct{})
	for _, q := range p.pedigree {
		for _, r := range q.requires {
			if _, ok := seen[r.Name]; ok {
				continue
			}
			seen[r.Name] = struct{}{}
			out = append(out, r.clone())
		}
	}
	return out
}

// Includes reports whether q is p or one of its ancestors.
func (p *Protocol) Includes(q *Protocol) bool {
	return slices.Contains(p.pedigree, q)
}

// conformance checks that t declares every required trait with a
// compatible type.
func (p *Protocol) conformance(t *ComponentType) []error {
	var errs []error
	for _, r := range p.Requirements() {
		tr, ok := t.Trait(r.Name)
		if !ok {
			errs = append(errs, &ConstraintViolationError{
				Subject:    t.name,
				Constraint: fmt.Sprintf("protocol %s", p.name),
				Err:        fmt.Errorf("missing required trait %q", r.Name),
			})
			continue
		}
		if r.Type != nil && tr.typeName() != r.Type.Name() {
			errs = append(errs, &ConstraintViolationError{
				Subject:    t.name,
				Constraint: fmt.Sprintf("protocol %s", p.name),
				Err:        fmt.Errorf("trait %q is %s, protocol requires %s", r.Name, tr.typeName(), r.Type.Name()),
			})
		}
	}
	return errs
}

func (p *Protocol) String() string { return "protocol " + p.name }
