package armature

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Azhovan/armature/calc"
	"github.com/Azhovan/armature/internal/normalize"
	"github.com/Azhovan/armature/schema"
)

// Reader gives read access to the traits of a type or instance.
type Reader interface {
	Name() string
	Get(name string) (any, error)
}

// Constraint is a cross-trait check run when a type or instance validates.
type Constraint struct {
	Name  string
	Check func(r Reader) error
}

// Hook runs on the initialize and finalize transitions.
type Hook func(ctx context.Context, r Reader) error

// ComponentType is a declared kind of component: its traits with their
// class-level slots, its ancestors and the protocols it implements.
type ComponentType struct {
	name     string
	family   string
	doc      string
	parents  []*ComponentType
	children []*ComponentType
	pedigree []*ComponentType
	declared []*Protocol

	own    []Trait        // traits declared by this type
	traits []Trait        // effective traits, ancestors first
	index  map[string]int // canonical name -> position in traits

	inv         inventory
	constraints []Constraint
	onInit      []Hook
	onFinalize  []Hook

	life    lifecycle
	model   *calc.Model // set on registration
	retired []*calc.Node
}

// TypeOption configures a ComponentType.
type TypeOption func(*typeConfig)

type typeConfig struct {
	family      string
	doc         string
	parents     []*ComponentType
	protocols   []*Protocol
	traits      []Trait
	constraints []Constraint
	onInit      []Hook
	onFinalize  []Hook
}

// Family sets the dotted configuration key of the type ("gallery.shape").
// Defaults to the lowercased type name.
func Family(family string) TypeOption {
	return func(c *typeConfig) {
		c.family = family
	}
}

// Extends declares the parent types, nearest first.
func Extends(parents ...*ComponentType) TypeOption {
	return func(c *typeConfig) {
		c.parents = append(c.parents, parents...)
	}
}

// Implements declares the protocols the type satisfies.
func Implements(protocols ...*Protocol) TypeOption {
	return func(c *typeConfig) {
		c.protocols = append(c.protocols, protocols...)
	}
}

// WithTraits declares traits. A trait with the name of an inherited trait
// shadows it.
func WithTraits(traits ...Trait) TypeOption {
	return func(c *typeConfig) {
		c.traits = append(c.traits, traits...)
	}
}

// WithConstraint adds a cross-trait check run at validation.
func WithConstraint(name string, check func(r Reader) error) TypeOption {
	return func(c *typeConfig) {
		c.constraints = append(c.constraints, Constraint{Name: name, Check: check})
	}
}

// OnInitialize adds a hook run on the initialized transition of the type and
// of each of its instances.
func OnInitialize(h Hook) TypeOption {
	return func(c *typeConfig) {
		c.onInit = append(c.onInit, h)
	}
}

// OnFinalize adds a hook run on the finalized transition.
func OnFinalize(h Hook) TypeOption {
	return func(c *typeConfig) {
		c.onFinalize = append(c.onFinalize, h)
	}
}

// TypeDoc attaches documentation.
func TypeDoc(doc string) TypeOption {
	return func(c *typeConfig) {
		c.doc = doc
	}
}

// NewType declares a component type. Structural problems (duplicate
// aliases, malformed traits, inconsistent ancestry) are reported here and
// cannot be deferred.
func NewType(name string, opts ...TypeOption) (*ComponentType, error) {
	if name == "" {
		return nil, &DeclarationError{Subject: "type", Reason: "empty name"}
	}
	var cfg typeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.family == "" {
		cfg.family = strings.ToLower(name)
	}
	if len(normalize.Split(cfg.family)) == 0 {
		return nil, &DeclarationError{Subject: name, Reason: fmt.Sprintf("invalid family %q", cfg.family)}
	}

	t := &ComponentType{
		name:        name,
		family:      cfg.family,
		doc:         cfg.doc,
		parents:     cfg.parents,
		declared:    cfg.protocols,
		constraints: cfg.constraints,
		onInit:      cfg.onInit,
		onFinalize:  cfg.onFinalize,
		life:        lifecycle{subject: "type " + name},
	}

	pedigree, ok := linearize(t, cfg.parents, func(p *ComponentType) []*ComponentType { return p.pedigree })
	if !ok {
		return nil, &DeclarationError{Subject: name, Reason: "inconsistent type hierarchy"}
	}
	t.pedigree = pedigree

	seen := make(map[string]struct{})
	for _, tr := range cfg.traits {
		if tr.Name == "" || strings.Contains(tr.Name, normalize.Separator) {
			return nil, &DeclarationError{Subject: name, Reason: fmt.Sprintf("invalid trait name %q", tr.Name)}
		}
		if _, dup := seen[tr.Name]; dup {
			return nil, &DeclarationError{Subject: name, Reason: fmt.Sprintf("trait %q declared twice", tr.Name)}
		}
		seen[tr.Name] = struct{}{}
		for _, v := range tr.Validators {
			if c, ok := v.(schema.Checker); ok {
				if err := c.Check(); err != nil {
					return nil, &DeclarationError{Subject: name, Reason: fmt.Sprintf("trait %q: %v", tr.Name, err)}
				}
			}
		}
		t.own = append(t.own, tr.clone())
	}

	// ancestors first so nearer declarations shadow farther ones
	t.index = make(map[string]int)
	for i := len(pedigree) - 1; i >= 0; i-- {
		for _, tr := range pedigree[i].own {
			if pos, ok := t.index[tr.Name]; ok {
				t.traits[pos] = tr.clone()
				continue
			}
			t.index[tr.Name] = len(t.traits)
			t.traits = append(t.traits, tr.clone())
		}
	}

	names := make(map[string]string)
	for _, tr := range t.traits {
		for _, n := range tr.Names() {
			if prev, ok := names[n]; ok && prev != tr.Name {
				return nil, &DuplicateAliasError{Type: name, Alias: n, First: prev, Second: tr.Name}
			}
			names[n] = tr.Name
		}
	}

	t.inv = newInventory(t.family, names)
	for i := range t.own {
		if _, err := t.inv.declare(&t.own[i], t.name, nil); err != nil {
			return nil, &DeclarationError{Subject: name, Reason: err.Error()}
		}
	}

	for _, p := range cfg.parents {
		p.children = append(p.children, t)
	}
	return t, nil
}

// MustType is like NewType but panics on error.
func MustType(name string, opts ...TypeOption) *ComponentType {
	t, err := NewType(name, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *ComponentType) Name() string   { return t.name }
func (t *ComponentType) Family() string { return t.family }
func (t *ComponentType) Doc() string    { return t.doc }
func (t *ComponentType) Phase() Phase   { return t.life.phase }

// Package returns the first level of the family, which selects the package
// configuration loaded for the type.
func (t *ComponentType) Package() string {
	return normalize.Split(t.family)[0]
}

// Pedigree returns the type followed by its ancestors, nearest first.
func (t *ComponentType) Pedigree() []*ComponentType { return slices.Clone(t.pedigree) }

// Parents returns the direct parent types.
func (t *ComponentType) Parents() []*ComponentType { return slices.Clone(t.parents) }

// IsA reports whether ancestor is t or one of its ancestors.
func (t *ComponentType) IsA(ancestor *ComponentType) bool {
	return slices.Contains(t.pedigree, ancestor)
}

// Traits returns the effective trait declarations, ancestors' first.
func (t *ComponentType) Traits() []Trait {
	out := make([]Trait, len(t.traits))
	for i, tr := range t.traits {
		out[i] = tr.clone()
	}
	return out
}

// Trait returns the declaration reachable through name or alias.
func (t *ComponentType) Trait(name string) (Trait, bool) {
	c, ok := t.inv.names[name]
	if !ok {
		return Trait{}, false
	}
	pos, ok := t.index[c]
	if !ok {
		return Trait{}, false
	}
	return t.traits[pos].clone(), true
}

// Protocols returns the protocols declared by the type and its ancestors.
func (t *ComponentType) Protocols() []*Protocol {
	var out []*Protocol
	for _, anc := range t.pedigree {
		for _, p := range anc.declared {
			if !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// Satisfies reports whether the type implements p, directly or through a
// refining protocol.
func (t *ComponentType) Satisfies(p *Protocol) bool {
	for _, q := range t.Protocols() {
		if q.Includes(p) {
			return true
		}
	}
	return false
}

// trait returns the declaration of a canonical name.
func (t *ComponentType) trait(canonical string) (*Trait, error) {
	pos, ok := t.index[canonical]
	if !ok {
		return nil, fmt.Errorf("%w: %q in type %q has no declaration", ErrInconsistentInventory, canonical, t.name)
	}
	return &t.traits[pos], nil
}

// nearestLocal returns the first slot in the pedigree that holds its own
// value for canonical.
func (t *ComponentType) nearestLocal(canonical string) (*slot, *ComponentType) {
	for _, anc := range t.pedigree {
		if s, ok := anc.inv.slots[canonical]; ok && s.local {
			return s, anc
		}
	}
	return nil, nil
}

// declarer returns the nearest type in the pedigree that declares canonical.
func (t *ComponentType) declarer(canonical string) *ComponentType {
	for _, anc := range t.pedigree {
		for _, tr := range anc.own {
			if tr.Name == canonical {
				return anc
			}
		}
	}
	return nil
}

// classSlot returns the type's slot for canonical, memoizing a reference to
// the nearest ancestor's slot on first use.
func (t *ComponentType) classSlot(canonical string) (*slot, error) {
	if s, ok := t.inv.slots[canonical]; ok {
		return s, nil
	}
	if _, err := t.trait(canonical); err != nil {
		return nil, err
	}
	target, _ := t.nearestLocal(canonical)
	if target == nil {
		return nil, fmt.Errorf("%w: %q in type %q has no slot", ErrInconsistentInventory, canonical, t.name)
	}
	s := t.inv.memoize(canonical, target.node.NewReference(t.inv.qualified(canonical)))
	t.publish(canonical, s.node)
	return s, nil
}

// Node returns the class-level node of a trait.
func (t *ComponentType) Node(name string) (*calc.Node, error) {
	c, err := t.inv.canonical(name)
	if err != nil {
		return nil, err
	}
	s, err := t.classSlot(c)
	if err != nil {
		return nil, err
	}
	return s.node, nil
}

// Get evaluates the class-level value of a trait.
func (t *ComponentType) Get(name string) (any, error) {
	n, err := t.Node(name)
	if err != nil {
		return nil, err
	}
	return n.Value()
}

// SetTrait assigns a class-wide value. Instances and subtypes that do not
// hold their own value follow it; ancestors are never touched. It reports
// whether the assignment took effect.
func (t *ComponentType) SetTrait(name string, value any, p Priority, origin Origin) (bool, error) {
	c, err := t.inv.canonical(name)
	if err != nil {
		return false, err
	}
	tr, err := t.trait(c)
	if err != nil {
		return false, err
	}

	prev, existed := t.inv.slots[c]
	wasLocal := existed && prev.local
	s, applied, err := t.inv.write(tr, value, p, origin, t.resolver())
	if err != nil || !applied {
		return applied, err
	}
	if !existed {
		t.publish(c, s.node)
	}
	if !wasLocal {
		t.relink(c)
	}
	return true, nil
}

// relink points the inherited slots of subtypes at their nearest local slot
// after t gained a local value for canonical.
func (t *ComponentType) relink(canonical string) {
	for _, d := range t.descendants() {
		s, ok := d.inv.slots[canonical]
		if !ok || s.local {
			continue
		}
		target, _ := d.nearestLocal(canonical)
		if target != nil && s.node.Target() != target.node {
			s.node.Retarget(target.node)
		}
	}
}

// SetDefault rebinds the declaration default of a trait by installing a
// fresh node. Instances and subtypes resolved afterwards see the new
// default; references already handed out keep reading the previous node
// until they are invalidated. A trait already configured above the default
// priority keeps its configured value.
func (t *ComponentType) SetDefault(name string, value any) error {
	c, err := t.inv.canonical(name)
	if err != nil {
		return err
	}
	tr, err := t.trait(c)
	if err != nil {
		return err
	}
	tr.Default = value
	tr.HasDefault = true
	for i := range t.own {
		if t.own[i].Name == c {
			t.own[i].Default, t.own[i].HasDefault = value, true
		}
	}
	for _, d := range t.descendants() {
		if d.declarer(c) == t {
			d.traits[d.index[c]].Default = value
			d.traits[d.index[c]].HasDefault = true
		}
	}

	if s, ok := t.inv.slots[c]; ok && s.local && s.priority > DefaultConfiguration {
		return nil
	}

	// farthest first: a descendant's retired memo keeps its parent's alive
	for _, d := range slices.Backward(t.descendants()) {
		d.pruneRetired()
	}
	t.pruneRetired()

	old, err := t.inv.declare(tr, t.name, t.resolver())
	if err != nil {
		return err
	}
	if old != nil {
		t.retired = append(t.retired, old)
	}
	t.publish(c, t.inv.slots[c].node)

	for _, d := range t.descendants() {
		s, ok := d.inv.slots[c]
		if !ok || s.local {
			continue
		}
		d.retired = append(d.retired, s.node)
		delete(d.inv.slots, c)
		if _, err := d.classSlot(c); err != nil {
			return err
		}
	}
	return nil
}

// Origin returns where the class-level value of a trait came from, and its
// priority. Inherited values report the ancestor's origin.
func (t *ComponentType) Origin(name string) (Origin, Priority, error) {
	c, err := t.inv.canonical(name)
	if err != nil {
		return Origin{}, 0, err
	}
	if _, err := t.classSlot(c); err != nil {
		return Origin{}, 0, err
	}
	s, _ := t.nearestLocal(c)
	return s.origin, s.priority, nil
}

// Provenance describes every class-level trait.
func (t *ComponentType) Provenance() *Provenance {
	prov := &Provenance{}
	for _, tr := range t.traits {
		s, owner := t.nearestLocal(tr.Name)
		if s == nil {
			continue
		}
		prov.Traits = append(prov.Traits, TraitProvenance{
			Trait:     tr.Name,
			KeyPath:   t.inv.qualified(tr.Name),
			Priority:  s.priority,
			Origin:    s.origin,
			Inherited: owner != t,
			Owner:     owner.name,
		})
	}
	return prov
}

// descendants returns every subtype, each once.
func (t *ComponentType) descendants() []*ComponentType {
	var out []*ComponentType
	seen := map[*ComponentType]struct{}{t: {}}
	queue := slices.Clone(t.children)
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
		queue = append(queue, d.children...)
	}
	return out
}

func (t *ComponentType) resolver() calc.Resolver {
	if t.model == nil {
		return nil
	}
	return t.model
}

// publish binds the qualified names of a trait in the model.
func (t *ComponentType) publish(canonical string, n *calc.Node) {
	if t.model == nil {
		return
	}
	publishNames(t.model, t.inv, canonical, n)
}

func publishNames(m *calc.Model, inv inventory, canonical string, n *calc.Node) {
	for alias, c := range inv.names {
		if c == canonical {
			m.Define(inv.qualified(alias), n)
		}
	}
}

// attach binds the type to a model: template defaults are parsed against it
// and every trait is published under its qualified names.
func (t *ComponentType) attach(m *calc.Model) error {
	t.model = m
	// defaults and values set before registration were stored as literals
	if err := t.inv.reparse(t.traitNames(), m); err != nil {
		return &DeclarationError{Subject: t.name, Reason: err.Error()}
	}
	for _, tr := range t.traits {
		s, err := t.classSlot(tr.Name)
		if err != nil {
			return err
		}
		t.publish(tr.Name, s.node)
	}
	return nil
}

// pruneRetired drops the replaced nodes nothing reads any more. The rest
// stay alive for instances whose cached references still point at them.
func (t *ComponentType) pruneRetired() {
	t.retired = slices.DeleteFunc(t.retired, func(n *calc.Node) bool {
		if len(n.Dependents()) > 0 {
			return false
		}
		n.Unresolve()
		return true
	})
}

func (t *ComponentType) traitNames() []string {
	names := make([]string, len(t.traits))
	for i, tr := range t.traits {
		names[i] = tr.Name
	}
	return names
}

func (t *ComponentType) String() string { return "type " + t.name }
