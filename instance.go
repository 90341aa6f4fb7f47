package armature

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/Azhovan/armature/calc"
)

// Instance is a live component. Its slot store starts empty: every read of
// a trait it never assigned falls through to its type by reference.
type Instance struct {
	name  string
	typ   *ComponentType
	inv   inventory
	life  lifecycle
	model *calc.Model
}

func newInstance(t *ComponentType, name string) *Instance {
	return &Instance{
		name: name,
		typ:  t,
		inv:  newInventory(name, t.inv.names),
		life: lifecycle{subject: "instance " + name},
	}
}

func (i *Instance) Name() string         { return i.name }
func (i *Instance) Type() *ComponentType { return i.typ }
func (i *Instance) Phase() Phase         { return i.life.phase }

// slotFor returns the instance's slot for canonical, memoizing a reference
// to the class-level slot on first use.
func (i *Instance) slotFor(canonical string) (*slot, error) {
	if s, ok := i.inv.slots[canonical]; ok {
		return s, nil
	}
	cs, err := i.typ.classSlot(canonical)
	if err != nil {
		return nil, err
	}
	s := i.inv.memoize(canonical, cs.node.NewReference(i.inv.qualified(canonical)))
	i.publish(canonical, s.node)
	return s, nil
}

// Node returns the node bound to a trait, by canonical name or alias.
func (i *Instance) Node(name string) (*calc.Node, error) {
	c, err := i.inv.canonical(name)
	if err != nil {
		return nil, err
	}
	s, err := i.slotFor(c)
	if err != nil {
		return nil, err
	}
	return s.node, nil
}

// Get evaluates a trait. Conversion and validation happen on first read.
func (i *Instance) Get(name string) (any, error) {
	n, err := i.Node(name)
	if err != nil {
		return nil, err
	}
	return n.Value()
}

// SetTrait assigns a value to this instance only. It reports whether the
// assignment took effect: lower priorities than the current one and
// repeated identical assignments are ignored.
func (i *Instance) SetTrait(name string, value any, p Priority, origin Origin) (bool, error) {
	c, err := i.inv.canonical(name)
	if err != nil {
		return false, err
	}
	tr, err := i.typ.trait(c)
	if err != nil {
		return false, err
	}
	_, existed := i.inv.slots[c]
	s, applied, err := i.inv.write(tr, value, p, origin, i.resolver())
	if err != nil || !applied {
		return applied, err
	}
	if !existed {
		i.publish(c, s.node)
	}
	return true, nil
}

// Set assigns a value at explicit priority.
func (i *Instance) Set(name string, value any) error {
	_, err := i.SetTrait(name, value, ExplicitConfiguration, ExplicitOrigin)
	return err
}

// Invalidate drops whatever the instance resolved for a trait. An inherited
// trait is looked up again through its type; a local one is recomputed on
// the next read.
func (i *Instance) Invalidate(name string) error {
	c, err := i.inv.canonical(name)
	if err != nil {
		return err
	}
	s, ok := i.inv.slots[c]
	if !ok {
		return nil
	}
	if s.local {
		s.node.Invalidate()
		return nil
	}
	cs, err := i.typ.classSlot(c)
	if err != nil {
		return err
	}
	if s.node.Target() != cs.node {
		s.node.Retarget(cs.node)
	} else {
		s.node.Invalidate()
	}
	return nil
}

// Origin returns where the value of a trait came from, and its priority.
func (i *Instance) Origin(name string) (Origin, Priority, error) {
	c, err := i.inv.canonical(name)
	if err != nil {
		return Origin{}, 0, err
	}
	if s, ok := i.inv.slots[c]; ok && s.local {
		return s.origin, s.priority, nil
	}
	return i.typ.Origin(c)
}

// Provenance describes every trait of the instance.
func (i *Instance) Provenance() *Provenance {
	prov := &Provenance{}
	for _, tr := range i.typ.traits {
		if s, ok := i.inv.slots[tr.Name]; ok && s.local {
			prov.Traits = append(prov.Traits, TraitProvenance{
				Trait:    tr.Name,
				KeyPath:  i.inv.qualified(tr.Name),
				Priority: s.priority,
				Origin:   s.origin,
				Owner:    i.name,
			})
			continue
		}
		s, owner := i.typ.nearestLocal(tr.Name)
		if s == nil {
			continue
		}
		prov.Traits = append(prov.Traits, TraitProvenance{
			Trait:     tr.Name,
			KeyPath:   i.inv.qualified(tr.Name),
			Priority:  s.priority,
			Origin:    s.origin,
			Inherited: true,
			Owner:     owner.name,
		})
	}
	return prov
}

// Values evaluates every trait, keyed by canonical name. The first failure
// is returned.
func (i *Instance) Values() (map[string]any, error) {
	out := make(map[string]any, len(i.typ.traits))
	for _, tr := range i.typ.traits {
		v, err := i.Get(tr.Name)
		if err != nil {
			return nil, err
		}
		out[tr.Name] = v
	}
	return out, nil
}

// Decode copies the trait values into out, a pointer to a struct whose
// fields are named after the traits (see TraitsFromStruct).
func (i *Instance) Decode(out any) error {
	values, err := i.Values()
	if err != nil {
		return err
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          structTag,
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("decode %s: %w", i.name, err)
	}
	if err := dec.Decode(values); err != nil {
		return fmt.Errorf("decode %s: %w", i.name, err)
	}
	return nil
}

func (i *Instance) resolver() calc.Resolver {
	if i.model == nil {
		return nil
	}
	return i.model
}

func (i *Instance) publish(canonical string, n *calc.Node) {
	if i.model == nil {
		return
	}
	publishNames(i.model, i.inv, canonical, n)
}

func (i *Instance) attach(m *calc.Model) error {
	i.model = m
	if err := i.inv.reparse(i.typ.traitNames(), m); err != nil {
		return err
	}
	for _, tr := range i.typ.traits {
		s, err := i.slotFor(tr.Name)
		if err != nil {
			return err
		}
		i.publish(tr.Name, s.node)
	}
	return nil
}

func (i *Instance) String() string { return "instance " + i.name }
