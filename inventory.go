package armature

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/Azhovan/armature/calc"
	"github.com/Azhovan/armature/internal/normalize"
)

// unset is the priority of a slot that only memoizes an inherited value;
// any assignment overrides it.
const unset Priority = math.MinInt32

// slot binds one trait of a type or instance to a node.
type slot struct {
	node     *calc.Node
	priority Priority
	origin   Origin
	local    bool // false: the node is a memoized reference to an ancestor
	value    any  // raw value of the last assignment
	hasValue bool
}

// inventory is the slot store of one type or instance.
type inventory struct {
	owner string            // qualifier for node names ("gallery.shape", "c")
	names map[string]string // alias -> canonical name, shared along a type
	slots map[string]*slot  // canonical name -> slot
}

func newInventory(owner string, names map[string]string) inventory {
	return inventory{owner: owner, names: names, slots: make(map[string]*slot)}
}

// canonical resolves an alias to the canonical trait name.
func (inv *inventory) canonical(name string) (string, error) {
	c, ok := inv.names[name]
	if !ok {
		return "", fmt.Errorf("%w: %q in %q", ErrNotFound, name, inv.owner)
	}
	return c, nil
}

func (inv *inventory) qualified(canonical string) string {
	return normalize.ApplyPrefix(inv.owner, canonical)
}

// memoize records ref as an inherited slot.
func (inv *inventory) memoize(canonical string, ref *calc.Node) *slot {
	s := &slot{node: ref, priority: unset}
	inv.slots[canonical] = s
	return s
}

// write assigns value to the trait's slot in this inventory. A memoized
// reference is converted in place so readers of the slot follow. It returns
// false when the assignment is ignored: lower priority than the current one,
// or identical to it.
func (inv *inventory) write(tr *Trait, value any, p Priority, origin Origin, resolver calc.Resolver) (*slot, bool, error) {
	s := inv.slots[tr.Name]
	if s != nil && s.local {
		if p < s.priority {
			return s, false, nil
		}
		if p == s.priority && s.hasValue && sameValue(s.value, value) {
			return s, false, nil
		}
	}

	name := inv.qualified(tr.Name)
	def, err := calc.Recognize(name, value, resolver)
	if err != nil {
		return nil, false, fmt.Errorf("assign %q: %w", name, err)
	}

	if s == nil {
		s = &slot{node: calc.NewUnresolved(name)}
		inv.slots[tr.Name] = s
	}
	if !s.local {
		s.node.SetProcessor(tr.processor(name))
	}
	s.node.Assign(def)
	s.local = true
	s.priority = p
	s.origin = origin
	s.value = value
	s.hasValue = true
	return s, true, nil
}

// declare installs a fresh declaration node for tr, replacing any previous
// node. The replaced node is returned so the caller can keep it alive for
// readers that still hold references to it.
func (inv *inventory) declare(tr *Trait, typeName string, resolver calc.Resolver) (old *calc.Node, err error) {
	name := inv.qualified(tr.Name)
	var node *calc.Node
	switch {
	case !tr.HasDefault:
		node = calc.NewUnresolved(name)
	default:
		node, err = calc.Recognize(name, tr.Default, resolver)
		if err != nil {
			return nil, fmt.Errorf("default of %q: %w", name, err)
		}
	}
	node.SetProcessor(tr.processor(name))

	if s, ok := inv.slots[tr.Name]; ok {
		old = s.node
	}
	inv.slots[tr.Name] = &slot{
		node:     node,
		priority: DefaultConfiguration,
		origin:   DeclarationOrigin(typeName),
		local:    true,
		value:    tr.Default,
		hasValue: tr.HasDefault,
	}
	return old, nil
}

// reparse turns template strings written while no resolver existed into
// expressions. Only local slots are touched, in the order of names.
func (inv *inventory) reparse(names []string, resolver calc.Resolver) error {
	for _, c := range names {
		s, ok := inv.slots[c]
		if !ok || !s.local || !s.hasValue {
			continue
		}
		str, isStr := s.value.(string)
		if !isStr || !strings.Contains(str, "${") {
			continue
		}
		name := inv.qualified(c)
		def, err := calc.Recognize(name, str, resolver)
		if err != nil {
			return fmt.Errorf("assign %q: %w", name, err)
		}
		s.node.Assign(def)
	}
	return nil
}

func sameValue(a, b any) bool {
	if na, ok := a.(*calc.Node); ok {
		nb, ok := b.(*calc.Node)
		return ok && na == nb
	}
	return reflect.DeepEqual(a, b)
}
