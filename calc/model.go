package calc

import (
	"sort"

	"github.com/Azhovan/armature/internal/normalize"
)

// FallbackFunc lazily supplies the node for a name the model has never seen.
// It returns nil when it does not know the name either.
type FallbackFunc func(name string) *Node

// Model is the table of dotted names that expressions and templates resolve
// against. Every name is backed by an anchor node owned by the model, so a
// name can be looked up before it is defined and redefined later without
// its readers noticing.
type Model struct {
	entries  map[string]*entry
	fallback FallbackFunc
}

type entry struct {
	anchor *Node
	loose  bool
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithFallback installs a resolver consulted for unknown names.
func WithFallback(fn FallbackFunc) ModelOption {
	return func(m *Model) {
		m.fallback = fn
	}
}

// NewModel creates an empty model.
func NewModel(opts ...ModelOption) *Model {
	m := &Model{entries: make(map[string]*entry)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetFallback replaces the resolver consulted for unknown names.
func (m *Model) SetFallback(fn FallbackFunc) {
	m.fallback = fn
}

// Lookup returns the anchor for name, creating an unresolved placeholder if
// neither the model nor the fallback knows it.
func (m *Model) Lookup(name string) *Node {
	if e, ok := m.entries[name]; ok {
		return e.anchor
	}
	e := &entry{anchor: NewUnresolved(name)}
	m.entries[name] = e
	if m.fallback != nil {
		if n := m.fallback(name); n != nil {
			e.anchor.Retarget(n)
		}
	}
	return e.anchor
}

// Define binds name to node. Readers of the name follow the new binding.
func (m *Model) Define(name string, node *Node) {
	e, ok := m.entries[name]
	if !ok {
		e = &entry{anchor: NewUnresolved(name)}
		m.entries[name] = e
	}
	if e.anchor == node || e.anchor.Target() == node {
		e.loose = false
		return
	}
	e.loose = false
	e.anchor.Retarget(node)
}

// Assign records a configuration value for a name no trait has claimed.
// Strings containing "${" are parsed as templates against the model.
func (m *Model) Assign(name string, value any) error {
	def, err := Recognize(name, value, m)
	if err != nil {
		return err
	}
	anchor := m.Lookup(name)
	anchor.Assign(def)
	m.entries[name].loose = true
	return nil
}

// Defined reports whether name is bound to something other than a
// placeholder.
func (m *Model) Defined(name string) bool {
	e, ok := m.entries[name]
	return ok && e.anchor.Kind() != Unresolved
}

// Forget drops name and every name below it. Readers that still hold the
// anchors see them as unresolved.
func (m *Model) Forget(prefix string) {
	for name, e := range m.entries {
		if name == prefix || normalize.HasPrefix(name, prefix) {
			e.anchor.Unresolve()
			delete(m.entries, name)
		}
	}
}

// Names returns every known name in lexical order.
func (m *Model) Names() []string {
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Loose returns the names under prefix that hold configuration values no
// trait has claimed, in lexical order.
func (m *Model) Loose(prefix string) []string {
	var names []string
	for name, e := range m.entries {
		if !e.loose {
			continue
		}
		if prefix == "" || name == prefix || normalize.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Clear drops every name.
func (m *Model) Clear() {
	m.Forget("")
}
