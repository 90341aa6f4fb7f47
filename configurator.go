package armature

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Azhovan/armature/calc"
	"github.com/Azhovan/armature/internal/normalize"
)

// Event is one configuration assignment: a key path, a value, the priority
// of its source and where it came from.
type Event struct {
	Key      []string
	Value    any
	Priority Priority
	Origin   Origin
}

// NewEvent builds an event from a dotted key.
func NewEvent(key string, value any, p Priority, origin Origin) Event {
	return Event{Key: normalize.Split(key), Value: value, Priority: p, Origin: origin}
}

// Path returns the dotted key.
func (e Event) Path() string {
	return normalize.Join(e.Key)
}

// Target is a slot owner the configurator can write to.
type Target interface {
	SetTrait(name string, value any, p Priority, origin Origin) (bool, error)
}

// KeyResolver maps a key path to the owner of the addressed trait.
type KeyResolver interface {
	ResolveKey(key []string) (target Target, trait string, ok bool)
}

// KeyResolverFunc adapts a function to KeyResolver.
type KeyResolverFunc func(key []string) (Target, string, bool)

func (f KeyResolverFunc) ResolveKey(key []string) (Target, string, bool) { return f(key) }

type stamped struct {
	Event
	seq uint64
}

// Configurator merges assignment events. For every key path it keeps the
// event with the highest priority, the latest one among equals, and writes
// it to the addressed slot. Events that address nothing yet stay pending
// and are retried when new types or instances appear.
type Configurator struct {
	seq     uint64
	winners map[string]stamped
	pending map[string]stamped
	model   *calc.Model
}

// NewConfigurator creates a configurator. Pending values are published as
// loose names in model so that templates can refer to them; model may be nil.
func NewConfigurator(model *calc.Model) *Configurator {
	return &Configurator{
		winners: make(map[string]stamped),
		pending: make(map[string]stamped),
		model:   model,
	}
}

// Apply merges a batch of events. It returns the events whose key paths
// address no trait yet, and the write failures joined together.
func (c *Configurator) Apply(events []Event, res KeyResolver) ([]Event, error) {
	groups := make(map[string][]stamped)
	var order []string
	for _, e := range events {
		if len(e.Key) == 0 {
			continue
		}
		c.seq++
		path := e.Path()
		if _, ok := groups[path]; !ok {
			order = append(order, path)
		}
		groups[path] = append(groups[path], stamped{Event: e, seq: c.seq})
	}

	// winners are delivered in arrival order, so that aliases of one trait
	// resolve ties the way a single key would
	best := make(map[string]stamped, len(order))
	for _, path := range order {
		group := groups[path]
		b := group[0]
		for _, s := range group[1:] {
			if s.Priority >= b.Priority {
				b = s
			}
		}
		best[path] = b
	}

	var errs []error
	for _, b := range c.sorted(best) {
		path := b.Path()
		if prev, ok := c.winners[path]; !ok || supersedes(b, prev) {
			c.winners[path] = b
			if err := c.deliver(path, b, res); err != nil {
				errs = append(errs, err)
			}
		}
	}

	var unconsumed []Event
	for _, path := range order {
		if _, stillPending := c.pending[path]; stillPending {
			for _, s := range groups[path] {
				unconsumed = append(unconsumed, s.Event)
			}
		}
	}
	return unconsumed, errors.Join(errs...)
}

// supersedes reports whether next replaces prev as the winner of a key.
func supersedes(next, prev stamped) bool {
	if next.Priority != prev.Priority {
		return next.Priority > prev.Priority
	}
	return !sameValue(next.Value, prev.Value)
}

// deliver writes a winner to its slot, or parks it.
func (c *Configurator) deliver(path string, s stamped, res KeyResolver) error {
	if res != nil {
		if target, trait, ok := res.ResolveKey(s.Key); ok {
			delete(c.pending, path)
			if _, err := target.SetTrait(trait, s.Value, s.Priority, s.Origin); err != nil {
				return fmt.Errorf("configure %s: %w", path, err)
			}
			return nil
		}
	}
	c.pending[path] = s
	if c.model != nil {
		if err := c.model.Assign(path, s.Value); err != nil {
			return fmt.Errorf("configure %s: %w", path, err)
		}
	}
	return nil
}

// Retry re-attempts every pending winner, oldest first.
func (c *Configurator) Retry(res KeyResolver) error {
	var errs []error
	for _, s := range c.sorted(c.pending) {
		path := s.Path()
		if target, trait, ok := res.ResolveKey(s.Key); ok {
			delete(c.pending, path)
			if _, err := target.SetTrait(trait, s.Value, s.Priority, s.Origin); err != nil {
				errs = append(errs, fmt.Errorf("configure %s: %w", path, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Replay writes again every winner under prefix, oldest first. A newly
// created instance receives the configuration addressed to its name even if
// an earlier instance of that name already consumed it.
func (c *Configurator) Replay(prefix string, res KeyResolver) error {
	var errs []error
	for _, s := range c.sorted(c.winners) {
		path := s.Path()
		if !normalize.HasPrefix(path, prefix) {
			continue
		}
		if target, trait, ok := res.ResolveKey(s.Key); ok {
			delete(c.pending, path)
			if _, err := target.SetTrait(trait, s.Value, s.Priority, s.Origin); err != nil {
				errs = append(errs, fmt.Errorf("configure %s: %w", path, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Pending returns the winners no trait has claimed, oldest first.
func (c *Configurator) Pending() []Event {
	var out []Event
	for _, s := range c.sorted(c.pending) {
		out = append(out, s.Event)
	}
	return out
}

// Winner returns the current winning event for a dotted key.
func (c *Configurator) Winner(key string) (Event, bool) {
	s, ok := c.winners[key]
	return s.Event, ok
}

func (c *Configurator) sorted(m map[string]stamped) []stamped {
	out := make([]stamped, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b stamped) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}
