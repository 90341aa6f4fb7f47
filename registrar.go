package armature

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ProtocolObserver is notified after a protocol registers.
type ProtocolObserver interface {
	ProtocolRegistered(p *Protocol)
}

// TypeObserver is notified after a component type registers.
type TypeObserver interface {
	TypeRegistered(t *ComponentType)
}

// InstanceObserver is notified after an instance registers and after it is
// finalized.
type InstanceObserver interface {
	InstanceRegistered(i *Instance)
	InstanceFinalized(i *Instance)
}

// Namer proposes a name for a new anonymous instance of t.
type Namer func(t *ComponentType) (name string, ok bool)

// Registrar records protocols, component types and their live instances.
// Instances are held weakly: the registrar never keeps one alive.
//
// Observers run synchronously, in subscription order, and must not register
// anything while being notified.
type Registrar struct {
	log       zerolog.Logger
	mu        sync.RWMutex
	notifying atomic.Bool

	protocols    []*Protocol
	types        []*ComponentType
	families     map[string]*ComponentType
	implementers map[*Protocol][]*ComponentType
	instances    map[*ComponentType][]weak.Pointer[Instance]
	byName       map[string]weak.Pointer[Instance]

	protocolObservers []ProtocolObserver
	typeObservers     []TypeObserver
	instanceObservers []InstanceObserver
	namers            []Namer
}

// RegistrarOption configures a Registrar.
type RegistrarOption func(*Registrar)

// RegistrarLogger sets the logger. Default: zerolog.Nop().
func RegistrarLogger(l zerolog.Logger) RegistrarOption {
	return func(r *Registrar) {
		r.log = l
	}
}

// NewRegistrar creates an empty registrar.
func NewRegistrar(opts ...RegistrarOption) *Registrar {
	r := &Registrar{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	r.reset()
	return r
}

func (r *Registrar) reset() {
	r.protocols = nil
	r.types = nil
	r.families = make(map[string]*ComponentType)
	r.implementers = make(map[*Protocol][]*ComponentType)
	r.instances = make(map[*ComponentType][]weak.Pointer[Instance])
	r.byName = make(map[string]weak.Pointer[Instance])
}

// Subscribe adds an observer. It must implement at least one of
// ProtocolObserver, TypeObserver or InstanceObserver.
func (r *Registrar) Subscribe(observer any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := false
	if o, ok := observer.(ProtocolObserver); ok {
		r.protocolObservers = append(r.protocolObservers, o)
		matched = true
	}
	if o, ok := observer.(TypeObserver); ok {
		r.typeObservers = append(r.typeObservers, o)
		matched = true
	}
	if o, ok := observer.(InstanceObserver); ok {
		r.instanceObservers = append(r.instanceObservers, o)
		matched = true
	}
	if !matched {
		return fmt.Errorf("armature: %T observes nothing", observer)
	}
	return nil
}

// AddNamer appends an instance name generator. Namers are consulted in order.
func (r *Registrar) AddNamer(n Namer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.namers = append(r.namers, n)
}

// Name picks a name for an anonymous instance of t: the first namer that
// answers wins, otherwise "<family>#<uuid>".
func (r *Registrar) Name(t *ComponentType) string {
	r.mu.RLock()
	namers := slices.Clone(r.namers)
	r.mu.RUnlock()

	for _, n := range namers {
		if name, ok := n(t); ok && name != "" {
			return name
		}
	}
	return t.family + "#" + uuid.NewString()
}

func (r *Registrar) guard(subject string) error {
	if r.notifying.Load() {
		r.log.Warn().Str("subject", subject).Msg("registration attempted from an observer")
		return &ReentrantRegistrationError{Subject: subject}
	}
	return nil
}

// RegisterProtocol adds p. Registering a protocol twice is a no-op.
func (r *Registrar) RegisterProtocol(p *Protocol) error {
	if err := r.guard(p.name); err != nil {
		return err
	}

	r.mu.Lock()
	if slices.Contains(r.protocols, p) {
		r.mu.Unlock()
		return nil
	}
	r.protocols = append(r.protocols, p)
	r.recomputeImplementers()
	observers := slices.Clone(r.protocolObservers)
	r.mu.Unlock()
	r.log.Debug().Str("protocol", p.name).Msg("protocol recorded")

	r.notify(func() {
		for _, o := range observers {
			o.ProtocolRegistered(p)
		}
	})
	return nil
}

// RegisterType adds t and records the registered protocols it satisfies.
func (r *Registrar) RegisterType(t *ComponentType) error {
	if err := r.guard(t.name); err != nil {
		return err
	}

	r.mu.Lock()
	if other, ok := r.families[t.family]; ok {
		r.mu.Unlock()
		if other == t {
			return nil
		}
		return &DeclarationError{Subject: t.name, Reason: fmt.Sprintf("family %q already belongs to type %q", t.family, other.name)}
	}
	r.types = append(r.types, t)
	r.families[t.family] = t
	satisfied := 0
	for _, p := range r.protocols {
		if t.Satisfies(p) {
			r.implementers[p] = append(r.implementers[p], t)
			satisfied++
		}
	}
	observers := slices.Clone(r.typeObservers)
	r.mu.Unlock()
	r.log.Debug().Str("type", t.name).Str("family", t.family).Int("protocols", satisfied).Msg("type recorded")

	r.notify(func() {
		for _, o := range observers {
			o.TypeRegistered(t)
		}
	})
	return nil
}

// RegisterInstance adds i to its type's instance set.
func (r *Registrar) RegisterInstance(i *Instance) error {
	if err := r.guard(i.name); err != nil {
		return err
	}

	r.mu.Lock()
	if wp, ok := r.byName[i.name]; ok {
		if live := wp.Value(); live != nil && live != i {
			r.mu.Unlock()
			r.log.Debug().Str("instance", i.name).Msg("instance name taken")
			return &DeclarationError{Subject: i.name, Reason: "an instance with this name is already registered"}
		}
	}
	wp := weak.Make(i)
	r.byName[i.name] = wp
	r.instances[i.typ] = append(r.instances[i.typ], wp)
	observers := slices.Clone(r.instanceObservers)
	r.mu.Unlock()
	r.log.Debug().Str("instance", i.name).Str("type", i.typ.name).Msg("instance recorded")

	r.notify(func() {
		for _, o := range observers {
			o.InstanceRegistered(i)
		}
	})
	return nil
}

// UnregisterInstance removes i and tells the instance observers.
func (r *Registrar) UnregisterInstance(i *Instance) error {
	if err := r.guard(i.name); err != nil {
		return err
	}

	r.mu.Lock()
	wp := weak.Make(i)
	if r.byName[i.name] == wp {
		delete(r.byName, i.name)
	}
	r.instances[i.typ] = slices.DeleteFunc(r.instances[i.typ], func(p weak.Pointer[Instance]) bool {
		return p == wp || p.Value() == nil
	})
	observers := slices.Clone(r.instanceObservers)
	r.mu.Unlock()
	r.log.Debug().Str("instance", i.name).Str("type", i.typ.name).Msg("instance dropped")

	r.notify(func() {
		for _, o := range observers {
			o.InstanceFinalized(i)
		}
	})
	return nil
}

func (r *Registrar) notify(fn func()) {
	r.notifying.Store(true)
	defer r.notifying.Store(false)
	fn()
}

// recomputeImplementers rebuilds the implementer sets. Called with the
// write lock held.
func (r *Registrar) recomputeImplementers() {
	r.implementers = make(map[*Protocol][]*ComponentType, len(r.protocols))
	for _, p := range r.protocols {
		for _, t := range r.types {
			if t.Satisfies(p) {
				r.implementers[p] = append(r.implementers[p], t)
			}
		}
	}
}

// ProtocolsInTopologicalOrder yields every registered protocol after all
// the protocols it refines, each exactly once.
func (r *Registrar) ProtocolsInTopologicalOrder() []*Protocol {
	r.mu.RLock()
	defer r.mu.RUnlock()

	registered := make(map[*Protocol]struct{}, len(r.protocols))
	for _, p := range r.protocols {
		registered[p] = struct{}{}
	}

	var order []*Protocol
	visited := make(map[*Protocol]struct{})
	var visit func(p *Protocol)
	visit = func(p *Protocol) {
		if _, ok := visited[p]; ok {
			return
		}
		visited[p] = struct{}{}
		for _, parent := range p.parents {
			visit(parent)
		}
		if _, ok := registered[p]; ok {
			order = append(order, p)
		}
	}
	for _, p := range r.protocols {
		visit(p)
	}
	return order
}

// ImplementersOf returns the registered types satisfying p, in registration
// order.
func (r *Registrar) ImplementersOf(p *Protocol) []*ComponentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.implementers[p])
}

// InstancesOf returns the live instances of exactly t.
func (r *Registrar) InstancesOf(t *ComponentType) []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Instance
	live := r.instances[t][:0]
	for _, wp := range r.instances[t] {
		if i := wp.Value(); i != nil {
			out = append(out, i)
			live = append(live, wp)
		}
	}
	r.instances[t] = live
	return out
}

// Descendants returns the registered types that inherit from t.
func (r *Registrar) Descendants(t *ComponentType) []*ComponentType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*ComponentType
	for _, other := range r.types {
		if other != t && other.IsA(t) {
			out = append(out, other)
		}
	}
	return out
}

// TypeByFamily returns the registered type owning family.
func (r *Registrar) TypeByFamily(family string) (*ComponentType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.families[family]
	return t, ok
}

// InstanceByName returns the live instance called name.
func (r *Registrar) InstanceByName(name string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wp, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	i := wp.Value()
	return i, i != nil
}

// Types returns the registered types in registration order.
func (r *Registrar) Types() []*ComponentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.types)
}

// Protocols returns the registered protocols in registration order.
func (r *Registrar) Protocols() []*Protocol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.protocols)
}

// Close forgets everything. Observers and namers stay subscribed.
func (r *Registrar) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}
