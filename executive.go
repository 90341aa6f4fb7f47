package armature

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/Azhovan/armature/calc"
	"github.com/Azhovan/armature/internal/normalize"
)

// UnusedPolicy decides what ReportUnused does with configuration that no
// trait ever claimed.
type UnusedPolicy int

const (
	UnusedIgnore UnusedPolicy = iota // Say nothing
	UnusedWarn                       // Log one warning per key
	UnusedError                      // Fail with UnusedConfigurationError
)

// Executive drives types and instances through their lifecycles and owns
// the registrar, the configurator and the name model they share.
// An Executive is meant to be used from a single goroutine.
type Executive struct {
	log       zerolog.Logger
	registrar *Registrar
	model     *calc.Model
	config    *Configurator
	locator   Locator
	unused    UnusedPolicy
	packages  map[string]struct{}
}

// Option configures an Executive.
type Option func(*Executive)

// WithLogger sets the logger. Default: zerolog.Nop().
func WithLogger(l zerolog.Logger) Option {
	return func(e *Executive) {
		e.log = l.With().Str("component", "armature").Logger()
	}
}

// WithLocator sets where package configuration is found.
func WithLocator(l Locator) Option {
	return func(e *Executive) {
		e.locator = l
	}
}

// WithUnusedPolicy sets the unused configuration policy. Default: UnusedIgnore.
func WithUnusedPolicy(p UnusedPolicy) Option {
	return func(e *Executive) {
		e.unused = p
	}
}

// WithRegistrar shares an existing registrar.
func WithRegistrar(r *Registrar) Option {
	return func(e *Executive) {
		e.registrar = r
	}
}

// New creates an Executive.
func New(opts ...Option) *Executive {
	e := &Executive{
		log:      zerolog.Nop(),
		packages: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registrar == nil {
		e.registrar = NewRegistrar(RegistrarLogger(e.log))
	}
	e.model = calc.NewModel(calc.WithFallback(e.lookupTrait))
	e.config = NewConfigurator(e.model)
	return e
}

func (e *Executive) Registrar() *Registrar         { return e.registrar }
func (e *Executive) Model() *calc.Model            { return e.model }
func (e *Executive) Configurator() *Configurator   { return e.config }
func (e *Executive) Logger() *zerolog.Logger       { return &e.log }
func (e *Executive) UnusedPolicy() UnusedPolicy    { return e.unused }
func (e *Executive) SetUnusedPolicy(p UnusedPolicy) { e.unused = p }

// lookupTrait resolves "family.trait" and "instance.trait" names the model
// has not seen yet.
func (e *Executive) lookupTrait(name string) *calc.Node {
	target, trait, ok := e.ResolveKey(normalize.Split(name))
	if !ok {
		return nil
	}
	var (
		n   *calc.Node
		err error
	)
	switch t := target.(type) {
	case *ComponentType:
		n, err = t.Node(trait)
	case *Instance:
		n, err = t.Node(trait)
	}
	if err != nil {
		return nil
	}
	return n
}

// ResolveKey maps a key path to the type or instance owning the trait it
// addresses. Families take precedence over instance names.
func (e *Executive) ResolveKey(key []string) (Target, string, bool) {
	if len(key) < 2 {
		return nil, "", false
	}
	prefix := normalize.Join(key[:len(key)-1])
	trait := key[len(key)-1]

	if t, ok := e.registrar.TypeByFamily(prefix); ok {
		if _, declared := t.Trait(trait); declared {
			return t, trait, true
		}
	}
	if i, ok := e.registrar.InstanceByName(prefix); ok {
		if _, declared := i.typ.Trait(trait); declared {
			return i, trait, true
		}
	}
	return nil, "", false
}

// RegisterProtocol registers p after the protocols it refines.
func (e *Executive) RegisterProtocol(p *Protocol) error {
	pedigree := p.Pedigree()
	slices.Reverse(pedigree)
	for _, q := range pedigree {
		if err := e.registrar.RegisterProtocol(q); err != nil {
			return err
		}
	}
	e.log.Debug().Str("protocol", p.name).Msg("protocol registered")
	return nil
}

// RegisterType moves t through registered and configured. Ancestors that
// were never configured are registered first. The package configuration of
// t is loaded the first time any type of that package registers; a type
// left registered by a failed load resumes at the configure step.
func (e *Executive) RegisterType(ctx context.Context, t *ComponentType) error {
	for _, anc := range slices.Backward(t.pedigree[1:]) {
		if anc.Phase() < Configured {
			if err := e.RegisterType(ctx, anc); err != nil {
				return err
			}
		}
	}

	if t.Phase() != Registered {
		if err := e.register(t); err != nil {
			return err
		}
	}

	err := t.life.advance(Configured, func() error {
		if err := e.loadPackage(ctx, t.Package()); err != nil {
			return err
		}
		return e.config.Retry(e)
	})
	if err != nil {
		return fmt.Errorf("configure %s: %w", t.name, err)
	}
	return nil
}

func (e *Executive) register(t *ComponentType) error {
	err := t.life.advance(Registered, func() error {
		for _, p := range t.Protocols() {
			if err := e.RegisterProtocol(p); err != nil {
				return err
			}
		}
		if err := e.registrar.RegisterType(t); err != nil {
			return err
		}
		return t.attach(e.model)
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", t.name, err)
	}
	e.log.Debug().Str("type", t.name).Str("family", t.family).Msg("type registered")
	return nil
}

func (e *Executive) loadPackage(ctx context.Context, pkg string) (err error) {
	if _, done := e.packages[pkg]; done {
		return nil
	}
	if e.locator == nil {
		e.packages[pkg] = struct{}{}
		return nil
	}
	// marked while loading so a source cannot reenter; a failed load is
	// retried by the next registration from the package
	e.packages[pkg] = struct{}{}
	defer func() {
		if err != nil {
			delete(e.packages, pkg)
		}
	}()

	sources, err := e.locator.Locate(ctx, pkg)
	if err != nil {
		return fmt.Errorf("locate package %q: %w", pkg, err)
	}
	for _, src := range sources {
		if err := e.LoadSource(ctx, src, PackageConfiguration); err != nil {
			return err
		}
	}
	e.log.Debug().Str("package", pkg).Int("sources", len(sources)).Msg("package configuration loaded")
	return nil
}

// InitializeType moves t through bound, validated and initialized.
// Failures list every offending trait at once. A type that failed a step
// resumes at that step.
func (e *Executive) InitializeType(ctx context.Context, t *ComponentType) error {
	if p := t.Phase(); p < Bound || p > Validated {
		if err := t.life.advance(Bound, func() error { return bind(t.family, t.traits, t.Node) }); err != nil {
			return fmt.Errorf("bind %s: %w", t.name, err)
		}
	}
	if t.Phase() == Bound {
		if err := t.life.advance(Validated, func() error { return e.validate(t, t, true) }); err != nil {
			return fmt.Errorf("validate %s: %w", t.name, err)
		}
	}
	if err := t.life.advance(Initialized, func() error { return runHooks(ctx, t, initHooks(t)) }); err != nil {
		return fmt.Errorf("initialize %s: %w", t.name, err)
	}
	e.log.Debug().Str("type", t.name).Msg("type initialized")
	return nil
}

// FinalizeType moves t to finalized.
func (e *Executive) FinalizeType(ctx context.Context, t *ComponentType) error {
	return t.life.advance(Finalized, func() error { return runHooks(ctx, t, finalizeHooks(t)) })
}

// InstanceOption configures NewInstance.
type InstanceOption func(*instanceConfig)

type instanceConfig struct {
	name   string
	values map[string]any
}

// WithName names the instance. Configuration keyed by the name applies to it.
func WithName(name string) InstanceOption {
	return func(c *instanceConfig) {
		c.name = name
	}
}

// WithValues assigns trait values at explicit priority.
func WithValues(values map[string]any) InstanceOption {
	return func(c *instanceConfig) {
		c.values = values
	}
}

// NewInstance creates an instance of t and moves it through the whole
// lifecycle up to initialized. A failed instance is unregistered again.
func (e *Executive) NewInstance(ctx context.Context, t *ComponentType, opts ...InstanceOption) (*Instance, error) {
	if t.Phase() == Declared {
		if err := e.RegisterType(ctx, t); err != nil {
			return nil, err
		}
	}
	if t.Phase() == Finalized {
		return nil, &LifecycleError{Subject: "type " + t.name, From: Finalized, To: Registered}
	}

	var cfg instanceConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		cfg.name = e.registrar.Name(t)
	}

	inst := newInstance(t, cfg.name)
	if err := e.bootInstance(ctx, inst, cfg); err != nil {
		if inst.Phase() >= Registered {
			_ = e.registrar.UnregisterInstance(inst)
			e.model.Forget(inst.name)
		}
		return nil, fmt.Errorf("instantiate %s: %w", inst.name, err)
	}
	e.log.Debug().Str("instance", inst.name).Str("type", t.name).Msg("instance initialized")
	return inst, nil
}

func (e *Executive) bootInstance(ctx context.Context, inst *Instance, cfg instanceConfig) error {
	err := inst.life.advance(Registered, func() error {
		if _, clash := e.registrar.TypeByFamily(inst.name); clash {
			return &DeclarationError{Subject: inst.name, Reason: "name is taken by a type family"}
		}
		if err := e.registrar.RegisterInstance(inst); err != nil {
			return err
		}
		return inst.attach(e.model)
	})
	if err != nil {
		return err
	}

	err = inst.life.advance(Configured, func() error {
		if err := e.config.Replay(inst.name, e); err != nil {
			return err
		}
		var errs []error
		for _, name := range sortedKeys(cfg.values) {
			if _, err := inst.SetTrait(name, cfg.values[name], ExplicitConfiguration, ExplicitOrigin); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
	if err != nil {
		return err
	}

	if err := inst.life.advance(Bound, func() error { return bind(inst.name, inst.typ.traits, inst.Node) }); err != nil {
		return err
	}
	if err := inst.life.advance(Validated, func() error { return e.validate(inst, inst.typ, false) }); err != nil {
		return err
	}
	return inst.life.advance(Initialized, func() error { return runHooks(ctx, inst, initHooks(inst.typ)) })
}

// Finalize moves an instance to finalized and forgets it.
func (e *Executive) Finalize(ctx context.Context, inst *Instance) error {
	err := inst.life.advance(Finalized, func() error {
		return runHooks(ctx, inst, finalizeHooks(inst.typ))
	})
	if err != nil {
		return err
	}
	if err := e.registrar.UnregisterInstance(inst); err != nil {
		return err
	}
	e.model.Forget(inst.name)
	return nil
}

// bind checks that every trait resolves without evaluating anything.
func bind(owner string, traits []Trait, node func(string) (*calc.Node, error)) error {
	var fes []FieldError
	for _, tr := range traits {
		path := normalize.ApplyPrefix(owner, tr.Name)
		n, err := node(tr.Name)
		if err != nil {
			fes = collect(fes, path, err)
			continue
		}
		fes = collect(fes, path, calc.Verify(n))
	}
	if len(fes) > 0 {
		return &ValidationError{FieldErrors: fes}
	}
	return nil
}

// validate evaluates every trait, then checks protocol conformance (types
// only) and the declared constraints.
func (e *Executive) validate(r Reader, t *ComponentType, conformance bool) error {
	owner := t.family
	if inst, ok := r.(*Instance); ok {
		owner = inst.name
	}

	var fes []FieldError
	for _, tr := range t.traits {
		if _, err := r.Get(tr.Name); err != nil {
			fes = collect(fes, normalize.ApplyPrefix(owner, tr.Name), err)
		}
	}

	if conformance {
		for _, p := range t.Protocols() {
			for _, err := range p.conformance(t) {
				fes = collect(fes, owner, err)
			}
		}
	}

	if len(fes) == 0 {
		for _, anc := range slices.Backward(t.pedigree) {
			for _, c := range anc.constraints {
				if err := c.Check(r); err != nil {
					cv := &ConstraintViolationError{Subject: r.Name(), Constraint: c.Name, Err: err}
					fes = collect(fes, owner, cv)
				}
			}
		}
	}

	if len(fes) > 0 {
		return &ValidationError{FieldErrors: fes}
	}
	return nil
}

func initHooks(t *ComponentType) []Hook {
	var hooks []Hook
	for _, anc := range slices.Backward(t.pedigree) {
		hooks = append(hooks, anc.onInit...)
	}
	return hooks
}

func finalizeHooks(t *ComponentType) []Hook {
	var hooks []Hook
	for _, anc := range t.pedigree {
		hooks = append(hooks, anc.onFinalize...)
	}
	return hooks
}

func runHooks(ctx context.Context, r Reader, hooks []Hook) error {
	for _, h := range hooks {
		if err := h(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Configure merges events. Events addressing nothing yet are returned and
// kept for later registrations.
func (e *Executive) Configure(ctx context.Context, events []Event) ([]Event, error) {
	return e.config.Apply(events, e)
}

// LoadSource loads src and merges its events at priority p.
func (e *Executive) LoadSource(ctx context.Context, src Source, p Priority) error {
	events, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load source %s: %w", src.Name(), err)
	}
	for i := range events {
		events[i].Priority = p
	}
	unconsumed, err := e.config.Apply(events, e)
	e.log.Debug().
		Str("source", src.Name()).
		Stringer("priority", p).
		Int("events", len(events)).
		Int("pending", len(unconsumed)).
		Msg("source loaded")
	if err != nil {
		return fmt.Errorf("apply source %s: %w", src.Name(), err)
	}
	return nil
}

// Boot loads sources at boot priority, in order.
func (e *Executive) Boot(ctx context.Context, sources ...Source) error {
	for _, src := range sources {
		if err := e.LoadSource(ctx, src, BootConfiguration); err != nil {
			return err
		}
	}
	return nil
}

// ResolveFamily returns the registered type whose family is the longest
// prefix of key.
func (e *Executive) ResolveFamily(key string) (*ComponentType, bool) {
	levels := normalize.Split(key)
	for n := len(levels); n > 0; n-- {
		if t, ok := e.registrar.TypeByFamily(normalize.Join(levels[:n])); ok {
			return t, true
		}
	}
	return nil, false
}

// TraitsOf returns the trait declarations of t, ancestors' first.
func (e *Executive) TraitsOf(t *ComponentType) []Trait {
	return t.Traits()
}

// ValueOf evaluates a trait of an instance by name or alias.
func (e *Executive) ValueOf(inst *Instance, name string) (any, error) {
	return inst.Get(name)
}

// ImplementersOf returns the registered types satisfying p.
func (e *Executive) ImplementersOf(p *Protocol) []*ComponentType {
	return e.registrar.ImplementersOf(p)
}

// ReportUnused applies the unused configuration policy to the events no
// trait has claimed.
func (e *Executive) ReportUnused() error {
	pending := e.config.Pending()
	if len(pending) == 0 || e.unused == UnusedIgnore {
		return nil
	}

	keys := make([]string, len(pending))
	for i, ev := range pending {
		keys[i] = ev.Path()
		if e.unused == UnusedWarn {
			e.log.Warn().Str("key", keys[i]).Stringer("origin", ev.Origin).Msg("unused configuration")
		}
	}
	if e.unused == UnusedError {
		return &UnusedConfigurationError{Keys: keys}
	}
	return nil
}

// Close forgets every protocol, type, instance and name.
func (e *Executive) Close() error {
	e.registrar.Close()
	e.model.Clear()
	e.config = NewConfigurator(e.model)
	e.packages = make(map[string]struct{})
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
