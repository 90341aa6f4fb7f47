package armature

import (
	"context"
	"errors"
	"time"
)

// Source provides assignment events from a backend (files, environment,
// remote stores). Keys are lowercase dot-separated paths
// (e.g., "gallery.shape.color"). The priority of the events is decided by
// whoever loads the source.
type Source interface {
	// Name identifies the source in diagnostics (e.g., "file:gallery.yaml").
	Name() string

	// Load returns the assignments of the source. Missing optional sources
	// return no events.
	Load(ctx context.Context) ([]Event, error)

	// Watch emits ChangeEvent when the source changes. Returns
	// ErrWatchNotSupported if not supported.
	Watch(ctx context.Context) (<-chan ChangeEvent, error)
}

// ChangeEvent notifies of source changes.
type ChangeEvent struct {
	At    time.Time
	Cause string // Description (e.g., "file-changed")
}

// ErrWatchNotSupported is returned when watching is not supported.
var ErrWatchNotSupported = errors.New("armature: watch not supported by this source")

// Locator finds the configuration sources of a package, in increasing
// priority: system defaults first, then user overrides, then local ones.
type Locator interface {
	Locate(ctx context.Context, pkg string) ([]Source, error)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(ctx context.Context, pkg string) ([]Source, error)

func (f LocatorFunc) Locate(ctx context.Context, pkg string) ([]Source, error) {
	return f(ctx, pkg)
}

// StaticSource is a Source over a fixed list of events.
type StaticSource struct {
	ID     string
	Events []Event
}

func (s StaticSource) Name() string { return s.ID }

func (s StaticSource) Load(ctx context.Context) ([]Event, error) {
	out := make([]Event, len(s.Events))
	copy(out, s.Events)
	return out, nil
}

func (s StaticSource) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	return nil, ErrWatchNotSupported
}
