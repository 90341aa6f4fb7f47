package sourceenv

import (
	"context"
	"os"
	"slices"
	"strings"

	"github.com/Azhovan/armature"
	"github.com/Azhovan/armature/internal/normalize"
)

// Options configures environment variable source behavior.
type Options struct {
	// Prefix filters vars starting with prefix (stripped before normalization).
	// Empty = load all vars.
	// Prefix matching behavior is controlled by CaseSensitive.
	Prefix string

	// CaseSensitive controls prefix matching (default: false).
	// When false, prefix matching is case-insensitive (APP_ matches app_, App_, etc.).
	// When true, prefix must match exactly.
	// Keys are always normalized to lowercase after prefix stripping.
	CaseSensitive bool
}

type envSource struct {
	opts Options
}

// New creates an environment variable source.
func New(opts Options) armature.Source {
	return &envSource{opts: opts}
}

// Load scans environment variables, filters by prefix, and normalizes keys.
// Events come out sorted by variable name.
func (e *envSource) Load(ctx context.Context) ([]armature.Event, error) {
	environ := os.Environ()
	slices.Sort(environ)

	var events []armature.Event
	for _, env := range environ {
		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}

		key := name
		if e.opts.Prefix != "" {
			var hasPrefix bool
			if e.opts.CaseSensitive {
				hasPrefix = strings.HasPrefix(key, e.opts.Prefix)
			} else {
				hasPrefix = strings.HasPrefix(strings.ToUpper(key), strings.ToUpper(e.opts.Prefix))
			}
			if !hasPrefix {
				continue
			}
			key = key[len(e.opts.Prefix):]
		}

		// Normalize: GALLERY__SHAPE__COLOR → gallery.shape.color
		levels := normalize.Split(normalize.ToLowerDotPath(key))
		if len(levels) == 0 {
			continue
		}
		events = append(events, armature.Event{
			Key:    levels,
			Value:  value,
			Origin: armature.Origin{Source: "env:" + name},
		})
	}
	return events, nil
}

// Watch returns ErrWatchNotSupported (env vars don't change at runtime).
func (e *envSource) Watch(ctx context.Context) (<-chan armature.ChangeEvent, error) {
	return nil, armature.ErrWatchNotSupported
}

// Name returns a human-readable identifier for this source.
func (e *envSource) Name() string {
	if e.opts.Prefix == "" {
		return "env"
	}
	return "env:" + e.opts.Prefix + "*"
}
