package sourcefile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/Azhovan/armature"
	"github.com/Azhovan/armature/internal/normalize"
)

// Options configures file source behavior.
type Options struct {
	// Format: "yaml", "json", or "toml". Auto-detected from extension if empty.
	Format string

	// Required: if true, missing files cause an error. Default: false (no events).
	Required bool
}

type fileSource struct {
	path string
	opts Options
}

// New creates a file-based configuration source.
func New(path string, opts Options) armature.Source {
	return &fileSource{
		path: path,
		opts: opts,
	}
}

// Load reads and parses the file. Nested mappings become dotted keys; YAML
// values carry their line and column.
func (f *fileSource) Load(ctx context.Context) ([]armature.Event, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			if f.opts.Required {
				return nil, fmt.Errorf("required config file not found: %s: %w", f.path, err)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("read config file %s: %w", f.path, err)
	}

	format := f.opts.Format
	if format == "" {
		format = inferFormat(f.path)
	}

	var raw map[string]any
	switch format {
	case "yaml", "yml":
		return f.loadYAML(data)
	case "json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse JSON file %s: %w", f.path, err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse TOML file %s: %w", f.path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: yaml, json, toml)", format)
	}

	var events []armature.Event
	origin := armature.Origin{Source: f.Name(), File: f.path}
	flattenMap(nil, raw, func(key []string, value any) {
		events = append(events, armature.Event{Key: key, Value: value, Origin: origin})
	})
	return events, nil
}

func (f *fileSource) loadYAML(data []byte) ([]armature.Event, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse YAML file %s: %w", f.path, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse YAML file %s: top level must be a mapping", f.path)
	}

	var events []armature.Event
	err := walkYAML(nil, root, func(key []string, n *yaml.Node) error {
		var value any
		if err := n.Decode(&value); err != nil {
			return fmt.Errorf("decode %s at line %d: %w", normalize.Join(key), n.Line, err)
		}
		events = append(events, armature.Event{
			Key:   key,
			Value: value,
			Origin: armature.Origin{
				Source: f.Name(),
				File:   f.path,
				Line:   n.Line,
				Column: n.Column,
			},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse YAML file %s: %w", f.path, err)
	}
	return events, nil
}

// walkYAML visits the leaves of a mapping in document order. Sequences are
// leaves.
func walkYAML(prefix []string, n *yaml.Node, visit func(key []string, n *yaml.Node) error) error {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind != yaml.MappingNode {
		if len(prefix) == 0 {
			return nil
		}
		return visit(prefix, n)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := append(slices.Clip(prefix), normalize.Split(n.Content[i].Value)...)
		if err := walkYAML(key, n.Content[i+1], visit); err != nil {
			return err
		}
	}
	return nil
}

// flattenMap visits the leaves of nested maps in key order.
func flattenMap(prefix []string, value any, visit func(key []string, value any)) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			flattenMap(append(slices.Clip(prefix), normalize.Split(k)...), v[k], visit)
		}
	default:
		if len(prefix) > 0 {
			visit(prefix, value)
		}
	}
}

// Watch reports writes, creations and removals of the file. The parent
// directory is watched so that editors replacing the file are noticed.
func (f *fileSource) Watch(ctx context.Context) (<-chan armature.ChangeEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	abs, err := filepath.Abs(f.path)
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	out := make(chan armature.ChangeEvent)
	go func() {
		defer close(out)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case out <- armature.ChangeEvent{At: time.Now(), Cause: "file-changed: " + filepath.Base(abs)}:
				case <-ctx.Done():
					return
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

// Name returns a human-readable identifier for this source.
func (f *fileSource) Name() string {
	return "file:" + filepath.Base(f.path)
}

func inferFormat(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	default:
		return ""
	}
}

// extensions are tried in this order inside every search directory.
var extensions = []string{".yaml", ".yml", ".toml", ".json"}

// Locator finds package configuration files named after the package
// ("gallery.yaml") in an ordered list of directories.
type Locator struct {
	dirs []string
}

// NewLocator searches dirs in order. List them from least to most specific
// (system, user, local): later files override earlier ones.
func NewLocator(dirs ...string) *Locator {
	return &Locator{dirs: slices.Clone(dirs)}
}

// Locate returns a source per existing configuration file of pkg.
func (l *Locator) Locate(ctx context.Context, pkg string) ([]armature.Source, error) {
	var sources []armature.Source
	for _, dir := range l.dirs {
		for _, ext := range extensions {
			path := filepath.Join(dir, pkg+ext)
			info, err := os.Stat(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				return nil, fmt.Errorf("locate %s: %w", path, err)
			}
			if info.IsDir() {
				continue
			}
			sources = append(sources, New(path, Options{}))
		}
	}
	return sources, nil
}
