package armature

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxSnapshotSize is the maximum allowed snapshot size (100MB).
const MaxSnapshotSize = 100 * 1024 * 1024

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = "1.0"

// Snapshot errors.
var (
	// ErrSnapshotTooLarge is returned when a snapshot exceeds MaxSnapshotSize.
	ErrSnapshotTooLarge = errors.New("armature: snapshot exceeds 100MB size limit")

	// ErrNilSnapshot is returned when there is nothing to capture or write.
	ErrNilSnapshot = errors.New("armature: snapshot is nil")
)

// ConfigSnapshot is a point-in-time capture of every registered type and
// live instance.
type ConfigSnapshot struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`

	// Values maps fully qualified keys (e.g., "gallery.shape.color") to the
	// evaluated values. Traits that fail to evaluate are left out.
	Values map[string]any `json:"values"`

	// Provenance lists where each value came from, in key order.
	Provenance []SnapshotEntry `json:"provenance"`
}

// SnapshotEntry is the provenance of one captured value.
type SnapshotEntry struct {
	KeyPath   string `json:"key_path"`
	Priority  string `json:"priority"`
	Source    string `json:"source"`
	Inherited bool   `json:"inherited,omitempty"`
	Owner     string `json:"owner"`
	Error     string `json:"error,omitempty"`
}

// SnapshotOption configures snapshot creation behavior.
type SnapshotOption func(*snapshotConfig)

type snapshotConfig struct {
	excludeKeys []string
	noInstances bool
}

// WithExcludeKeys leaves the given key paths (or everything under them) out
// of the snapshot.
func WithExcludeKeys(paths ...string) SnapshotOption {
	return func(cfg *snapshotConfig) {
		cfg.excludeKeys = append(cfg.excludeKeys, paths...)
	}
}

// WithoutInstances captures the class-level values only.
func WithoutInstances() SnapshotOption {
	return func(cfg *snapshotConfig) {
		cfg.noInstances = true
	}
}

// CreateSnapshot captures the current values and their provenance.
func CreateSnapshot(e *Executive, opts ...SnapshotOption) (*ConfigSnapshot, error) {
	if e == nil {
		return nil, ErrNilSnapshot
	}
	cfg := &snapshotConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	snap := &ConfigSnapshot{
		Version:   SnapshotVersion,
		Timestamp: time.Now().UTC(),
		Values:    make(map[string]any),
	}

	var subjects []Describer
	for _, t := range e.registrar.Types() {
		subjects = append(subjects, t)
		if cfg.noInstances {
			continue
		}
		for _, inst := range e.registrar.InstancesOf(t) {
			subjects = append(subjects, inst)
		}
	}

	for _, d := range subjects {
		for _, td := range collectTraits(d) {
			if excluded(td.keyPath, cfg.excludeKeys) {
				continue
			}
			entry := SnapshotEntry{
				KeyPath:  td.keyPath,
				Priority: td.priority.String(),
				Source:   td.origin.String(),
				Owner:    d.Name(),
			}
			if tp, ok := d.Provenance().Lookup(td.trait); ok {
				entry.Inherited = tp.Inherited
				entry.Owner = tp.Owner
			}
			if td.err != nil {
				entry.Error = td.err.Error()
			} else {
				snap.Values[td.keyPath] = formatValueForJSON(td)
			}
			snap.Provenance = append(snap.Provenance, entry)
		}
	}
	return snap, nil
}

func excluded(key string, exclude []string) bool {
	for _, path := range exclude {
		path = strings.ToLower(path)
		if key == path || strings.HasPrefix(key, path+".") {
			return true
		}
	}
	return false
}

// ExpandPathWithTime replaces every {{timestamp}} in template with t
// formatted as 20060102-150405.
func ExpandPathWithTime(template string, t time.Time) string {
	return strings.ReplaceAll(template, "{{timestamp}}", t.UTC().Format("20060102-150405"))
}

// WriteSnapshot persists a snapshot atomically. The {{timestamp}} template
// variable in the path expands to the snapshot's own timestamp.
func WriteSnapshot(snapshot *ConfigSnapshot, pathTemplate string) error {
	if snapshot == nil {
		return ErrNilSnapshot
	}
	targetPath := ExpandPathWithTime(pathTemplate, snapshot.Timestamp)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	if len(data) > MaxSnapshotSize {
		return ErrSnapshotTooLarge
	}

	if dir := filepath.Dir(targetPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}

	tempPath := targetPath + ".tmp." + uuid.NewString()
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	if err := os.Rename(tempPath, targetPath); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return nil
}
