package sourcefile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azhovan/armature"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func byKey(events []armature.Event) map[string]armature.Event {
	out := make(map[string]armature.Event, len(events))
	for _, e := range events {
		out[e.Path()] = e
	}
	return out
}

func TestFileSource_Load_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "gallery.yaml", `gallery:
  shape:
    color: red
    size: 3
  circle:
    radius: 1.5
tags:
  - a
  - b
`)

	events, err := New(path, Options{}).Load(context.Background())
	require.NoError(t, err)

	got := byKey(events)
	require.Len(t, got, 4)
	assert.Equal(t, "red", got["gallery.shape.color"].Value)
	assert.Equal(t, 3, got["gallery.shape.size"].Value)
	assert.Equal(t, 1.5, got["gallery.circle.radius"].Value)
	assert.Equal(t, []any{"a", "b"}, got["tags"].Value)

	origin := got["gallery.shape.color"].Origin
	assert.Equal(t, "file:gallery.yaml", origin.Source)
	assert.Equal(t, path, origin.File)
	assert.Equal(t, 3, origin.Line)
	assert.Equal(t, 12, origin.Column)
}

func TestFileSource_Load_YAMLDocumentOrder(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "z: 1\na: 2\nm: 3\n")

	events, err := New(path, Options{}).Load(context.Background())
	require.NoError(t, err)

	var keys []string
	for _, e := range events {
		keys = append(keys, e.Path())
	}
	assert.Equal(t, []string{"z", "a", "m"}, keys)
}

func TestFileSource_Load_YAMLDottedKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "gallery.shape:\n  color: blue\n")

	events, err := New(path, Options{}).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"gallery", "shape", "color"}, events[0].Key)
}

func TestFileSource_Load_YAMLNotAMapping(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "- a\n- b\n")

	_, err := New(path, Options{}).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapping")
}

func TestFileSource_Load_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.json", `{
  "gallery": {"shape": {"color": "white", "size": 2}},
  "debug": true
}`)

	events, err := New(path, Options{}).Load(context.Background())
	require.NoError(t, err)

	got := byKey(events)
	assert.Equal(t, "white", got["gallery.shape.color"].Value)
	assert.Equal(t, float64(2), got["gallery.shape.size"].Value) // JSON numbers are float64
	assert.Equal(t, true, got["debug"].Value)
	assert.Equal(t, "file:config.json", got["debug"].Origin.Source)
	assert.Zero(t, got["debug"].Origin.Line)

	// keys are visited in sorted order
	assert.Equal(t, "debug", events[0].Path())
}

func TestFileSource_Load_TOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", `
[gallery.shape]
color = "black"
size = 4
`)

	events, err := New(path, Options{}).Load(context.Background())
	require.NoError(t, err)

	got := byKey(events)
	assert.Equal(t, "black", got["gallery.shape.color"].Value)
	assert.Equal(t, int64(4), got["gallery.shape.size"].Value)
}

func TestFileSource_Load_ExplicitFormat(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.conf", "a:\n  b: 1\n")

	events, err := New(path, Options{Format: "yaml"}).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "a.b", events[0].Path())
}

func TestFileSource_Load_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		opts    Options
		wantErr string
	}{
		{
			name:    "unsupported format",
			path:    writeFile(t, dir, "config.ini", "a=1"),
			wantErr: "unsupported file format",
		},
		{
			name:    "invalid yaml",
			path:    writeFile(t, dir, "bad.yaml", "a: [1, 2"),
			wantErr: "parse YAML file",
		},
		{
			name:    "invalid json",
			path:    writeFile(t, dir, "bad.json", "{"),
			wantErr: "parse JSON file",
		},
		{
			name:    "invalid toml",
			path:    writeFile(t, dir, "bad.toml", "a = "),
			wantErr: "parse TOML file",
		},
		{
			name:    "required file missing",
			path:    filepath.Join(dir, "missing.yaml"),
			opts:    Options{Required: true},
			wantErr: "required config file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.path, tt.opts).Load(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFileSource_Load_OptionalMissing(t *testing.T) {
	events, err := New(filepath.Join(t.TempDir(), "missing.yaml"), Options{}).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFileSource_Name(t *testing.T) {
	assert.Equal(t, "file:config.yaml", New("/etc/app/config.yaml", Options{}).Name())
}

func TestFileSource_Watch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "gallery.yaml", "a: 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := New(path, Options{}).Watch(ctx)
	require.NoError(t, err)

	// unrelated files in the same directory are ignored
	writeFile(t, dir, "other.yaml", "b: 2\n")
	require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0644))

	select {
	case ev := <-ch:
		assert.Contains(t, ev.Cause, "gallery.yaml")
		assert.False(t, ev.At.IsZero())
	case <-time.After(5 * time.Second):
		t.Fatal("no change event")
	}

	cancel()
	for range ch {
	}
}

func TestLocator_Locate(t *testing.T) {
	system := t.TempDir()
	user := t.TempDir()
	writeFile(t, system, "gallery.yaml", "gallery:\n  shape:\n    color: black\n")
	writeFile(t, user, "gallery.toml", "[gallery.shape]\ncolor = \"red\"\n")
	writeFile(t, user, "other.yaml", "x: 1\n")
	require.NoError(t, os.Mkdir(filepath.Join(user, "gallery.json"), 0755))

	loc := NewLocator(system, user, filepath.Join(t.TempDir(), "absent"))
	sources, err := loc.Locate(context.Background(), "gallery")
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "file:gallery.yaml", sources[0].Name())
	assert.Equal(t, "file:gallery.toml", sources[1].Name())

	events, err := sources[1].Load(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "red", events[0].Value)
}

func TestLocator_ImplementsLocator(t *testing.T) {
	var loc armature.Locator = NewLocator()
	sources, err := loc.Locate(context.Background(), "gallery")
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestFileSource_WatchMissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope", "c.yaml"), Options{}).Watch(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, armature.ErrWatchNotSupported))
}
