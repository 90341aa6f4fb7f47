package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEventsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gallery:\n  shape:\n    color: red\n"), 0644))

	out, err := run(t, "events", path)
	require.NoError(t, err)
	assert.Equal(t, "gallery.shape.color = red (file:gallery.yaml:3:12)\n", out)
}

func TestEventsCommand_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a": {"b": 1}}`), 0644))

	out, err := run(t, "events", "--json", path)
	require.NoError(t, err)

	var views []eventView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "a.b", views[0].Key)
	assert.Equal(t, float64(1), views[0].Value)
	assert.Equal(t, "file:gallery.json", views[0].Origin)
}

func TestEventsCommand_MissingFile(t *testing.T) {
	_, err := run(t, "events", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required config file not found")
}

func TestEnvCommand(t *testing.T) {
	t.Setenv("ARMCLI_GALLERY__SHAPE__SIZE", "3")

	out, err := run(t, "env", "--prefix", "ARMCLI_")
	require.NoError(t, err)
	assert.Equal(t, "gallery.shape.size = 3 (env:ARMCLI_GALLERY__SHAPE__SIZE)\n", out)
}

func TestEvalCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gallery:\n  size: 4\n  label: \"size ${gallery.size}\"\n"), 0644))

	out, err := run(t, "eval", "--file", path, "gallery.size * 2")
	require.NoError(t, err)
	assert.Equal(t, "8\n", out)

	out, err = run(t, "eval", "-f", path, "upper(gallery.label)")
	require.NoError(t, err)
	assert.Equal(t, "SIZE 4\n", out)
}

func TestEvalCommand_Unresolved(t *testing.T) {
	_, err := run(t, "eval", "missing.value + 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.value")
}
