// Package sourcefile loads configuration from YAML, JSON, or TOML files.
//
// Format is auto-detected from extension (.yaml, .json, .toml). Nested
// mappings flatten into dotted keys; values read from YAML remember their
// line and column.
//
// Example:
//
//	source := sourcefile.New("gallery.yaml", sourcefile.Options{Required: true})
//	err := exec.LoadSource(ctx, source, armature.UserConfiguration)
//
// A Locator finds the package configuration files an executive loads when
// the first type of a package registers:
//
//	exec := armature.New(armature.WithLocator(
//	    sourcefile.NewLocator("/etc/app", home+"/.config/app", "./config")))
package sourcefile
