// Package sourceenv loads configuration from environment variables.
//
// Key normalization: GALLERY__SHAPE__COLOR → gallery.shape.color, FOO_BAR → foo_bar
//
// Example:
//
//	source := sourceenv.New(sourceenv.Options{Prefix: "APP_"})
//	err := exec.Boot(ctx, source)
package sourceenv
