// Package armature configures trees of components from layered sources.
//
// A ComponentType declares traits (typed, defaulted, validated attributes),
// inherits the traits of its parent types and implements protocols. Every
// trait value lives in a slot backed by a lazy calc.Node, so values may be
// literals, HCL expressions or templates referring to other traits by their
// dotted key ("${gallery.shape.size * 2}"). Instances read through to the
// nearest ancestor that holds a value until they get their own.
//
// Quick Start:
//
//	shape := armature.MustType("Shape",
//	    armature.Family("gallery.shape"),
//	    armature.WithTraits(
//	        armature.Property("color", schema.String, armature.WithDefault("black")),
//	        armature.Property("size", schema.Float, armature.WithDefault(1)),
//	    ))
//
//	exec := armature.New(armature.WithLocator(sourcefile.NewLocator(dirs...)))
//	_ = exec.Boot(ctx, sourceenv.New(sourceenv.Options{Prefix: "APP_"}))
//	_ = exec.RegisterType(ctx, shape)
//	_ = exec.InitializeType(ctx, shape)
//	s, err := exec.NewInstance(ctx, shape, armature.WithName("s"))
//
// Assignments carry a priority (default < boot < package < user <
// explicit); within one priority the later assignment wins. Keys address a
// family ("gallery.shape.color") or an instance by name ("s.color").
//
// See example_test.go for a complete walkthrough.
package armature
