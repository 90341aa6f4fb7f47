package armature

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azhovan/armature/schema"
)

var userOrigin = Origin{Source: "file:user.yaml", Line: 3, Column: 7}

func newShape(t *testing.T) *ComponentType {
	t.Helper()
	shape, err := NewType("Shape",
		Family("gallery.shape"),
		WithTraits(
			Property("color", schema.String, WithDefault("black"), WithAliases("hue")),
			Property("size", schema.Int, WithDefault(1)),
		),
	)
	require.NoError(t, err)
	return shape
}

func newCircle(t *testing.T, shape *ComponentType) *ComponentType {
	t.Helper()
	circle, err := NewType("Circle",
		Family("gallery.circle"),
		Extends(shape),
		WithTraits(Property("radius", schema.Float, WithDefault(1.5))),
	)
	require.NoError(t, err)
	return circle
}

func TestNewType_Declaration(t *testing.T) {
	shape := newShape(t)

	assert.Equal(t, "Shape", shape.Name())
	assert.Equal(t, "gallery.shape", shape.Family())
	assert.Equal(t, "gallery", shape.Package())
	assert.Equal(t, Declared, shape.Phase())
	assert.Equal(t, []*ComponentType{shape}, shape.Pedigree())

	tr, ok := shape.Trait("hue")
	require.True(t, ok)
	assert.Equal(t, "color", tr.Name)
	assert.Equal(t, []string{"color", "hue"}, tr.Names())

	_, ok = shape.Trait("missing")
	assert.False(t, ok)
}

func TestNewType_DefaultFamily(t *testing.T) {
	typ, err := NewType("Widget")
	require.NoError(t, err)
	assert.Equal(t, "widget", typ.Family())
}

func TestNewType_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts []TypeOption
	}{
		{"dotted trait name", []TypeOption{WithTraits(Property("a.b", schema.String))}},
		{"empty trait name", []TypeOption{WithTraits(Property("", schema.String))}},
		{"trait declared twice", []TypeOption{WithTraits(Property("a", schema.String), Property("a", schema.Int))}},
		{"invalid family", []TypeOption{Family("..")}},
		{"malformed validator tag", []TypeOption{WithTraits(Property("size", schema.Int, WithValidators(schema.Tag("mni=1"))))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewType("Broken", tt.opts...)
			var de *DeclarationError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, "Broken", de.Subject)
		})
	}

	_, err := NewType("")
	assert.Error(t, err)
}

func TestNewType_DuplicateAlias(t *testing.T) {
	_, err := NewType("Broken", WithTraits(
		Property("color", schema.String, WithAliases("c")),
		Property("count", schema.Int, WithAliases("c")),
	))

	var de *DuplicateAliasError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "c", de.Alias)
	assert.Equal(t, "color", de.First)
	assert.Equal(t, "count", de.Second)
}

func TestNewType_InheritedAliasCollision(t *testing.T) {
	base := MustType("Base", WithTraits(Property("color", schema.String, WithAliases("hue"))))

	_, err := NewType("Derived", Extends(base), WithTraits(Property("hue", schema.String)))

	var de *DuplicateAliasError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "hue", de.Alias)
}

func TestNewType_Pedigree(t *testing.T) {
	// diamond: D(B, C), B(A), C(A)
	a := MustType("A", WithTraits(Property("x", schema.String, WithDefault("a"))))
	b := MustType("B", Extends(a), WithTraits(Property("x", schema.String, WithDefault("b"))))
	c := MustType("C", Extends(a), WithTraits(Property("y", schema.String, WithDefault("c"))))
	d := MustType("D", Extends(b, c))

	assert.Equal(t, []*ComponentType{d, b, c, a}, d.Pedigree())
	assert.True(t, d.IsA(a))
	assert.False(t, a.IsA(d))

	// B's declaration of x shadows A's
	v, err := d.Get("x")
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	names := make([]string, 0)
	for _, tr := range d.Traits() {
		names = append(names, tr.Name)
	}
	assert.Equal(t, []string{"x", "y"}, names)
}

func TestNewType_InconsistentHierarchy(t *testing.T) {
	a := MustType("A")
	b := MustType("B", Extends(a))

	_, err := NewType("C", Extends(a, b))

	var de *DeclarationError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Reason, "inconsistent")
}

func TestComponentType_FreshDefault(t *testing.T) {
	shape := newShape(t)

	for _, tr := range shape.Traits() {
		v, err := shape.Get(tr.Name)
		require.NoError(t, err)
		assert.Equal(t, tr.Default, v, tr.Name)
	}
}

func TestComponentType_SetTraitPriority(t *testing.T) {
	shape := newShape(t)

	applied, err := shape.SetTrait("color", "red", UserConfiguration, userOrigin)
	require.NoError(t, err)
	assert.True(t, applied)

	// lower priority is ignored
	applied, err = shape.SetTrait("color", "blue", PackageConfiguration, Origin{Source: "pkg"})
	require.NoError(t, err)
	assert.False(t, applied)

	// identical assignment is a no-op
	applied, err = shape.SetTrait("hue", "red", UserConfiguration, userOrigin)
	require.NoError(t, err)
	assert.False(t, applied)

	// same priority, new value: later wins
	applied, err = shape.SetTrait("color", "white", UserConfiguration, userOrigin)
	require.NoError(t, err)
	assert.True(t, applied)

	v, err := shape.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "white", v)

	origin, p, err := shape.Origin("hue")
	require.NoError(t, err)
	assert.Equal(t, userOrigin, origin)
	assert.Equal(t, UserConfiguration, p)
}

func TestComponentType_UnknownTrait(t *testing.T) {
	shape := newShape(t)

	_, err := shape.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = shape.SetTrait("nope", 1, UserConfiguration, userOrigin)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestComponentType_CastingOnRead(t *testing.T) {
	shape := newShape(t)

	applied, err := shape.SetTrait("size", "big", UserConfiguration, userOrigin)
	require.NoError(t, err, "conversion is lazy")
	assert.True(t, applied)

	_, err = shape.Get("size")
	var ce *CastingError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "big", ce.Value)
	assert.Equal(t, "int", ce.Constraint)
	assert.Equal(t, "gallery.shape.size", ce.Trait)
}

func TestComponentType_NonFiniteValue(t *testing.T) {
	shape := newShape(t)
	_, err := shape.SetTrait("size", math.NaN(), UserConfiguration, userOrigin)
	require.NoError(t, err)

	var ce *CastingError
	assert.NotPanics(t, func() {
		_, err = shape.Get("size")
	})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "gallery.shape.size", ce.Trait)
}

func TestComponentType_TemplateSetBeforeRegistration(t *testing.T) {
	ctx := context.Background()
	exec := New()
	palette := MustType("Palette", Family("gallery.palette"), WithTraits(Property("primary", schema.String, WithDefault("teal"))))
	shape := newShape(t)

	_, err := shape.SetTrait("color", "${gallery.palette.primary}", UserConfiguration, userOrigin)
	require.NoError(t, err)
	require.NoError(t, exec.RegisterType(ctx, palette))
	require.NoError(t, exec.RegisterType(ctx, shape))

	v, err := shape.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "teal", v)

	_, err = palette.SetTrait("primary", "navy", UserConfiguration, userOrigin)
	require.NoError(t, err)
	v, err = shape.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "navy", v)
}

func TestInheritance_Fallback(t *testing.T) {
	shape := newShape(t)
	circle := newCircle(t, shape)

	v, err := circle.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "black", v)

	so, sp, err := shape.Origin("color")
	require.NoError(t, err)
	co, cp, err := circle.Origin("color")
	require.NoError(t, err)
	assert.Equal(t, so, co)
	assert.Equal(t, sp, cp)

	tp, ok := circle.Provenance().Lookup("color")
	require.True(t, ok)
	assert.True(t, tp.Inherited)
	assert.Equal(t, "Shape", tp.Owner)
	assert.Equal(t, "gallery.circle.color", tp.KeyPath)

	// class-wide change on the ancestor flows down
	_, err = shape.SetTrait("color", "green", UserConfiguration, userOrigin)
	require.NoError(t, err)
	v, err = circle.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "green", v)

	// overriding the subtype leaves the ancestor alone
	_, err = circle.SetTrait("color", "blue", UserConfiguration, userOrigin)
	require.NoError(t, err)
	v, err = circle.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "blue", v)
	v, err = shape.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "green", v)

	tp, _ = circle.Provenance().Lookup("color")
	assert.False(t, tp.Inherited)
	assert.Equal(t, "Circle", tp.Owner)
}

func TestInheritance_MiddleLocalization(t *testing.T) {
	ctx := context.Background()
	exec := New()
	base := MustType("Base", Family("zoo.base"), WithTraits(Property("x", schema.Int, WithDefault(1))))
	mid := MustType("Mid", Family("zoo.mid"), Extends(base))
	leaf := MustType("Leaf", Family("zoo.leaf"), Extends(mid))

	inst, err := exec.NewInstance(ctx, leaf)
	require.NoError(t, err)
	v, err := inst.Get("x")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// mid gains its own value: the leaf and its live instance now read mid
	_, err = mid.SetTrait("x", 2, UserConfiguration, userOrigin)
	require.NoError(t, err)

	v, err = leaf.Get("x")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	v, err = inst.Get("x")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	v, err = base.Get("x")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestScenario_ShapeAlias(t *testing.T) {
	ctx := context.Background()
	exec := New()
	shape := newShape(t)

	s, err := exec.NewInstance(ctx, shape)
	require.NoError(t, err)

	hue, err := s.Get("hue")
	require.NoError(t, err)
	assert.Equal(t, "black", hue)

	_, err = s.SetTrait("color", "red", UserConfiguration, userOrigin)
	require.NoError(t, err)

	color, err := s.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "red", color)
	hue, err = s.Get("hue")
	require.NoError(t, err)
	assert.Equal(t, "red", hue)

	// the class value is untouched
	v, err := shape.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "black", v)
}

func TestAlias_RoundTrip(t *testing.T) {
	ctx := context.Background()
	exec := New()
	shape := newShape(t)
	s, err := exec.NewInstance(ctx, shape, WithName("s"))
	require.NoError(t, err)

	byAlias, err := s.Node("hue")
	require.NoError(t, err)
	byName, err := s.Node("color")
	require.NoError(t, err)
	assert.Same(t, byAlias, byName)

	require.NoError(t, s.Set("hue", "red"))
	after, err := s.Node("color")
	require.NoError(t, err)
	assert.Same(t, byName, after, "writes localize in place")

	v, err := s.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "red", v)
}

func TestScenario_CircleDefaultChange(t *testing.T) {
	ctx := context.Background()
	exec := New()
	shape := newShape(t)
	circle := newCircle(t, shape)

	first, err := exec.NewInstance(ctx, circle)
	require.NoError(t, err)
	v, err := first.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "black", v)

	require.NoError(t, shape.SetDefault("color", "white"))

	second, err := exec.NewInstance(ctx, circle)
	require.NoError(t, err)
	v, err = second.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "white", v)

	// the earlier instance keeps its cached value
	v, err = first.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "black", v)

	require.NoError(t, first.Invalidate("color"))
	v, err = first.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "white", v)

	tr, _ := circle.Trait("color")
	assert.Equal(t, "white", tr.Default)
}

func TestSetDefault_DropsUnreadNodes(t *testing.T) {
	shape := newShape(t)
	circle := newCircle(t, shape)

	for i := range 20 {
		_, err := circle.Get("color")
		require.NoError(t, err)
		require.NoError(t, shape.SetDefault("color", fmt.Sprintf("grey%d", i)))
	}
	assert.LessOrEqual(t, len(shape.retired), 1)
	assert.LessOrEqual(t, len(circle.retired), 1)

	v, err := circle.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "grey19", v)
}

func TestSetDefault_KeepsNodesReadByInstances(t *testing.T) {
	ctx := context.Background()
	exec := New()
	shape := newShape(t)
	circle := newCircle(t, shape)

	inst, err := exec.NewInstance(ctx, circle)
	require.NoError(t, err)
	_, err = inst.Get("color")
	require.NoError(t, err)

	require.NoError(t, shape.SetDefault("color", "white"))
	require.NoError(t, shape.SetDefault("color", "grey"))
	assert.NotEmpty(t, circle.retired)

	v, err := inst.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "black", v)
}

func TestSetDefault_KeepsConfiguredValue(t *testing.T) {
	shape := newShape(t)
	_, err := shape.SetTrait("color", "red", UserConfiguration, userOrigin)
	require.NoError(t, err)

	require.NoError(t, shape.SetDefault("color", "white"))

	v, err := shape.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "red", v)
}

func TestInstance_SetTraitDoesNotTouchType(t *testing.T) {
	ctx := context.Background()
	exec := New()
	shape := newShape(t)
	a, err := exec.NewInstance(ctx, shape, WithName("a"))
	require.NoError(t, err)
	b, err := exec.NewInstance(ctx, shape, WithName("b"))
	require.NoError(t, err)

	require.NoError(t, a.Set("size", 5))

	va, err := a.Get("size")
	require.NoError(t, err)
	vb, err := b.Get("size")
	require.NoError(t, err)
	assert.Equal(t, 5, va)
	assert.Equal(t, 1, vb)

	origin, p, err := a.Origin("size")
	require.NoError(t, err)
	assert.Equal(t, ExplicitOrigin, origin)
	assert.Equal(t, ExplicitConfiguration, p)

	origin, p, err = b.Origin("size")
	require.NoError(t, err)
	assert.Equal(t, DeclarationOrigin("Shape"), origin)
	assert.Equal(t, DefaultConfiguration, p)
}

func TestInstance_ValuesAndProvenance(t *testing.T) {
	ctx := context.Background()
	exec := New()
	shape := newShape(t)
	s, err := exec.NewInstance(ctx, shape, WithName("s"), WithValues(map[string]any{"size": "3"}))
	require.NoError(t, err)

	values, err := s.Values()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"color": "black", "size": 3}, values)

	prov := s.Provenance()
	require.Len(t, prov.Traits, 2)
	color, ok := prov.Lookup("color")
	require.True(t, ok)
	assert.True(t, color.Inherited)
	assert.Equal(t, "s.color", color.KeyPath)
	size, ok := prov.Lookup("size")
	require.True(t, ok)
	assert.False(t, size.Inherited)
	assert.Equal(t, "s", size.Owner)
}

func TestInconsistentInventory(t *testing.T) {
	shape := newShape(t)
	// an alias table entry nobody declares
	shape.inv.names["ghost"] = "ghost"

	_, err := shape.Get("ghost")
	assert.True(t, errors.Is(err, ErrInconsistentInventory))
}
