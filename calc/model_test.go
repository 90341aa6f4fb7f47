package calc

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpression(t *testing.T) {
	m := NewModel()
	require.NoError(t, m.Assign("gallery.base", 4))
	require.NoError(t, m.Assign("gallery.scale", 2.5))

	n, err := ParseExpression("area", "gallery.base * gallery.scale", m)
	require.NoError(t, err)
	assert.Equal(t, Expression, n.Kind())
	assert.Len(t, n.Operands(), 2)

	v, err := n.Value()
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	require.NoError(t, m.Assign("gallery.base", 6))
	v, err = n.Value()
	require.NoError(t, err)
	assert.Equal(t, 15, v)
}

func TestParseExpression_Functions(t *testing.T) {
	m := NewModel()
	require.NoError(t, m.Assign("shape.color", "red"))

	tests := []struct {
		src  string
		want any
	}{
		{src: `upper(shape.color)`, want: "RED"},
		{src: `max(1, 7, 3)`, want: 7},
		{src: `format("%s-%d", shape.color, 2)`, want: "red-2"},
		{src: `join("/", ["a", shape.color])`, want: "a/red"},
		{src: `trimspace("  x ")`, want: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			n, err := ParseExpression("f", tt.src, m)
			require.NoError(t, err)
			v, err := n.Value()
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestParseExpression_SyntaxError(t *testing.T) {
	_, err := ParseExpression("bad", "a +", NewModel())
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "bad", pe.Name)
}

func TestParseTemplate(t *testing.T) {
	m := NewModel()
	require.NoError(t, m.Assign("sample.configuration.p1", "sample"))
	require.NoError(t, m.Assign("sample.size", 3))

	t.Run("mixed text", func(t *testing.T) {
		n, err := ParseTemplate("p1", "${sample.configuration.p1} - instance", m)
		require.NoError(t, err)
		assert.Equal(t, Interpolation, n.Kind())
		v, err := n.Value()
		require.NoError(t, err)
		assert.Equal(t, "sample - instance", v)
	})

	t.Run("single interpolation keeps its type", func(t *testing.T) {
		n, err := ParseTemplate("size", "${sample.size}", m)
		require.NoError(t, err)
		v, err := n.Value()
		require.NoError(t, err)
		assert.Equal(t, 3, v)
	})

	t.Run("undefined name is unresolved", func(t *testing.T) {
		n, err := ParseTemplate("ghost", "${sample.missing}", m)
		require.NoError(t, err)
		_, err = n.Value()
		var ue *UnresolvedError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, "sample.missing", ue.Name)
	})
}

func TestRecognize(t *testing.T) {
	m := NewModel()
	target := NewLiteral("t", 1)

	n, err := Recognize("r", target, m)
	require.NoError(t, err)
	assert.Equal(t, Reference, n.Kind())

	n, err = Recognize("s", "plain", m)
	require.NoError(t, err)
	assert.Equal(t, Literal, n.Kind())

	n, err = Recognize("i", "${t}", m)
	require.NoError(t, err)
	assert.Equal(t, Interpolation, n.Kind())

	n, err = Recognize("x", 42, m)
	require.NoError(t, err)
	assert.Equal(t, 42, n.Literal())
}

func TestModel_LookupBeforeDefine(t *testing.T) {
	m := NewModel()
	reader, err := ParseExpression("reader", "shape.radius + 1", m)
	require.NoError(t, err)

	_, err = reader.Value()
	var ue *UnresolvedError
	require.ErrorAs(t, err, &ue)
	assert.False(t, m.Defined("shape.radius"))

	slot := NewLiteral("shape.radius", 2)
	m.Define("shape.radius", slot)
	assert.True(t, m.Defined("shape.radius"))

	v, err := reader.Value()
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	// rebinding the name swaps the slot underneath its readers
	fresh := NewLiteral("shape.radius", 9)
	m.Define("shape.radius", fresh)
	v, err = reader.Value()
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	// the model does not own slots
	runtime.KeepAlive(slot)
	runtime.KeepAlive(fresh)
}

func TestModel_Fallback(t *testing.T) {
	slots := map[string]*Node{"c.p1": NewLiteral("c.p1", "hello")}
	m := NewModel(WithFallback(func(name string) *Node { return slots[name] }))

	v, err := m.Lookup("c.p1").Value()
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	_, err = m.Lookup("c.p2").Value()
	assert.Error(t, err)
}

func TestModel_LooseAndForget(t *testing.T) {
	m := NewModel()
	require.NoError(t, m.Assign("gallery.shape.color", "red"))
	require.NoError(t, m.Assign("gallery.shape.size", 2))
	require.NoError(t, m.Assign("other.key", true))

	assert.Equal(t, []string{"gallery.shape.color", "gallery.shape.size"}, m.Loose("gallery"))
	assert.Len(t, m.Loose(""), 3)

	m.Define("gallery.shape.color", NewLiteral("slot", "red"))
	assert.Equal(t, []string{"gallery.shape.size"}, m.Loose("gallery"))

	held := m.Lookup("gallery.shape.size")
	m.Forget("gallery")
	assert.Equal(t, []string{"other.key"}, m.Names())

	_, err := held.Value()
	var ue *UnresolvedError
	assert.ErrorAs(t, err, &ue)

	m.Clear()
	assert.Empty(t, m.Names())
}

func TestEvalContext_NameConflict(t *testing.T) {
	_, err := evalContext([]string{"a", "a.b"}, []any{1, 2})
	assert.Error(t, err)
}
