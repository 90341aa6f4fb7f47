// Package calc implements the lazy value graph that backs every trait slot.
//
// A Node is a literal, an expression over other nodes, a string template, a
// reference to another node, or an unresolved placeholder for a name nobody
// has defined yet. Values are computed on first read, run through the node's
// processor (conversion and validation), and cached until the node or any
// node it depends on is redefined.
//
//	a := calc.NewLiteral("a", 2)
//	b := calc.NewLiteral("b", 3)
//	sum := calc.NewExpression("sum", calc.Sum, a, b)
//	v, _ := sum.Value() // 5
//	a.Set(10)           // sum is invalidated, not recomputed
//	v, _ = sum.Value()  // 13
//
// Expressions and templates use HCL native syntax:
//
//	model := calc.NewModel()
//	model.Assign("gallery.base", 4)
//	n, _ := calc.ParseTemplate("label", "size ${gallery.base * 2}", model)
//
// References are non-owning: a Reference never keeps its target alive.
package calc
