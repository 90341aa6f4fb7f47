package calc

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/Azhovan/armature/internal/ctyconv"
	"github.com/Azhovan/armature/internal/normalize"
)

// Resolver maps a dotted name to the node that defines it.
// Implementations return a placeholder rather than nil for unknown names.
type Resolver interface {
	Lookup(name string) *Node
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(name string) *Node

func (f ResolverFunc) Lookup(name string) *Node { return f(name) }

// Functions is the function table available to expressions and templates.
var Functions = map[string]function.Function{
	"upper":     stdlib.UpperFunc,
	"lower":     stdlib.LowerFunc,
	"join":      stdlib.JoinFunc,
	"format":    stdlib.FormatFunc,
	"min":       stdlib.MinFunc,
	"max":       stdlib.MaxFunc,
	"abs":       stdlib.AbsoluteFunc,
	"concat":    stdlib.ConcatFunc,
	"length":    stdlib.LengthFunc,
	"coalesce":  stdlib.CoalesceFunc,
	"trimspace": stdlib.TrimSpaceFunc,
}

// ParseExpression parses src as an HCL native expression. Every variable
// traversal such as gallery.shape.color becomes an operand resolved by its
// dotted name.
func ParseExpression(name, src string, resolver Resolver) (*Node, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), name, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, &ParseError{Name: name, Source: src, Err: diags}
	}
	n, err := fromHCL(name, expr, resolver)
	if err != nil {
		return nil, err
	}
	n.kind = Expression
	n.source = src
	return n, nil
}

// ParseTemplate parses src as an HCL template ("${a.b} and ${c}").
// A template made of a single interpolation yields the unwrapped value with
// its own type.
func ParseTemplate(name, src string, resolver Resolver) (*Node, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(src), name, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, &ParseError{Name: name, Source: src, Err: diags}
	}
	n, err := fromHCL(name, expr, resolver)
	if err != nil {
		return nil, err
	}
	n.kind = Interpolation
	n.source = src
	return n, nil
}

// Recognize builds the node a configuration value stands for: a node becomes
// a reference to it, a string containing "${" becomes a template, anything
// else a literal.
func Recognize(name string, value any, resolver Resolver) (*Node, error) {
	switch v := value.(type) {
	case *Node:
		return v.NewReference(name), nil
	case string:
		if strings.Contains(v, "${") && resolver != nil {
			return ParseTemplate(name, v, resolver)
		}
	}
	return NewLiteral(name, value), nil
}

func fromHCL(name string, expr hclsyntax.Expression, resolver Resolver) (*Node, error) {
	var names []string
	seen := make(map[string]struct{})
	for _, tr := range expr.Variables() {
		key := traversalName(tr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, key)
	}

	if len(names) > 0 && resolver == nil {
		return nil, &ParseError{Name: name, Source: "", Err: fmt.Errorf("expression references %v but no resolver was given", names)}
	}

	operands := make([]*Node, len(names))
	for i, key := range names {
		operands[i] = resolver.Lookup(key)
	}

	combine := func(args []any) (any, error) {
		ctx, err := evalContext(names, args)
		if err != nil {
			return nil, err
		}
		val, diags := expr.Value(ctx)
		if diags.HasErrors() {
			return nil, diags
		}
		return ctyconv.FromValue(val)
	}

	return NewExpression(name, combine, operands...), nil
}

// traversalName joins the root and the attribute steps of a traversal up to
// the first index step.
func traversalName(tr hcl.Traversal) string {
	levels := []string{tr.RootName()}
	for _, step := range tr[1:] {
		attr, ok := step.(hcl.TraverseAttr)
		if !ok {
			break
		}
		levels = append(levels, attr.Name)
	}
	return normalize.Join(levels)
}

// namespace is an intermediate level of a dotted name, kept apart from map
// values so that user data is never mutated.
type namespace map[string]any

// evalContext nests the dotted operand names into cty objects so that HCL
// can walk a.b.c through attribute access.
func evalContext(names []string, args []any) (*hcl.EvalContext, error) {
	tree := make(namespace)
	for i, key := range names {
		levels := normalize.Split(key)
		cur := tree
		for j, level := range levels {
			next, exists := cur[level]
			if j == len(levels)-1 {
				if _, isNS := next.(namespace); isNS {
					return nil, fmt.Errorf("name %q is both a value and a namespace", key)
				}
				cur[level] = args[i]
				break
			}
			if !exists {
				ns := make(namespace)
				cur[level] = ns
				cur = ns
				continue
			}
			ns, ok := next.(namespace)
			if !ok {
				return nil, fmt.Errorf("name %q is both a value and a namespace", key)
			}
			cur = ns
		}
	}

	vars := make(map[string]cty.Value, len(tree))
	for root, v := range tree {
		cv, err := namespaceValue(v)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", root, err)
		}
		vars[root] = cv
	}
	return &hcl.EvalContext{Variables: vars, Functions: Functions}, nil
}

func namespaceValue(v any) (cty.Value, error) {
	ns, ok := v.(namespace)
	if !ok {
		return ctyconv.ToValue(v)
	}
	attrs := make(map[string]cty.Value, len(ns))
	for k, child := range ns {
		cv, err := namespaceValue(child)
		if err != nil {
			return cty.NilVal, err
		}
		attrs[k] = cv
	}
	return cty.ObjectVal(attrs), nil
}
