package calc

import (
	"errors"
	"fmt"
	"weak"
)

// Kind identifies how a node produces its value.
type Kind int

const (
	Literal Kind = iota
	Expression
	Interpolation
	Reference
	Unresolved
)

func (k Kind) String() string {
	switch k {
	case Literal:
		return "literal"
	case Expression:
		return "expression"
	case Interpolation:
		return "interpolation"
	case Reference:
		return "reference"
	case Unresolved:
		return "unresolved"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Combinator computes an expression value from the values of its operands,
// in operand order.
type Combinator func(args []any) (any, error)

// Processor converts and validates a freshly computed value before it is
// cached. A slot installs one on the nodes it owns.
type Processor func(v any) (any, error)

type mark uint8

const (
	unvisited mark = iota
	inProgress
	done
)

// Node is a vertex of the value graph.
// Nodes are not safe for concurrent use.
type Node struct {
	name string
	kind Kind

	literal  any
	operands []*Node
	combine  Combinator
	source   string
	target   weak.Pointer[Node]

	cache any
	state mark

	dependents map[weak.Pointer[Node]]struct{}
	process    Processor
}

// NewLiteral returns a node holding v.
func NewLiteral(name string, v any) *Node {
	return &Node{name: name, kind: Literal, literal: v}
}

// NewUnresolved returns a placeholder for a name nothing defines yet.
func NewUnresolved(name string) *Node {
	return &Node{name: name, kind: Unresolved}
}

// NewExpression returns a node whose value is combine applied to the values
// of operands.
func NewExpression(name string, combine Combinator, operands ...*Node) *Node {
	n := &Node{name: name, kind: Expression, combine: combine}
	n.link(operands, weak.Pointer[Node]{})
	return n
}

// NewReference returns a node that evaluates to the value of n without
// owning it.
func (n *Node) NewReference(name string) *Node {
	r := &Node{name: name, kind: Reference}
	r.link(nil, weak.Make(n))
	return r
}

func (n *Node) Name() string { return n.name }
func (n *Node) Kind() Kind   { return n.kind }

// Source returns the expression or template text the node was parsed from.
func (n *Node) Source() string { return n.source }

// Literal returns the raw literal held by a Literal node.
func (n *Node) Literal() any { return n.literal }

// Target returns the node a Reference points at, or nil.
func (n *Node) Target() *Node {
	if n.kind != Reference {
		return nil
	}
	return n.target.Value()
}

// Operands returns the nodes an expression or template reads.
func (n *Node) Operands() []*Node {
	return append([]*Node(nil), n.operands...)
}

// Dependents returns the live nodes that read this one.
func (n *Node) Dependents() []*Node {
	out := make([]*Node, 0, len(n.dependents))
	for wp := range n.dependents {
		if d := wp.Value(); d != nil {
			out = append(out, d)
		} else {
			delete(n.dependents, wp)
		}
	}
	return out
}

// Cached returns the cached value, if the node has been evaluated since its
// last invalidation.
func (n *Node) Cached() (any, bool) {
	if n.state != done {
		return nil, false
	}
	return n.cache, true
}

// SetProcessor installs the conversion pipeline run on every computed value.
func (n *Node) SetProcessor(p Processor) {
	n.process = p
	n.Invalidate()
}

// Value evaluates the node, computing and caching it on first call.
func (n *Node) Value() (any, error) {
	switch n.state {
	case done:
		return n.cache, nil
	case inProgress:
		return nil, &CycleError{start: n}
	}

	n.state = inProgress
	v, err := n.compute()
	if err != nil {
		n.state = unvisited
		var ce *CycleError
		if errors.As(err, &ce) {
			ce.unwind(n)
		}
		return nil, err
	}

	n.cache = v
	n.state = done
	return v, nil
}

func (n *Node) compute() (any, error) {
	var v any
	switch n.kind {
	case Literal:
		v = n.literal
	case Unresolved:
		return nil, &UnresolvedError{Name: n.name}
	case Reference:
		t := n.target.Value()
		if t == nil {
			return nil, &UnresolvedError{Name: n.name}
		}
		tv, err := t.Value()
		if err != nil {
			return nil, err
		}
		v = tv
	case Expression, Interpolation:
		args := make([]any, len(n.operands))
		for i, op := range n.operands {
			av, err := op.Value()
			if err != nil {
				return nil, err
			}
			args[i] = av
		}
		cv, err := n.combine(args)
		if err != nil {
			return nil, &EvalError{Name: n.name, Err: err}
		}
		v = cv
	}

	if n.process != nil {
		return n.process(v)
	}
	return v, nil
}

// Set turns the node into a literal holding v.
func (n *Node) Set(v any) {
	n.unlink()
	n.kind = Literal
	n.literal = v
	n.Invalidate()
}

// Assign takes over the definition of def while keeping this node's
// identity, so everything that reads n follows the new definition.
// The processor is left untouched.
func (n *Node) Assign(def *Node) {
	if def == n {
		return
	}
	n.unlink()
	n.kind = def.kind
	n.literal = def.literal
	n.combine = def.combine
	n.source = def.source
	n.link(def.operands, def.target)
	n.Invalidate()
}

// Retarget turns the node into a reference to target.
func (n *Node) Retarget(target *Node) {
	n.unlink()
	n.kind = Reference
	n.literal = nil
	n.link(nil, weak.Make(target))
	n.Invalidate()
}

// Unresolve turns the node back into a placeholder.
func (n *Node) Unresolve() {
	n.unlink()
	n.kind = Unresolved
	n.literal = nil
	n.Invalidate()
}

// Invalidate drops the cache of this node and of every node that reads it,
// transitively. Nothing is recomputed until the next read.
func (n *Node) Invalidate() {
	seen := make(map[*Node]struct{})
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		if cur.state == done {
			cur.state = unvisited
			cur.cache = nil
		}
		stack = append(stack, cur.Dependents()...)
	}
}

func (n *Node) link(operands []*Node, target weak.Pointer[Node]) {
	n.operands = append([]*Node(nil), operands...)
	n.target = target
	self := weak.Make(n)
	for _, op := range n.operands {
		op.addDependent(self)
	}
	if t := target.Value(); t != nil {
		t.addDependent(self)
	}
}

func (n *Node) unlink() {
	self := weak.Make(n)
	for _, op := range n.operands {
		delete(op.dependents, self)
	}
	if t := n.target.Value(); t != nil {
		delete(t.dependents, self)
	}
	n.operands = nil
	n.combine = nil
	n.source = ""
	n.target = weak.Pointer[Node]{}
}

func (n *Node) addDependent(d weak.Pointer[Node]) {
	if n.dependents == nil {
		n.dependents = make(map[weak.Pointer[Node]]struct{})
	}
	n.dependents[d] = struct{}{}
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.kind, n.name)
}
