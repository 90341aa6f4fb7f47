package calc

import (
	"fmt"
	"slices"
	"strings"
)

// UnresolvedError is returned when evaluation reaches a name that nothing
// defines, or a reference whose target is gone.
type UnresolvedError struct {
	Name string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("calc: unresolved reference %q", e.Name)
}

// CycleError is returned when evaluation revisits a node that is still being
// evaluated. Names lists the members of the cycle in dependency order,
// starting with the node that was re-entered.
type CycleError struct {
	Names []string

	start  *Node
	closed bool
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("calc: cyclic dependency: %s", strings.Join(e.Names, " -> "))
}

// Contains reports whether name is a member of the cycle.
func (e *CycleError) Contains(name string) bool {
	return slices.Contains(e.Names, name)
}

// unwind records n as a frame of the cycle while the error propagates up the
// evaluation stack. Once the re-entered node is reached the path is complete.
func (e *CycleError) unwind(n *Node) {
	if e.closed {
		return
	}
	if len(e.Names) == 0 || e.Names[len(e.Names)-1] != n.name {
		e.Names = append(e.Names, n.name)
	}
	if n == e.start {
		slices.Reverse(e.Names)
		e.closed = true
		e.start = nil
	}
}

// ParseError wraps HCL diagnostics for an expression or template.
type ParseError struct {
	Name   string
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("calc: parse %q (%q): %v", e.Name, e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EvalError wraps a failure raised while computing an expression or template.
type EvalError struct {
	Name string
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("calc: evaluate %q: %v", e.Name, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }
