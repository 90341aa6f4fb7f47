package calc

import (
	"errors"
	"slices"
)

// Verify walks the definition of n without evaluating anything and reports
// every unresolved leaf and every cycle reachable from it.
func Verify(n *Node) error {
	v := verifier{state: make(map[*Node]mark), reported: make(map[string]struct{})}
	v.walk(n, nil)
	return errors.Join(v.errs...)
}

type verifier struct {
	state    map[*Node]mark
	reported map[string]struct{}
	errs     []error
}

func (v *verifier) walk(n *Node, path []*Node) {
	switch v.state[n] {
	case done:
		return
	case inProgress:
		start := slices.Index(path, n)
		ce := &CycleError{closed: true}
		for _, p := range path[start:] {
			if len(ce.Names) == 0 || ce.Names[len(ce.Names)-1] != p.name {
				ce.Names = append(ce.Names, p.name)
			}
		}
		v.report("cycle:"+ce.Error(), ce)
		return
	}

	v.state[n] = inProgress
	path = append(path, n)

	switch n.kind {
	case Unresolved:
		v.report("unresolved:"+n.name, &UnresolvedError{Name: n.name})
	case Reference:
		if t := n.target.Value(); t != nil {
			v.walk(t, path)
		} else {
			v.report("unresolved:"+n.name, &UnresolvedError{Name: n.name})
		}
	case Expression, Interpolation:
		for _, op := range n.operands {
			v.walk(op, path)
		}
	}

	v.state[n] = done
}

func (v *verifier) report(key string, err error) {
	if _, ok := v.reported[key]; ok {
		return
	}
	v.reported[key] = struct{}{}
	v.errs = append(v.errs, err)
}
