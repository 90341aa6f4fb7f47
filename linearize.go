package armature

import "slices"

// linearize computes the C3 linearization of self given its direct parents
// and a function returning each parent's own linearization. The result
// starts with self and lists every ancestor exactly once, nearest first.
// ok is false when the parents impose contradictory orders.
func linearize[T comparable](self T, parents []T, pedigree func(T) []T) (order []T, ok bool) {
	var seqs [][]T
	for _, p := range parents {
		seqs = append(seqs, slices.Clone(pedigree(p)))
	}
	seqs = append(seqs, slices.Clone(parents))

	order = []T{self}
	for {
		seqs = slices.DeleteFunc(seqs, func(s []T) bool { return len(s) == 0 })
		if len(seqs) == 0 {
			return order, true
		}

		var head T
		found := false
		for _, s := range seqs {
			candidate := s[0]
			if !inTail(seqs, candidate) {
				head = candidate
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}

		order = append(order, head)
		for i, s := range seqs {
			if s[0] == head {
				seqs[i] = s[1:]
			}
		}
	}
}

func inTail[T comparable](seqs [][]T, x T) bool {
	for _, s := range seqs {
		if slices.Contains(s[1:], x) {
			return true
		}
	}
	return false
}
