package armature

import "fmt"

// Phase is a step of the type and instance lifecycles.
//
// Types go declared -> registered -> configured -> bound -> validated ->
// initialized -> finalized. Instances start at constructed instead of
// declared. Each transition runs once and only forward by one step, except
// that finalization is allowed from any earlier phase.
type Phase int

const (
	Declared Phase = iota
	Registered
	Configured
	Bound
	Validated
	Initialized
	Finalized
)

// Constructed is the first phase of an instance.
const Constructed = Declared

func (p Phase) String() string {
	switch p {
	case Declared:
		return "declared"
	case Registered:
		return "registered"
	case Configured:
		return "configured"
	case Bound:
		return "bound"
	case Validated:
		return "validated"
	case Initialized:
		return "initialized"
	case Finalized:
		return "finalized"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// lifecycle tracks the phase of one type or instance.
type lifecycle struct {
	subject string
	phase   Phase
}

// advance moves to next if next is the immediate successor of the current
// phase. A failed step leaves the phase unchanged.
func (l *lifecycle) advance(next Phase, step func() error) error {
	legal := next == l.phase+1 || (next == Finalized && l.phase != Finalized)
	if !legal {
		return &LifecycleError{Subject: l.subject, From: l.phase, To: next}
	}
	if step != nil {
		if err := step(); err != nil {
			return err
		}
	}
	l.phase = next
	return nil
}
