package solver

import "github.com/binpack/binpack/matchspec"

// JobKind is one of the four request kinds a Solver accepts.
type JobKind int

const (
	Install JobKind = iota
	Remove
	Update
	Pin
)

func (k JobKind) String() string {
	switch k {
	case Install:
		return "install"
	case Remove:
		return "remove"
	case Update:
		return "update"
	case Pin:
		return "pin"
	default:
		return "unknown"
	}
}

// Job is one user-level request fed into the Solver.
type Job struct {
	Kind JobKind
	Spec matchspec.MatchSpec
}

// Flags are the solver-wide toggles that modify how every Job is resolved.
type Flags struct {
	AllowDowngrade bool
	NoDeps         bool
	OnlyDeps       bool
	ForceReinstall bool
}
