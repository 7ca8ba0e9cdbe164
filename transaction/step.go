// Package transaction turns a solver.Result into the final ordered list
// of install/remove steps a Linker can execute: dependencies are
// ordered before dependents on install and after them on removal, and
// a Python version change triggers a noarch-Python relink pass.
package transaction

import "github.com/binpack/binpack/matchspec"

// StepKind is one of the four step shapes a Transaction can contain.
type StepKind int

const (
	Install StepKind = iota
	Remove
	Change
	Reinstall
)

func (k StepKind) String() string {
	switch k {
	case Install:
		return "install"
	case Remove:
		return "remove"
	case Change:
		return "change"
	case Reinstall:
		return "reinstall"
	default:
		return "unknown"
	}
}

// Step is one unit of work in a Transaction. Old is set only for
// Change; Package is the new (or only) package otherwise.
type Step struct {
	Kind    StepKind
	Package matchspec.PackageInfo
	Old     matchspec.PackageInfo
}

// Transaction is the ordered step list produced by Plan, owned by the
// planner and consumed once by the executor.
type Transaction struct {
	Steps []Step
}
