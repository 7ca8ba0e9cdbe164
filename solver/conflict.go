package solver

import "github.com/binpack/binpack/matchspec"

// ConflictKind distinguishes the three failure shapes problems.Graph
// renders: a dependency nothing in the pool can satisfy, a constrains
// entry violated by an already-selected package, and two jobs/
// dependencies requiring incompatible versions of the same name.
type ConflictKind int

const (
	UnresolvedDep ConflictKind = iota
	ConstraintViolation
	SameNameConflict
)

// Conflict is one minimally-conflicting clause surfaced by a failed
// solve, consumed by the problems package to build a ProblemsGraph.
type Conflict struct {
	Kind ConflictKind

	// Subject is the package (or, for UnresolvedDep, the package whose
	// depends entry could not be satisfied) this conflict is about.
	Subject matchspec.PackageInfo
	// RequiredBy names who introduced the requirement: a job, or
	// another package's name.
	RequiredBy string
	// Spec is the match expression nothing could satisfy, or that an
	// already-selected package violates.
	Spec matchspec.MatchSpec
	// Other is set for SameNameConflict/ConstraintViolation: the
	// already-selected package that conflicts with Spec.
	Other matchspec.PackageInfo
}
